package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/libraryledger/ledger-server/internal/health"
	"github.com/libraryledger/ledger-server/internal/service"
)

func (s *Server) registerDashboardRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getDashboard",
		Method:      http.MethodGet,
		Path:        "/api/v1/dashboard",
		Summary:     "Dashboard",
		Description: "Catalog totals, overdue loans, recent issues and pending requests annotated with delinquency (staff only)",
		Tags:        []string{"Dashboard"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetDashboard)
}

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// DashboardOutput wraps the dashboard for Huma.
type DashboardOutput struct {
	Body *service.Dashboard
}

// HealthOutput wraps the health report for Huma.
type HealthOutput struct {
	Body health.Report
}

func (s *Server) handleGetDashboard(ctx context.Context, _ *struct{}) (*DashboardOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	d, err := s.services.Dashboard.Dashboard(ctx, p)
	if err != nil {
		return nil, err
	}
	return &DashboardOutput{Body: d}, nil
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	checker := s.health
	if checker == nil {
		checker = &health.Checker{}
	}
	return &HealthOutput{Body: checker.Check(ctx)}, nil
}
