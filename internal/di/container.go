// Package di provides dependency injection configuration for the ledger server.
package di

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/libraryledger/ledger-server/internal/auth"
	"github.com/libraryledger/ledger-server/internal/catalog"
	"github.com/libraryledger/ledger-server/internal/config"
	"github.com/libraryledger/ledger-server/internal/di/providers"
	"github.com/libraryledger/ledger-server/internal/health"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
// cfg may be nil, in which case configuration is read from flags and the
// environment on first use.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	if cfg != nil {
		do.ProvideValue(injector, cfg)
	} else {
		do.Provide(injector, providers.ProvideConfig)
	}
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideAuthKey)

	// Persistence and events
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideCoverStore)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Workers the services depend on
	do.Provide(injector, providers.ProvideSuggestDispatcher)

	// Business services
	do.Provide(injector, providers.ProvideSessionService)
	do.Provide(injector, providers.ProvideAuthService)
	do.Provide(injector, providers.ProvideCatalogService)
	do.Provide(injector, providers.ProvideDirectoryService)
	do.Provide(injector, providers.ProvideLedgerService)
	do.Provide(injector, providers.ProvideReturnService)
	do.Provide(injector, providers.ProvideDashboardService)

	// Background jobs
	do.Provide(injector, providers.ProvideInboxWatcher)
	do.Provide(injector, providers.ProvideSessionCleanupJob)

	// Server
	do.Provide(injector, providers.ProvideHealthChecker)
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideMDNSService)

	return injector
}

// Bootstrap initializes all services and starts the background workers and
// the HTTP server.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*catalog.CoverStore](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)
	_ = do.MustInvoke[*providers.SuggestDispatcherHandle](injector)

	// Business services
	_ = do.MustInvoke[*service.SessionService](injector)
	_ = do.MustInvoke[*service.AuthService](injector)
	_ = do.MustInvoke[*service.CatalogService](injector)
	_ = do.MustInvoke[*service.DirectoryService](injector)
	_ = do.MustInvoke[*service.LedgerService](injector)
	_ = do.MustInvoke[*service.ReturnService](injector)
	_ = do.MustInvoke[*service.DashboardService](injector)

	// Workers
	_ = do.MustInvoke[*providers.InboxWatcherHandle](injector)
	_ = do.MustInvoke[*providers.SessionCleanupJob](injector)

	// Server
	_ = do.MustInvoke[*health.Checker](injector)
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*providers.MDNSServiceHandle](injector)

	providers.TriggerSearchReindexIfNeeded(injector)

	return nil
}

// Run bootstraps the container, serves until ctx is cancelled and then
// shuts every provider down in reverse dependency order.
func Run(ctx context.Context, injector *do.RootScope) error {
	if err := Bootstrap(injector); err != nil {
		_ = injector.Shutdown()
		return err
	}

	log := do.MustInvoke[*logger.Logger](injector)
	<-ctx.Done()

	log.Info("Shutting down server gracefully...")
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}
	log.Info("Server stopped")
	return nil
}
