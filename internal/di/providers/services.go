package providers

import (
	"github.com/samber/do/v2"

	"github.com/libraryledger/ledger-server/internal/auth"
	"github.com/libraryledger/ledger-server/internal/catalog"
	"github.com/libraryledger/ledger-server/internal/config"
	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/service"
)

func delinquencyPolicy(cfg *config.Config) domain.DelinquencyPolicy {
	return domain.DelinquencyPolicy{ClearPaidFines: cfg.Ledger.ClearPaidFines}
}

// ProvideCoverStore provides on-disk cover storage.
func ProvideCoverStore(i do.Injector) (*catalog.CoverStore, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return catalog.NewCoverStore(cfg.Data.BasePath)
}

// ProvideSessionService provides the session management service.
func ProvideSessionService(i do.Injector) (*service.SessionService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokenService := do.MustInvoke[*auth.TokenService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSessionService(storeHandle.Store, tokenService, log.Logger), nil
}

// ProvideAuthService provides the authentication service.
func ProvideAuthService(i do.Injector) (*service.AuthService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokenService := do.MustInvoke[*auth.TokenService](i)
	sessionService := do.MustInvoke[*service.SessionService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAuthService(storeHandle.Store, tokenService, sessionService, log.Logger), nil
}

// ProvideCatalogService provides the catalog service.
func ProvideCatalogService(i do.Injector) (*service.CatalogService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	covers := do.MustInvoke[*catalog.CoverStore](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	// A nil *search.Index must not become a non-nil interface.
	var index service.BookIndex
	if indexHandle.Index != nil {
		index = indexHandle.Index
	}

	return service.NewCatalogService(storeHandle.Store, index, covers, sseHandle.Manager, log.Logger), nil
}

// ProvideDirectoryService provides the account directory service.
func ProvideDirectoryService(i do.Injector) (*service.DirectoryService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewDirectoryService(storeHandle.Store, log.Logger), nil
}

// ProvideLedgerService provides issuance and request handling.
func ProvideLedgerService(i do.Injector) (*service.LedgerService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	dispatcher := do.MustInvoke[*SuggestDispatcherHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewLedgerService(
		storeHandle.Store,
		delinquencyPolicy(cfg),
		sseHandle.Manager,
		dispatcher.Dispatcher,
		log.Logger,
	), nil
}

// ProvideReturnService provides fine quoting and returns.
func ProvideReturnService(i do.Injector) (*service.ReturnService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewReturnService(storeHandle.Store, cfg.Ledger.QuoteTTL, sseHandle.Manager, log.Logger), nil
}

// ProvideDashboardService provides the dashboard views.
func ProvideDashboardService(i do.Injector) (*service.DashboardService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewDashboardService(storeHandle.Store, delinquencyPolicy(cfg), log.Logger), nil
}
