package providers

import (
	"context"
	"errors"

	"github.com/samber/do/v2"

	"github.com/libraryledger/ledger-server/internal/catalog"
	"github.com/libraryledger/ledger-server/internal/config"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/service"
	"github.com/libraryledger/ledger-server/internal/suggest"
)

// SuggestDispatcherHandle owns the suggestion client and its worker slots.
type SuggestDispatcherHandle struct {
	*suggest.Dispatcher
	client *suggest.Client
}

// Shutdown implements do.Shutdownable.
func (h *SuggestDispatcherHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Dispatcher.Shutdown(ctx)
	if h.client != nil {
		h.client.Close()
	}
	return err
}

// ProvideSuggestDispatcher provides post-issue reading suggestions. Without
// a configured URL every lookup is reported as disabled.
func ProvideSuggestDispatcher(i do.Injector) (*SuggestDispatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	opts := suggest.DispatcherOptions{
		MaxInFlight: cfg.Suggest.MaxInFlight,
		Timeout:     cfg.Suggest.Timeout,
		Notifier:    sseHandle.Manager,
		Logger:      log.Logger,
	}

	if cfg.Suggest.URL == "" {
		log.Info("Book suggestions disabled")
		return &SuggestDispatcherHandle{Dispatcher: suggest.NewDispatcher(nil, opts)}, nil
	}

	client := suggest.NewClient(suggest.Config{
		URL:               cfg.Suggest.URL,
		APIKey:            cfg.Suggest.APIKey,
		Timeout:           cfg.Suggest.Timeout,
		RequestsPerMinute: cfg.Suggest.RequestsPerMinute,
	}, log.Logger)

	log.Info("Book suggestions enabled",
		"url", cfg.Suggest.URL,
		"max_in_flight", cfg.Suggest.MaxInFlight,
	)

	return &SuggestDispatcherHandle{
		Dispatcher: suggest.NewDispatcher(client, opts),
		client:     client,
	}, nil
}

// InboxWatcherHandle runs the catalog manifest drop folder.
type InboxWatcherHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *InboxWatcherHandle) Shutdown() error {
	if h.cancel == nil {
		return nil
	}
	h.cancel()
	<-h.done
	return nil
}

// ProvideInboxWatcher provides the fsnotify manifest importer. It is idle
// when no inbox path is configured.
func ProvideInboxWatcher(i do.Injector) (*InboxWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	catalogService := do.MustInvoke[*service.CatalogService](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Inbox.Path == "" {
		return &InboxWatcherHandle{}, nil
	}

	inbox, err := catalog.NewInbox(cfg.Inbox.Path, catalogService, catalog.InboxOptions{
		Logger: log.Logger,
		OnImport: func(path string, report catalog.ImportReport, err error) {
			if err != nil {
				log.Warn("Manifest import failed", "path", path, "error", err)
				return
			}
			log.Info("Manifest imported",
				"path", path,
				"created", report.Created,
				"updated", report.Updated,
				"skipped", report.Skipped,
				"failed", len(report.Failed),
			)
		},
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := inbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Inbox watcher error", "error", err)
		}
	}()

	log.Info("Inbox watcher started", "path", cfg.Inbox.Path)

	return &InboxWatcherHandle{cancel: cancel, done: done}, nil
}

// SessionCleanupJob runs periodic session cleanup.
type SessionCleanupJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *SessionCleanupJob) Shutdown() error {
	j.cancel()
	return nil
}

// ProvideSessionCleanupJob provides the periodic session cleanup job.
func ProvideSessionCleanupJob(i do.Injector) (*SessionCleanupJob, error) {
	sessions := do.MustInvoke[*service.SessionService](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		// Initial cleanup on startup
		if _, err := sessions.CleanupExpired(ctx); err != nil {
			log.Warn("Initial session cleanup failed", "error", err)
		}
		sessions.RunCleanup(ctx, sessionCleanupInterval)
	}()

	log.Info("Session cleanup job started")

	return &SessionCleanupJob{cancel: cancel}, nil
}
