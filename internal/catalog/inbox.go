package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/libraryledger/ledger-server/internal/logger"
)

// Subdirectories the inbox moves manifests into once handled.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

const defaultSettleDelay = 250 * time.Millisecond

// InboxOptions configures an Inbox.
type InboxOptions struct {
	// SettleDelay is how long a file must stay unchanged before it is read.
	SettleDelay time.Duration
	Logger      *slog.Logger
	// OnImport is called after each manifest with its report.
	OnImport func(path string, report ImportReport, err error)
}

// Inbox watches a drop folder for JSON manifests and imports them.
// Each manifest is moved to processed/ or failed/ afterwards so it is
// imported once.
type Inbox struct {
	dir      string
	importer Importer
	opts     InboxOptions
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// NewInbox creates the folder layout under dir and a watcher for it.
func NewInbox(dir string, importer Importer, opts InboxOptions) (*Inbox, error) {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	for _, d := range []string{dir, filepath.Join(dir, ProcessedDir), filepath.Join(dir, FailedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create inbox directory: %w", err)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch inbox: %w", err)
	}

	return &Inbox{
		dir:      dir,
		importer: importer,
		opts:     opts,
		logger:   logger.OrDiscard(opts.Logger).With("component", "inbox"),
		watcher:  w,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Run imports manifests already in the folder, then handles new ones until
// ctx is cancelled.
func (in *Inbox) Run(ctx context.Context) error {
	defer in.close()

	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && isManifest(e.Name()) {
			in.settle(ctx, filepath.Join(in.dir, e.Name()))
		}
	}

	in.logger.Info("inbox watching", "path", in.dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-in.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && isManifest(event.Name) {
				in.settle(ctx, event.Name)
			}
		case err, ok := <-in.watcher.Errors:
			if !ok {
				return nil
			}
			in.logger.Warn("inbox watcher error", "error", err)
		}
	}
}

// settle (re)starts the quiet-period timer for path.
func (in *Inbox) settle(ctx context.Context, path string) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if t, ok := in.pending[path]; ok {
		if !t.Stop() {
			// Already firing; process will see the latest content.
			return
		}
		in.wg.Done()
	}
	in.wg.Add(1)
	in.pending[path] = time.AfterFunc(in.opts.SettleDelay, func() {
		defer in.wg.Done()
		in.mu.Lock()
		delete(in.pending, path)
		in.mu.Unlock()
		if ctx.Err() == nil {
			in.process(ctx, path)
		}
	})
}

func (in *Inbox) process(ctx context.Context, path string) {
	log := in.logger.With("file", filepath.Base(path))

	m, err := ParseManifestFile(path)
	var report ImportReport
	if err == nil {
		report, err = Import(ctx, in.importer, m)
	}

	target := ProcessedDir
	if err != nil {
		target = FailedDir
		log.Error("manifest import failed", "error", err)
	} else {
		log.Info("manifest imported",
			"created", report.Created,
			"updated", report.Updated,
			"skipped", report.Skipped,
			"failed", len(report.Failed))
	}

	if mvErr := in.move(path, target); mvErr != nil {
		log.Error("failed to move manifest", "error", mvErr)
	}
	if in.opts.OnImport != nil {
		in.opts.OnImport(path, report, err)
	}
}

// move renames path into sub, suffixing a timestamp to avoid clobbering.
func (in *Inbox) move(path, sub string) error {
	base := filepath.Base(path)
	dest := filepath.Join(in.dir, sub, base)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(base)
		dest = filepath.Join(in.dir, sub,
			fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), time.Now().UnixNano(), ext))
	}
	return os.Rename(path, dest)
}

func (in *Inbox) close() {
	_ = in.watcher.Close()

	in.mu.Lock()
	for path, t := range in.pending {
		if t.Stop() {
			in.wg.Done()
		}
		delete(in.pending, path)
	}
	in.mu.Unlock()
	in.wg.Wait()
}

func isManifest(name string) bool {
	base := filepath.Base(name)
	return strings.EqualFold(filepath.Ext(base), ".json") && !strings.HasPrefix(base, ".")
}
