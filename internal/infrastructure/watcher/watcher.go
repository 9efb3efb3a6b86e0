// Package watcher uploads documents dropped into a watched directory.
package watcher

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

	"github.com/kirillkom/decision-assistant/internal/core/domain"
	"github.com/kirillkom/decision-assistant/internal/core/ports"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher turns create/write events for supported files into uploads. Bursts of
// writes to the same path are coalesced into one upload after the debounce window.
type Watcher struct {
	ingestor ports.DocumentIngestor
	logger   *slog.Logger
	debounce time.Duration
	observe  func(error)

	mu      sync.Mutex
	pending map[string]*pendingUpload
	wg      sync.WaitGroup
}

type pendingUpload struct {
	timer *time.Timer
}

func New(ingestor ports.DocumentIngestor, logger *slog.Logger, debounce time.Duration) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		ingestor: ingestor,
		logger:   logger,
		debounce: debounce,
		observe:  func(error) {},
		pending:  make(map[string]*pendingUpload),
	}
}

// OnUpload registers fn to be told the outcome of every upload attempt.
func (w *Watcher) OnUpload(fn func(error)) {
	if fn != nil {
		w.observe = fn
	}
}

// Run watches dir until ctx is done.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watch_dir_started", "dir", dir)

	defer w.wg.Wait()
	defer w.cancelPending()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !domain.IsSupportedFile(event.Name) || strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch_dir_error", "dir", dir, "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// A timer that already fired is left to finish; the path gets a fresh entry.
	if entry, ok := w.pending[path]; ok && entry.timer.Stop() {
		entry.timer.Reset(w.debounce)
		return
	}

	entry := &pendingUpload{}
	w.wg.Add(1)
	entry.timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == entry {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.upload(ctx, path)
	})
	w.pending[path] = entry
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, entry := range w.pending {
		if entry.timer.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

func (w *Watcher) upload(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		w.logger.Warn("watch_open_failed", "path", path, "error", err)
		return
	}
	defer f.Close()

	name := filepath.Base(path)
	doc, err := w.ingestor.Upload(ctx, name, domain.MimeTypeFor(name), f)
	w.observe(err)
	if err != nil {
		w.logger.Error("watch_upload_failed", "path", path, "error", err)
		return
	}
	w.logger.Info("watch_upload_queued", "path", path, "document_id", doc.ID)
}
