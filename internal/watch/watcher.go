// Package watch triggers import runs when new files land in the inbox
// directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/harvestiq/siteingest/internal/runs"
)

// Watcher observes the inbox and starts an import after file activity
// settles. Bursts of writes collapse into one trigger via debouncing;
// the pipeline's single-flight guard still applies.
type Watcher struct {
	dir      string
	debounce time.Duration
	start    func() error
	logger   *zap.Logger
}

// New constructs a Watcher. start is invoked once per settled burst.
func New(dir string, debounce time.Duration, start func() error, logger *zap.Logger) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if start == nil {
		return nil, fmt.Errorf("start callback is required")
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dir: dir, debounce: debounce, start: start, logger: logger}, nil
}

// Run watches until ctx is done. Call in a goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching inbox", zap.String("dir", w.dir))

	// The timer stays stopped until a relevant event arms it.
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("inbox activity",
				zap.String("file", filepath.Base(event.Name)),
				zap.String("op", event.Op.String()),
			)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case <-timer.C:
			w.trigger()
		}
	}
}

// relevant keeps only csv creation and write activity on import files;
// maintenance feeds and the archiver's own renames never trigger runs.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	name := strings.ToLower(filepath.Base(event.Name))
	if filepath.Ext(name) != ".csv" {
		return false
	}
	if strings.HasPrefix(name, string(runs.KindBlacklist)) || strings.HasPrefix(name, string(runs.KindPhone)) {
		return false
	}
	return true
}

func (w *Watcher) trigger() {
	err := w.start()
	switch {
	case err == nil:
		w.logger.Info("import started by inbox watcher")
	case errors.Is(err, runs.ErrAlreadyRunning):
		w.logger.Debug("import already running, watcher trigger ignored")
	default:
		w.logger.Error("watcher failed to start import", zap.Error(err))
	}
}
