package navigate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher evicts registered units whose decompiled file changes on disk, so
// the next navigation decompiles and parses the class again
type Watcher struct {
	solver  *PreParsedSolver
	watcher *fsnotify.Watcher
	dir     string
}

// NewWatcher watches dir, creating it when missing
func NewWatcher(dir string, solver *PreParsedSolver) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create watched directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{solver: solver, watcher: fw, dir: dir}, nil
}

// Run handles events until ctx is done or the watcher is closed
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Decompilation watcher error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".java") {
		return
	}
	path := filepath.Clean(event.Name)

	var evicted bool
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		evicted = w.solver.Evict(path)
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		evicted = w.solver.EvictIfChanged(path)
	}
	if evicted {
		slog.Debug("Evicted stale decompiled unit", "file", path)
	}
}

// Close stops the watcher
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
