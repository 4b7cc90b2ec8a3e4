// Package watch re-runs a handler when Markdown reports change on disk.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dkoosis/tracekit/pkg/trace"
)

// DefaultDebounce is the quiet period before changed files are handed over.
const DefaultDebounce = 300 * time.Millisecond

// Handler receives the sorted set of changed report paths.
type Handler func(ctx context.Context, paths []string)

// Watcher watches directory trees for .md changes.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	handle   Handler
	log      *zap.Logger
}

// New watches every directory under dirs, skipping the hidden and vendored
// trees that discovery skips. A zero debounce uses DefaultDebounce.
func New(dirs []string, debounce time.Duration, log *zap.Logger, handle Handler) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw, debounce: debounce, handle: handle, log: log}

	for _, dir := range dirs {
		if err := w.addTree(dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && trace.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		w.log.Debug("watching", zap.String("dir", path))
		return nil
	})
}

// Run dispatches debounced changes until ctx is cancelled, then releases the
// underlying watcher. The handler runs on Run's goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := map[string]struct{}{}
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if trace.SkipDir(info.Name()) {
						continue
					}
					if err := w.addTree(event.Name); err != nil {
						w.log.Warn("watch new directory", zap.String("dir", event.Name), zap.Error(err))
					}
					continue
				}
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".md") {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			paths := existing(pending)
			pending = map[string]struct{}{}
			if len(paths) > 0 {
				w.log.Debug("changes", zap.Strings("paths", paths))
				w.handle(ctx, paths)
			}
		}
	}
}

// existing returns the sorted pending paths that are still regular files.
func existing(pending map[string]struct{}) []string {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}
