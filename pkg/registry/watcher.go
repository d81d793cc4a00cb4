package registry

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/glorpus-work/promptreg/pkg/adapter"
)

const watchDebounce = 200 * time.Millisecond

// WatchLocalSources watches the directories of every enabled local source and
// invalidates the adapter and merged catalog caches when their content
// changes. It blocks until ctx is cancelled. onChange, when set, is called
// with the source id after each invalidation.
func (m *Manager) WatchLocalSources(ctx context.Context, onChange func(sourceID string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	roots := make(map[string]string)
	for _, sa := range m.enabledAdapters() {
		if !sa.source.Type.IsLocal() {
			continue
		}
		root, err := adapter.LocalRoot(sa.source)
		if err != nil {
			return err
		}
		if err := addDirsRecursive(w, root); err != nil {
			m.log.Warn("watcher: cannot watch source", "source", sa.source.ID, "root", root, "error", err)
			continue
		}
		roots[sa.source.ID] = root
	}
	m.log.Info("watcher: started", "sources", len(roots))

	pending := make(map[string]bool)
	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(watchDebounce)
			timerCh = timer.C
			return
		}
		timer.Reset(watchDebounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			m.log.Info("watcher: stopped")
			return nil

		case <-timerCh:
			timer, timerCh = nil, nil
			for id := range pending {
				m.invalidateSource(id)
				if onChange != nil {
					onChange(id)
				}
			}
			pending = make(map[string]bool)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						m.log.Warn("watcher: add new dir failed", "path", ev.Name, "error", addErr)
					}
				}
			}
			for id, root := range roots {
				if ev.Name == root || strings.HasPrefix(ev.Name, root+string(os.PathSeparator)) {
					pending[id] = true
				}
			}
			if len(pending) > 0 {
				schedule()
			}

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("watcher: error", "error", werr)
		}
	}
}

func (m *Manager) invalidateSource(id string) {
	if a, err := m.Adapter(id); err == nil {
		a.Invalidate()
	}
	m.InvalidateCache()
	m.log.Debug("watcher: source changed", "source", id)
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
