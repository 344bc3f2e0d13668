package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/relaymesh/channelsdk/internal/logging"
)

// Watch reloads the Manager's config whenever its backing file
// changes, until ctx is cancelled. No-op if Load was never called
// with a non-empty path.
func (m *Manager) Watch(ctx context.Context) error {
	m.mu.RLock()
	path := m.configPath
	m.mu.RUnlock()
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				m.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("config watcher error", "error", err)
			}
		}
	}()
	return nil
}
