package credentials

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the token file and calls onChange whenever it is written,
// created or removed. It watches the parent directory so that editors which
// replace the file atomically are handled. Watch returns once the watcher is
// running; the watcher stops when ctx is cancelled.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	if s.path == "" {
		return fmt.Errorf("token file path is not configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file system watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go s.watchLoop(ctx, watcher, onChange)
	s.logger.Debug("Started token file watcher", "path", s.path)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, onChange func()) {
	defer func() {
		watcher.Close()
		s.logger.Debug("Token file watcher stopped")
	}()

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.logger.Debug("Token file changed", "event", event.Op.String(), "path", event.Name)
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("Token file watcher error", "error", err)
		}
	}
}
