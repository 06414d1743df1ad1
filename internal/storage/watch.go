package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Tiliavir/timesheet-grid/internal/debounce"
)

// WatchSettle is how long the data directory must be quiet before a change
// notification is delivered.
const WatchSettle = 250 * time.Millisecond

// Watch calls onChange whenever a day file or directory file under the data
// directory is written, created, removed or renamed. Bursts of events are
// coalesced. Watch blocks until ctx is cancelled.
func (s *FileStore) Watch(ctx context.Context, onChange func()) error {
	if err := os.MkdirAll(s.base, 0o700); err != nil {
		return fmt.Errorf("storage error creating %s: %w", s.base, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// fsnotify is not recursive; watch every existing year/month directory.
	err = filepath.WalkDir(s.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.base, err)
	}

	settle := debounce.New(nil)
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					// Subdirectories and files may already exist by now.
					_ = filepath.WalkDir(event.Name, func(path string, d fs.DirEntry, err error) error {
						if err == nil && d.IsDir() {
							_ = watcher.Add(path)
						}
						return nil
					})
					settle.Arm("change", WatchSettle, onChange)
					continue
				}
			}
			if !relevant(event) {
				continue
			}
			settle.Arm("change", WatchSettle, onChange)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, ".json") {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
