package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// waitForFile blocks until path exists or ctx is done. The parent directory
// must exist.
func waitForFile(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	err = w.Add(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	// The file may have appeared before the watch was set up.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("transport: watcher closed")
			}

			if ev.Op&fsnotify.Create != 0 && filepath.Clean(ev.Name) == filepath.Clean(path) {
				return nil
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("transport: watcher closed")
			}

			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
