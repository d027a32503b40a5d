package cache

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors dir and calls onChange with the blob name each time a blob
// is created or replaced. Temp files from in-progress writes are ignored;
// blobs land by rename, which surfaces as a Create. It runs until ctx is
// cancelled.
func Watch(ctx context.Context, dir string, onChange func(name string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	slog.Info("cache: watching for new blobs", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			base := filepath.Base(event.Name)
			if !strings.HasSuffix(base, Extension) {
				continue
			}
			onChange(strings.TrimSuffix(base, Extension))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("cache: watcher error", "err", err)
		}
	}
}
