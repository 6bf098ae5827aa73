package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadSettle is how long Watch waits after the last filesystem event
// before reloading, so an editor's save sequence (write, chmod, rename)
// triggers a single reload instead of one per event.
const reloadSettle = 250 * time.Millisecond

// Watch reloads the config at path whenever it changes and hands each valid
// result to onChange. It runs until ctx is cancelled.
//
// The parent directory is watched rather than the file itself, so atomic
// saves that replace the inode stay observed. A reload that fails parsing
// or validation is logged and the previous config remains active — Watch
// does not call onChange for it.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	slog.Info("config: watching for changes", "path", abs)

	settle := time.NewTimer(reloadSettle)
	if !settle.Stop() {
		<-settle.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending && !settle.Stop() {
				<-settle.C
			}
			settle.Reset(reloadSettle)
			pending = true

		case <-settle.C:
			pending = false
			cfg, err := Load(abs)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", abs, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", abs)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
