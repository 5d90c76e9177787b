package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration file when it changes on disk and hands the
// freshly parsed Config to a callback. Only operators of long-lived settings
// (the audit exclusion rules, included methods, status-code filters) consume
// the callback; connection-level settings require a restart.
type Watcher struct {
	fsw    *fsnotify.Watcher
	doneCh chan struct{}
}

// Watch starts watching configPath for modifications. The callback runs on a
// background goroutine with the re-parsed configuration; parse or validation
// failures are logged and the previous configuration stays in effect.
func Watch(configPath string, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors and configmap mounts replace
	// the file atomically, which unregisters a file-level watch.
	dir := filepath.Dir(configPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw, doneCh: make(chan struct{})}
	target := filepath.Clean(configPath)

	go func() {
		// Debounce: editors emit bursts of events for a single save.
		var pending *time.Timer
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(250*time.Millisecond, func() {
					cfg, err := Load(configPath)
					if err != nil {
						slog.Warn("config reload failed, keeping previous configuration", "path", configPath, "error", err)
						return
					}
					slog.Info("configuration reloaded", "path", configPath)
					onChange(cfg)
				})
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			case <-w.doneCh:
				return
			}
		}
	}()

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.doneCh)
	return w.fsw.Close()
}
