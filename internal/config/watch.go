package config

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig watches path for writes and invokes onChange with a
// freshly reloaded ClearedConfig after each one. Reload errors are
// passed to onChange with a nil config so a caller such as the lint
// command can report a bad save without crashing the watcher.
//
// WatchConfig blocks until stop is closed or the underlying watcher
// fails to start; callers that want it in the background should run
// it in its own goroutine.
func WatchConfig(path string, stop <-chan struct{}, onChange func(*ClearedConfig, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(path)
			onChange(cfg, err)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("config watch %s: %v", path, err)
		}
	}
}
