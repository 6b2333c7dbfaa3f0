package config

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a YAML config file for changes, debounces rapid writes,
// and invokes a callback with the reloaded Config.
type Watcher struct {
	path     string
	logger   *slog.Logger
	callback func(Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher starts watching path and begins delivering reloaded Configs to
// callback on a background goroutine. Reload errors are logged and do not
// invoke callback, leaving the previous configuration in effect.
func NewWatcher(path string, logger *slog.Logger, callback func(Config)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config: watching %s: %w", path, err)
	}

	cw := &Watcher{
		path:     path,
		logger:   logger,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()

	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}

				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}

			cw.logger.Error("config watcher error", slog.Any("err", err))
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := ConfigFromFile(cw.path)
	if err != nil {
		cw.logger.Error("config hot-reload failed", slog.String("path", cw.path), slog.Any("err", err))
		return
	}

	cw.logger.Info("configuration reloaded", slog.String("path", cw.path))
	cw.callback(cfg)
}

// Stop halts the watcher and releases its fsnotify handle.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
