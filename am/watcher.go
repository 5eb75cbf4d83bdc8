package am

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/logger"
)

// ConfigWatcher watches config files for changes and triggers reload callbacks.
// Parent directories are watched rather than the files themselves so that
// editors that replace a file by renaming over it are still seen.
type ConfigWatcher struct {
	files          map[string]bool
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	mu             sync.Mutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	load           func() (*Config, error)
	logger         *zap.SugaredLogger
}

// ReloadCallback is called when config is reloaded
// Receives the new config and returns any error
type ReloadCallback func(*Config) error

// NewConfigWatcher creates a watcher for the given config files.
func NewConfigWatcher(paths ...string) (*ConfigWatcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("no config files to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	cw := &ConfigWatcher{
		files:          make(map[string]bool, len(paths)),
		watcher:        watcher,
		debouncePeriod: 500 * time.Millisecond,
		load: func() (*Config, error) {
			Reset()
			return Load()
		},
		logger: logger.ComponentLogger("am.watcher"),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, errors.Wrapf(err, "resolve %s", p)
		}
		cw.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, errors.Wrapf(err, "failed to watch config directory %s", dir)
		}
	}
	return cw, nil
}

// OnReload registers a callback to be called when config is reloaded
func (cw *ConfigWatcher) OnReload(callback ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// Start begins watching for config file changes
func (cw *ConfigWatcher) Start() {
	go cw.watchLoop()
}

func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !cw.files[filepath.Clean(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			cw.logger.Infow("Config watcher detected change",
				"file", event.Name,
				"op", event.Op.String())
			cw.scheduleReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warnw("Config watcher error", "error", err)
		}
	}
}

// scheduleReload debounces rapid file changes and triggers reload
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.debounceTimer = time.AfterFunc(cw.debouncePeriod, func() {
		if err := cw.reload(); err != nil {
			cw.logger.Errorw("Config reload failed", "error", err)
		}
	})
}

// reload reloads the configuration and calls all callbacks. An invalid
// config is rejected and the callbacks keep the previous one.
func (cw *ConfigWatcher) reload() error {
	cfg, err := cw.load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "reloaded config is invalid")
	}

	cw.logger.Infow("Config reloaded successfully")

	cw.mu.Lock()
	callbacks := append([]ReloadCallback(nil), cw.callbacks...)
	cw.mu.Unlock()

	for _, callback := range callbacks {
		if err := callback(cfg); err != nil {
			cw.logger.Warnw("Config reload callback error", "error", err)
		}
	}
	return nil
}

// Stop stops watching for config changes
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.mu.Unlock()
	return cw.watcher.Close()
}
