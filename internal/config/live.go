package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lotas/tabtimer/internal/applog"
)

// Live holds the current configuration and is safe for concurrent use. It
// implements the router's Features interface so a reload takes effect at
// the next inactivity sweep.
type Live struct {
	mu  sync.RWMutex
	cfg Config
}

// NewLive wraps cfg.
func NewLive(cfg Config) *Live {
	return &Live{cfg: cfg}
}

// Get returns a copy of the current configuration.
func (l *Live) Get() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Set replaces the configuration.
func (l *Live) Set(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
}

func (l *Live) AutoCloseEnabled() bool {
	return l.Get().AutoClose.Enabled
}

func (l *Live) InactivityThreshold() time.Duration {
	return l.Get().AutoClose.InactivityThreshold
}

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path     string
	live     *Live
	onReload func(Config)
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher watches the directory holding path. Editors often replace the
// file instead of writing it in place, so the directory is watched rather
// than the file itself. onReload may be nil.
func NewWatcher(path string, live *Live, onReload func(Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:     filepath.Clean(path),
		live:     live,
		onReload: onReload,
		debounce: defaultDebounce,
		watcher:  fw,
	}, nil
}

// Run processes file events until ctx is cancelled. A burst of writes is
// collapsed into one reload after the debounce delay.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var fire <-chan time.Time
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			fire = time.After(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			applog.Error("config.watch", err)
		case <-fire:
			fire = nil
			w.reload()
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		// Keep running on the last good config.
		applog.Error("config.reload", err, "path", w.path)
		return
	}
	w.live.Set(cfg)
	applog.Info("config.reload", "path", w.path, "auto_close", cfg.AutoClose.Enabled)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
