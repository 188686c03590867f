package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// HotConfig wraps Config with hot-reload support.
type HotConfig struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
	log  zerolog.Logger
	subs []func(*Config)
}

func NewHotConfig(path string, log zerolog.Logger) (*HotConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &HotConfig{cfg: cfg, path: path, log: log.With().Str("component", "config").Logger()}, nil
}

// SetLogger replaces the logger. Call it before Watch.
func (hc *HotConfig) SetLogger(l zerolog.Logger) {
	hc.log = l.With().Str("component", "config").Logger()
}

func (hc *HotConfig) Get() *Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.cfg
}

// OnReload registers a callback for config changes. Each callback gets its
// own copy and may modify it.
func (hc *HotConfig) OnReload(fn func(*Config)) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.subs = append(hc.subs, fn)
}

func (hc *HotConfig) reload() {
	cfg, err := Load(hc.path)
	if err != nil {
		// Keep the last good config; a half-written file fails here too.
		hc.log.Error().Err(err).Msg("config reload failed")
		return
	}
	hc.mu.Lock()
	hc.cfg = cfg
	subs := append([]func(*Config)(nil), hc.subs...)
	hc.mu.Unlock()

	hc.log.Info().Str("path", hc.path).Msg("config reloaded")
	for _, fn := range subs {
		c := *cfg
		fn(&c)
	}
}

// Watch reloads the file on every change until ctx is done. The directory is
// watched so editors that save by rename are seen too. Without a path Watch
// returns immediately.
func (hc *HotConfig) Watch(ctx context.Context) error {
	if hc.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	target := filepath.Clean(hc.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
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
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					hc.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				hc.log.Error().Err(err).Msg("config watcher error")
			}
		}
	}()
	return nil
}
