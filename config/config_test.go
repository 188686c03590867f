package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "voiceorb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadEmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
backend:
  url: https://william.example
  timeout: 30s
playback:
  autoplay: false
  ready_timeout: 2s
  volume_db: -6
locale: fr
visualizer:
  fps: 20
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://william.example", cfg.Backend.URL)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.False(t, cfg.Playback.Autoplay)
	assert.True(t, cfg.Playback.Streaming, "unset keys keep their default")
	assert.Equal(t, 2*time.Second, cfg.Playback.ReadyTimeout)
	assert.Equal(t, -6.0, cfg.Playback.VolumeDB)
	assert.Equal(t, "fr", cfg.Locale)
	assert.Equal(t, 50*time.Millisecond, cfg.Visualizer.FrameInterval())
	assert.Equal(t, 6, cfg.Visualizer.Bars)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"relative url", "backend:\n  url: /api\n", "backend.url"},
		{"zero read size", "stream:\n  read_size: 0\n", "stream.read_size"},
		{"smoothing of one", "visualizer:\n  smoothing: 1\n", "visualizer.smoothing"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"sample rate", "playback:\n  sample_rate: 100\n", "playback.sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, t.TempDir(), "playback: [unterminated"))
	assert.ErrorContains(t, err, "parse config")
}

func TestHotConfigReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "playback:\n  autoplay: true\n")
	hc, err := NewHotConfig(path, zerolog.Nop())
	require.NoError(t, err)
	require.True(t, hc.Get().Playback.Autoplay)

	var reloads atomic.Int32
	var autoplay atomic.Bool
	autoplay.Store(true)
	hc.OnReload(func(cfg *Config) {
		autoplay.Store(cfg.Playback.Autoplay)
		reloads.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hc.Watch(ctx))

	writeConfig(t, dir, "playback:\n  autoplay: false\n")
	require.Eventually(t, func() bool { return !autoplay.Load() }, 3*time.Second, 10*time.Millisecond)
	assert.False(t, hc.Get().Playback.Autoplay)
	assert.Positive(t, reloads.Load())
}

func TestHotConfigKeepsLastGoodConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "locale: fr\n")
	hc, err := NewHotConfig(path, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("stream:\n  read_size: -1\n"), 0o644))
	hc.reload()
	assert.Equal(t, "fr", hc.Get().Locale)
}

func TestWatchWithoutPath(t *testing.T) {
	hc, err := NewHotConfig("", zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, hc.Watch(context.Background()))
}

func TestReloadSubscribersGetCopies(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "locale: en\n")
	hc, err := NewHotConfig(path, zerolog.Nop())
	require.NoError(t, err)

	var seen []*Config
	for range 2 {
		hc.OnReload(func(cfg *Config) {
			seen = append(seen, cfg)
			cfg.Locale = "xx"
		})
	}

	writeConfig(t, dir, "locale: fr\n")
	hc.reload()
	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1])
	assert.NotSame(t, hc.Get(), seen[0])
	assert.Equal(t, "fr", hc.Get().Locale, "subscriber edits stay local")
}
