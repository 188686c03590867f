// Package config loads the YAML configuration and watches it for live
// changes.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Stream     StreamConfig     `yaml:"stream"`
	Visualizer VisualizerConfig `yaml:"visualizer"`
	Locale     string           `yaml:"locale"` // BCP 47, e.g. "en" or "fr-CA"
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"` // whole request, including the audio body
}

type PlaybackConfig struct {
	Voice          bool          `yaml:"voice"`           // ask the voice endpoint instead of text chat
	Autoplay       bool          `yaml:"autoplay"`        // start replies without a toggle
	Streaming      bool          `yaml:"streaming"`       // play while bytes arrive
	RequireGesture bool          `yaml:"require_gesture"` // reject unsolicited starts until a key press
	ReadyTimeout   time.Duration `yaml:"ready_timeout"`
	ReadyBytes     int           `yaml:"ready_bytes"`
	MaxBufferBytes int           `yaml:"max_buffer_bytes"`
	SampleRate     int           `yaml:"sample_rate"`
	VolumeDB       float64       `yaml:"volume_db"`
	PresenceDB     float64       `yaml:"presence_db"` // speech clarity boost around 3 kHz
}

type StreamConfig struct {
	ReadSize int `yaml:"read_size"`
}

type VisualizerConfig struct {
	Bars      int     `yaml:"bars"`
	FPS       int     `yaml:"fps"`
	Smoothing float64 `yaml:"smoothing"`
	Bands     int     `yaml:"bands"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // empty discards logs; the TUI owns the terminal
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the /metrics listener
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:     "http://localhost:3000",
			Timeout: 60 * time.Second,
		},
		Playback: PlaybackConfig{
			Voice:          true,
			Autoplay:       true,
			Streaming:      true,
			ReadyTimeout:   5 * time.Second,
			ReadyBytes:     4096,
			MaxBufferBytes: 32 << 20,
			SampleRate:     44100,
		},
		Stream: StreamConfig{ReadSize: 4096},
		Visualizer: VisualizerConfig{
			Bars:      6,
			FPS:       30,
			Smoothing: 0.8,
			Bands:     6,
		},
		Locale:  "en",
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section and joins the problems.
func (c *Config) Validate() error {
	return errors.Join(
		c.Backend.Validate(),
		c.Playback.Validate(),
		c.Stream.Validate(),
		c.Visualizer.Validate(),
		c.Logging.Validate(),
	)
}

func (b BackendConfig) Validate() error {
	u, err := url.Parse(b.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.url %q is not an absolute URL", b.URL)
	}
	if b.Timeout < 0 {
		return errors.New("backend.timeout must not be negative")
	}
	return nil
}

func (p PlaybackConfig) Validate() error {
	var errs []error
	if p.ReadyTimeout <= 0 {
		errs = append(errs, errors.New("playback.ready_timeout must be positive"))
	}
	if p.ReadyBytes <= 0 {
		errs = append(errs, errors.New("playback.ready_bytes must be positive"))
	}
	if p.MaxBufferBytes <= 0 {
		errs = append(errs, errors.New("playback.max_buffer_bytes must be positive"))
	}
	if p.SampleRate < 8000 || p.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("playback.sample_rate %d out of range", p.SampleRate))
	}
	return errors.Join(errs...)
}

func (s StreamConfig) Validate() error {
	if s.ReadSize <= 0 {
		return errors.New("stream.read_size must be positive")
	}
	return nil
}

func (v VisualizerConfig) Validate() error {
	var errs []error
	if v.Bars < 1 {
		errs = append(errs, errors.New("visualizer.bars must be at least 1"))
	}
	if v.Bands < 1 {
		errs = append(errs, errors.New("visualizer.bands must be at least 1"))
	}
	if v.FPS < 1 || v.FPS > 120 {
		errs = append(errs, fmt.Errorf("visualizer.fps %d out of range", v.FPS))
	}
	if v.Smoothing < 0 || v.Smoothing >= 1 {
		errs = append(errs, fmt.Errorf("visualizer.smoothing %v must be in [0,1)", v.Smoothing))
	}
	return errors.Join(errs...)
}

func (l LoggingConfig) Validate() error {
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// FrameInterval is the render tick period.
func (v VisualizerConfig) FrameInterval() time.Duration {
	return time.Second / time.Duration(v.FPS)
}
