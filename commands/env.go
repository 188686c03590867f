package commands

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"voiceorb/backend"
	"voiceorb/config"
	"voiceorb/i18n"
	"voiceorb/metrics"
	"voiceorb/playback"
	"voiceorb/player"
)

// env is everything a command needs, built from config and flags.
type env struct {
	hot     *config.HotConfig
	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	out     *player.Output
	ctrl    *playback.Controller
	client  *backend.Client

	cancel  context.CancelFunc
	closers []func()
}

// applyFlags lets explicitly set flags override cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("backend") {
		cfg.Backend.URL = backendURL
	}
	if f.Changed("locale") {
		cfg.Locale = locale
	}
	if f.Changed("autoplay") {
		cfg.Playback.Autoplay = autoplay
	}
	if f.Changed("no-stream") {
		cfg.Playback.Streaming = !noStream
	}
	if f.Changed("log-file") {
		cfg.Logging.File = logFile
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}
}

// newLogger writes to cfg.Logging.File, or discards when none is set. stderr
// is taken by the TUI.
func newLogger(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	if cfg.File == "" {
		return zerolog.Nop(), nil, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return zerolog.New(f).Level(level).With().Timestamp().Logger(), f, nil
}

func newEnv(cmd *cobra.Command, spk player.Speaker) (*env, error) {
	hot, err := config.NewHotConfig(configFile, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	cfg := hot.Get()
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &env{hot: hot, cfg: cfg}
	log, logCloser, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, wrap("open log", err)
	}
	if logCloser != nil {
		e.closers = append(e.closers, func() { logCloser.Close() })
	}
	e.log = log

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	e.metrics = metrics.NewMetrics(reg)
	if cfg.Metrics.Addr != "" {
		e.serveMetrics(cfg.Metrics.Addr, reg)
	}

	pc := cfg.Playback
	e.out, err = player.NewOutput(spk,
		player.WithSampleRate(pc.SampleRate),
		player.WithReadyTimeout(pc.ReadyTimeout),
		player.WithReadyBytes(pc.ReadyBytes),
		player.RequireGesture(pc.RequireGesture),
		player.WithVolume(pc.VolumeDB),
		player.WithPresence(pc.PresenceDB),
		player.WithLogger(log),
	)
	if err != nil {
		e.close()
		return nil, wrap("audio output", err)
	}

	e.ctrl = playback.NewController(playback.FromOutput(e.out),
		playback.WithLogger(log),
		playback.WithMetrics(e.metrics),
		playback.WithAutoplay(pc.Autoplay),
		playback.WithStreaming(pc.Streaming),
		playback.WithLocale(i18n.Match(cfg.Locale)),
		playback.WithReadSize(cfg.Stream.ReadSize),
		playback.WithMaxBufferBytes(pc.MaxBufferBytes),
	)
	e.closers = append(e.closers, e.ctrl.Close)

	e.client = backend.NewClient(cfg.Backend.URL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithLogger(log),
		backend.WithMetrics(e.metrics),
	)

	e.watch(cmd)
	return e, nil
}

// watch applies the settings that are safe to change live: autoplay, locale,
// volume and presence.
func (e *env) watch(cmd *cobra.Command) {
	hot := e.hot
	hot.SetLogger(e.log)
	hot.OnReload(func(cfg *config.Config) {
		applyFlags(cmd, cfg)
		e.ctrl.SetAutoplay(cfg.Playback.Autoplay)
		e.ctrl.SetLocale(i18n.Match(cfg.Locale))
		e.out.SetVolume(cfg.Playback.VolumeDB)
		e.out.SetPresence(cfg.Playback.PresenceDB)
	})
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	if err := hot.Watch(ctx); err != nil {
		e.log.Warn().Err(err).Msg("config watch disabled")
	}
}

func (e *env) serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	e.closers = append(e.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
}

// close releases everything in reverse order of creation.
func (e *env) close() {
	if e.cancel != nil {
		e.cancel()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}
