// Package ui implements the Bubbletea chat TUI around the audio orb.
package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"voiceorb/backend"
	"voiceorb/history"
	"voiceorb/i18n"
	"voiceorb/playback"
	"voiceorb/spectrum"
)

// Asker is the backend as the TUI uses it.
type Asker interface {
	Voice(question string) playback.Fetcher
	Chat(ctx context.Context, question string) (backend.Answer, error)
}

// Options configures a Model.
type Options struct {
	Voice         bool
	Bars          int
	Bands         int
	Smoothing     float64
	FrameInterval time.Duration
	SampleRate    int
	Logger        zerolog.Logger
}

type frameMsg time.Time

type eventMsg playback.Event

type answerMsg struct {
	answer backend.Answer
	err    error
}

type toggledMsg struct{ err error }

// Model is the Bubbletea model for the chat TUI.
type Model struct {
	ctrl     *playback.Controller
	asker    Asker
	hist     *history.History
	vis      *Visualizer
	analyzer *spectrum.Analyzer
	input    textinput.Model
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	voice    bool
	interval time.Duration
	ticking  bool
	snapshot spectrum.Snapshot
	pending  *playback.Reply // voice reply whose answer is still thinking
	hScroll  int             // scroll offset for the history view
	hVisible int             // max visible exchanges
	err      error
	quitting bool
	width    int
	height   int
}

// NewModel creates a Model wired to the controller and the backend.
func NewModel(ctrl *playback.Controller, asker Asker, opts Options) Model {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = time.Second / 30
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	ti := textinput.New()
	ti.Prompt = "› "
	ti.CharLimit = 500
	ti.Width = panelWidth - 4
	ti.Placeholder = i18n.T(ctrl.Locale(), i18n.TypeQuestion)
	ti.Focus()

	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ctrl:     ctrl,
		asker:    asker,
		hist:     history.New(),
		vis:      NewVisualizer(opts.Bars),
		analyzer: spectrum.NewAnalyzer(float64(opts.SampleRate), opts.Bands, opts.Smoothing),
		input:    ti,
		log:      opts.Logger.With().Str("component", "ui").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		voice:    opts.Voice,
		interval: opts.FrameInterval,
		hVisible: 4,
	}
}

// Init listens for session events and requests the terminal size. Frames are
// scheduled only once something animates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitEvent(m.ctrl.Events()), tea.WindowSize(), textinput.Blink)
}

func waitEvent(events <-chan playback.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func frameCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Update handles messages: key presses, frames, session events and answers.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		cmd := m.handleKey(msg)
		if m.quitting {
			m.cancel()
			return m, tea.Quit
		}
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.hVisible = max(2, min(8, (msg.Height-24)/2))

	case eventMsg:
		cmd := m.handleEvent(playback.Event(msg))
		return m, tea.Batch(waitEvent(m.ctrl.Events()), cmd)

	case answerMsg:
		m.ctrl.SetThinking(false)
		m.resolveText(msg)
		return m, nil

	case toggledMsg:
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.log.Warn().Err(msg.err).Msg("toggle failed")
		}
		return m, m.startFrames()

	case frameMsg:
		if !m.animating() {
			m.ticking = false
			m.snapshot = nil
			m.analyzer.Reset()
			return m, nil
		}
		if m.ctrl.Playing() {
			m.snapshot = m.analyzer.Analyze(m.ctrl.Samples(spectrum.FFTSize))
		}
		return m, frameCmd(m.interval)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// animating reports whether the orb needs frames: audio is playing or an
// answer is pending.
func (m Model) animating() bool {
	thinking, _ := m.ctrl.Thinking()
	return thinking || m.ctrl.Playing()
}

// startFrames schedules the frame loop unless it already runs.
func (m *Model) startFrames() tea.Cmd {
	if m.ticking || !m.animating() {
		return nil
	}
	m.ticking = true
	return frameCmd(m.interval)
}

func (m *Model) handleEvent(e playback.Event) tea.Cmd {
	settled := !e.FallingBack && (e.From == playback.Connecting || e.To.Terminal())
	if m.pending != nil && m.pending.Owns(e.Session) && settled {
		m.hist.ResolveLast("", m.pending)
		m.pending = nil
	}
	if e.To == playback.Playing && e.From != e.To {
		m.analyzer.Reset()
		return m.startFrames()
	}
	return nil
}

func (m *Model) resolveText(msg answerMsg) {
	lang := m.ctrl.Locale()
	switch {
	case msg.err == nil:
		m.hist.ResolveLast(msg.answer.Text, nil)
	case errors.Is(msg.err, backend.ErrRateLimited):
		m.hist.FailLast(i18n.T(lang, i18n.RateLimited))
	default:
		m.log.Error().Err(msg.err).Msg("chat failed")
		m.hist.FailLast(i18n.T(lang, i18n.ErrGeneric))
	}
}

// send posts the typed question on the voice or the text endpoint.
func (m *Model) send() tea.Cmd {
	q := strings.TrimSpace(m.input.Value())
	if q == "" || m.hist.Pending() {
		return nil
	}
	m.input.Reset()
	m.err = nil
	lang := m.ctrl.Locale()
	m.hist.Add(q, i18n.T(lang, i18n.Thinking))
	m.adjustScroll()
	m.ctrl.SetThinking(true)

	if m.voice {
		r, err := m.ctrl.Play(m.ctx, m.asker.Voice(q))
		if err != nil {
			m.ctrl.SetThinking(false)
			m.hist.FailLast(i18n.T(lang, i18n.ErrGeneric))
			m.err = err
			return nil
		}
		m.pending = r
		return m.startFrames()
	}

	ctx, asker := m.ctx, m.asker
	return tea.Batch(m.startFrames(), func() tea.Msg {
		a, err := asker.Chat(ctx, q)
		return answerMsg{answer: a, err: err}
	})
}

// toggleSelected plays or pauses the selected voice answer. Toggle may wait
// for the output, so it runs off the update loop.
func (m *Model) toggleSelected() tea.Cmd {
	e, idx := m.hist.Current()
	if idx < 0 || e.Reply == nil {
		return nil
	}
	ctx, r := m.ctx, e.Reply
	return func() tea.Msg {
		return toggledMsg{err: r.Toggle(ctx)}
	}
}

// adjustScroll ensures the selected exchange is visible in the history view.
func (m *Model) adjustScroll() {
	idx := m.hist.Index()
	if idx < m.hScroll {
		m.hScroll = idx
	}
	if idx >= m.hScroll+m.hVisible {
		m.hScroll = idx - m.hVisible + 1
	}
	m.hScroll = max(0, m.hScroll)
}
