package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"

	"voiceorb/stream"
)

const (
	DefaultSampleRate   = beep.SampleRate(44100)
	DefaultReadyTimeout = 5 * time.Second
	DefaultReadyBytes   = 4096
)

var (
	ErrHandleHeld = errors.New("player: output handle is held")
	ErrReleased   = errors.New("player: handle released")
	ErrNotLoaded  = errors.New("player: nothing loaded")
)

// Speaker is the physical device. DeviceSpeaker forwards to beep's speaker
// package.
type Speaker interface {
	Init(sr beep.SampleRate, bufferSize int) error
	Play(s ...beep.Streamer)
	Clear()
	Lock()
	Unlock()
}

// DeviceSpeaker is the system audio device.
type DeviceSpeaker struct{}

func (DeviceSpeaker) Init(sr beep.SampleRate, bufferSize int) error {
	return speaker.Init(sr, bufferSize)
}
func (DeviceSpeaker) Play(s ...beep.Streamer) { speaker.Play(s...) }
func (DeviceSpeaker) Clear()                  { speaker.Clear() }
func (DeviceSpeaker) Lock()                   { speaker.Lock() }
func (DeviceSpeaker) Unlock()                 { speaker.Unlock() }

// Output is the single physical audio output. The pipeline bound to it is
//
//	[Buffer] -> [Decode pump] -> [Resample] -> [Volume] -> [Tap] -> [Ctrl] -> [Speaker]
//
// Only the holder of its Handle may bind or control playback.
type Output struct {
	spk            Speaker
	sr             beep.SampleRate
	log            zerolog.Logger
	readyTimeout   time.Duration
	readyBytes     int
	requireGesture bool
	gesture        atomic.Bool
	presence       gain // dB, shared with the filter

	mu     sync.Mutex
	holder *Handle
	tap    *Tap
	volume float64 // dB, range [-30, +6]
}

// OutputOption configures an Output.
type OutputOption func(*Output)

func WithSampleRate(sr int) OutputOption {
	return func(o *Output) {
		if sr > 0 {
			o.sr = beep.SampleRate(sr)
		}
	}
}

func WithReadyTimeout(d time.Duration) OutputOption {
	return func(o *Output) {
		if d > 0 {
			o.readyTimeout = d
		}
	}
}

func WithReadyBytes(n int) OutputOption {
	return func(o *Output) {
		if n > 0 {
			o.readyBytes = n
		}
	}
}

// RequireGesture makes Play fail with AutoplayRejected until NoteGesture.
func RequireGesture(v bool) OutputOption {
	return func(o *Output) { o.requireGesture = v }
}

func WithVolume(db float64) OutputOption {
	return func(o *Output) { o.volume = max(min(db, 6), -30) }
}

func WithLogger(l zerolog.Logger) OutputOption {
	return func(o *Output) { o.log = l }
}

// NewOutput initializes spk and returns the Output bound to it.
func NewOutput(spk Speaker, opts ...OutputOption) (*Output, error) {
	o := &Output{
		spk:          spk,
		sr:           DefaultSampleRate,
		log:          zerolog.Nop(),
		readyTimeout: DefaultReadyTimeout,
		readyBytes:   DefaultReadyBytes,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With().Str("component", "output").Logger()
	if err := spk.Init(o.sr, o.sr.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	return o, nil
}

// SampleRate returns the device sample rate.
func (o *Output) SampleRate() beep.SampleRate { return o.sr }

// Acquire hands out the exclusive handle. It fails with ErrHandleHeld while
// another owner holds it; the previous holder must Release first.
func (o *Output) Acquire(owner string) (*Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.holder != nil {
		return nil, fmt.Errorf("%w by %s", ErrHandleHeld, o.holder.owner)
	}
	h := &Handle{out: o, owner: owner}
	o.holder = h
	o.log.Debug().Str("owner", owner).Msg("handle acquired")
	return h, nil
}

// Holder returns the owner of the handle, or "" when free.
func (o *Output) Holder() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.holder == nil {
		return ""
	}
	return o.holder.owner
}

// NoteGesture records a user gesture, satisfying the autoplay policy.
func (o *Output) NoteGesture() { o.gesture.Store(true) }

// CanStream reports whether contentType can play before the payload is
// complete.
func (o *Output) CanStream(contentType string) bool {
	return CodecFor(contentType).Streamable()
}

// AttachTap returns the output's tap, creating it on first use. A second
// attach returns the same tap.
func (o *Output) AttachTap() *Tap {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tap == nil {
		o.tap = NewTap(DefaultTapSize)
	}
	return o.tap
}

// SetVolume sets the volume in dB, clamped to [-30, +6].
func (o *Output) SetVolume(db float64) {
	o.mu.Lock()
	o.volume = max(min(db, 6), -30)
	vol := o.volume
	h := o.holder
	o.mu.Unlock()
	if h != nil {
		h.setVolume(vol)
	}
}

// Volume returns the current volume in dB.
func (o *Output) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// Handle is the exclusive binding between one owner and the Output.
type Handle struct {
	out   *Output
	owner string

	mu         sync.Mutex
	released   bool
	gen        int
	loadCancel context.CancelFunc
	reader     *BufferReader
	src        beep.StreamSeekCloser
	pump       *pump
	vol        *effects.Volume
	ctrl       *beep.Ctrl
	finished   chan struct{}
}

// Owner returns the owner the handle was acquired for.
func (h *Handle) Owner() string { return h.owner }

// Load binds buf as the new source, replacing any previous one. It waits for
// the source to become ready: at least the output's ready bytes buffered, or
// the stream ended. When the bounded wait expires it proceeds if any data is
// buffered and fails with ReadyTimeout otherwise. The output starts paused.
func (h *Handle) Load(ctx context.Context, buf *Buffer) error {
	o := h.out

	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return ErrReleased
	}
	h.unloadLocked()
	h.gen++
	gen := h.gen
	ctx, cancel := context.WithCancel(ctx)
	h.loadCancel = cancel
	h.mu.Unlock()
	defer cancel()

	deadline := time.Now().Add(o.readyTimeout)
	if err := h.awaitReady(ctx, buf, deadline); err != nil {
		return err
	}

	reader := buf.NewReader()
	src, format, err := h.decode(ctx, buf.Codec(), reader, deadline)
	if err != nil {
		return err
	}

	p := startPump(src)
	var s beep.Streamer = p
	if format.SampleRate != o.sr {
		s = beep.Resample(4, format.SampleRate, o.sr, s)
	}
	s = newPeaking(s, PresenceFreq, PresenceQ, &o.presence, o.sr)
	vol := &effects.Volume{Streamer: s, Base: 10, Volume: o.Volume() / 20}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released || h.gen != gen {
		reader.Close()
		p.Stop()
		src.Close()
		return ErrReleased
	}

	tap := o.AttachTap()
	tap.bind(vol)
	finished := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: tap, Paused: true}

	o.spk.Clear()
	o.spk.Play(beep.Seq(ctrl, beep.Callback(func() {
		close(finished)
	})))

	h.reader, h.src, h.pump, h.vol, h.ctrl, h.finished = reader, src, p, vol, ctrl, finished
	h.loadCancel = nil
	o.log.Debug().
		Str("owner", h.owner).
		Str("codec", buf.Codec().String()).
		Int("rate", int(format.SampleRate)).
		Msg("source bound")
	return nil
}

func (h *Handle) awaitReady(ctx context.Context, buf *Buffer, deadline time.Time) error {
	o := h.out
	wctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	err := buf.WaitFor(wctx, o.readyBytes)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		if n := buf.Len(); n > 0 {
			o.log.Debug().Int("buffered", n).Msg("ready wait expired, starting optimistically")
			return nil
		}
		return stream.Errorf(stream.KindReadyTimeout, "no audio within %v", o.readyTimeout)
	default:
		return err
	}
}

type decodeResult struct {
	src    beep.StreamSeekCloser
	format beep.Format
	err    error
}

// decode opens the decoder on its own goroutine, since reading the header may
// block on bytes that have not arrived yet.
func (h *Handle) decode(ctx context.Context, c Codec, reader *BufferReader, deadline time.Time) (beep.StreamSeekCloser, beep.Format, error) {
	ch := make(chan decodeResult, 1)
	go func() {
		src, format, err := decode(c, reader)
		ch <- decodeResult{src, format, err}
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	abandon := func() {
		reader.Close()
		if r := <-ch; r.err == nil {
			r.src.Close()
		}
	}

	select {
	case r := <-ch:
		if r.err != nil {
			reader.Close()
			return nil, beep.Format{}, stream.Wrap(stream.KindBufferAppend, fmt.Errorf("decode %s: %w", c, r.err))
		}
		return r.src, r.format, nil
	case <-timer.C:
		abandon()
		return nil, beep.Format{}, stream.Errorf(stream.KindReadyTimeout, "decoder not ready within %v", h.out.readyTimeout)
	case <-ctx.Done():
		abandon()
		return nil, beep.Format{}, ctx.Err()
	}
}

// Play starts or resumes output. Under a gesture requirement it fails with
// AutoplayRejected until the output has seen a user gesture.
func (h *Handle) Play() error {
	o := h.out
	if o.requireGesture && !o.gesture.Load() {
		return stream.Errorf(stream.KindAutoplayRejected, "playback requires a user gesture")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	if h.ctrl == nil {
		return ErrNotLoaded
	}
	o.spk.Lock()
	h.ctrl.Paused = false
	o.spk.Unlock()
	return nil
}

// Pause pauses output, keeping the binding.
func (h *Handle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctrl == nil {
		return
	}
	h.out.spk.Lock()
	h.ctrl.Paused = true
	h.out.spk.Unlock()
}

// Paused reports whether output is paused or nothing is bound.
func (h *Handle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctrl == nil {
		return true
	}
	h.out.spk.Lock()
	defer h.out.spk.Unlock()
	return h.ctrl.Paused
}

// Loaded reports whether a source is bound.
func (h *Handle) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctrl != nil
}

// Finished is closed once the bound source has played to its end. It is nil
// before the first Load.
func (h *Handle) Finished() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

// Samples returns the last n output samples for analysis.
func (h *Handle) Samples(n int) []float64 {
	h.mu.Lock()
	loaded := h.ctrl != nil && !h.released
	h.mu.Unlock()
	if !loaded {
		return nil
	}
	return h.out.AttachTap().Samples(n)
}

func (h *Handle) setVolume(db float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.vol == nil {
		return
	}
	h.out.spk.Lock()
	h.vol.Volume = db / 20
	h.out.spk.Unlock()
}

// Release stops output, tears down the binding and frees the output for the
// next Acquire. It returns after the decoder goroutine has exited and is
// idempotent.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	if h.loadCancel != nil {
		h.loadCancel()
		h.loadCancel = nil
	}
	h.unloadLocked()
	h.mu.Unlock()

	o := h.out
	o.mu.Lock()
	if o.holder == h {
		o.holder = nil
	}
	o.mu.Unlock()
	o.log.Debug().Str("owner", h.owner).Msg("handle released")
}

func (h *Handle) unloadLocked() {
	if h.ctrl == nil {
		return
	}
	h.out.spk.Clear()
	h.reader.Close()
	h.pump.Stop()
	h.src.Close()
	h.out.AttachTap().bind(nil)
	h.reader, h.src, h.pump, h.vol, h.ctrl = nil, nil, nil, nil, nil
}
