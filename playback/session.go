package playback

import (
	"context"
	"sync"
	"time"

	"voiceorb/i18n"
	"voiceorb/player"
	"voiceorb/stream"
)

// Session is one playable reply and its lifecycle. All methods are safe for
// concurrent use.
type Session struct {
	c       *Controller
	id      string
	created time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	origin      Origin
	status      Status
	kind        stream.Kind
	partial     bool
	buf         *player.Buffer
	binding     Binding
	bound       chan struct{} // closed when binding is dropped
	noAutoStart bool
	starting    bool
	stopped     bool // ended by Dispose before finishing on its own
	fallingBack bool // errored and replaced by a buffered session
	done        chan struct{}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Origin() Origin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Kind returns the error kind of an Errored session, KindUnknown otherwise.
func (s *Session) Kind() stream.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// Failed reports whether the session ended in Errored.
func (s *Session) Failed() bool {
	return s.Status() == Errored
}

// Stopped reports whether the session was disposed before it finished on
// its own. A stopped session is Completed.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Partial reports whether the stream ended early after some audio.
func (s *Session) Partial() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partial
}

// StatusText returns the localized status line.
func (s *Session) StatusText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.textLocked()
}

func (s *Session) textLocked() string {
	lang := s.c.Locale()
	if s.status == Errored {
		return i18n.T(lang, errorKey(s.kind))
	}
	if s.stopped {
		return i18n.T(lang, i18n.Stopped)
	}
	return i18n.T(lang, statusKey(s.status, s.partial))
}

// Done is closed once the session reaches a terminal status.
func (s *Session) Done() <-chan struct{} { return s.done }

// Toggle is the user's play/pause control. From AutoplayBlocked or Paused it
// claims the output and starts playback, rebinding from the start when the
// output was lost to another session. From Playing it pauses. A toggle that
// arrives while a start is pending is absorbed by it; in any other status
// Toggle does nothing.
func (s *Session) Toggle(ctx context.Context) error {
	s.c.dev.NoteGesture()

	s.mu.Lock()
	if s.starting {
		s.mu.Unlock()
		return nil
	}
	switch s.status {
	case Playing:
		if s.binding != nil {
			s.binding.Pause()
		}
		s.transitionLocked(Paused, stream.KindUnknown)
		s.mu.Unlock()
		return nil
	case AutoplayBlocked, Paused:
		s.starting = true
		s.mu.Unlock()
		return s.c.activate(ctx, s)
	default:
		s.mu.Unlock()
		return nil
	}
}

// Dispose stops the session and frees the output if it holds it. A session
// that has not reached a terminal status ends Completed and reports itself
// as stopped.
func (s *Session) Dispose() {
	s.cancel()
	s.c.stop(s)
	s.c.forget(s)
}

// transitionLocked moves the session along a legal edge and emits the event.
// Callers hold s.mu.
func (s *Session) transitionLocked(to Status, kind stream.Kind) bool {
	from := s.status
	if !CanTransition(from, to) {
		if from != to {
			s.c.log.Debug().Str("session", s.id).Stringer("from", from).Stringer("to", to).Msg("transition refused")
		}
		return false
	}
	s.status = to
	if to == Errored {
		s.kind = kind
	}
	s.c.log.Debug().Str("session", s.id).Stringer("from", from).Stringer("to", to).Msg("status")
	s.c.emit(s.eventLocked(from))

	switch to {
	case AutoplayBlocked:
		s.c.metrics.RecordAutoplayBlocked()
	case Completed, Errored:
		statusLabel, kindLabel := to.String(), ""
		switch {
		case to == Errored:
			kindLabel = kind.String()
		case s.stopped:
			statusLabel = "Stopped"
		}
		s.c.metrics.RecordSessionFinished(statusLabel, kindLabel)
		close(s.done)
		s.cancel()
	}
	return true
}

func (s *Session) eventLocked(from Status) Event {
	return Event{
		Session:     s.id,
		Origin:      s.origin,
		From:        from,
		To:          s.status,
		Kind:        s.kind,
		Partial:     s.partial,
		FallingBack: s.fallingBack,
		Text:        s.textLocked(),
		At:          time.Now(),
	}
}

// markPartial records an early end of stream and emits a notice without
// changing status.
func (s *Session) markPartial() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partial || s.status.Terminal() {
		return
	}
	s.partial = true
	e := s.eventLocked(s.status)
	e.Text = i18n.T(s.c.Locale(), i18n.StreamEndedEarly)
	s.c.emit(e)
}

func (s *Session) setBuffer(b *player.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = b
}

func (s *Session) buffer() *player.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf
}

func (s *Session) setOrigin(o Origin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origin = o
}

// preempt gives the output up to a newer session. It returns after the
// binding is released. Callers hold c.mu.
func (s *Session) preempt() {
	s.mu.Lock()
	b := s.dropBindingLocked()
	switch s.status {
	case Playing:
		s.transitionLocked(Paused, stream.KindUnknown)
	case Idle, Connecting, Buffering:
		s.noAutoStart = true
	}
	s.mu.Unlock()
	if b != nil {
		b.Release()
	}
}

// dropBindingLocked detaches the binding and returns it for release.
func (s *Session) dropBindingLocked() Binding {
	b := s.binding
	if b != nil {
		s.binding = nil
		close(s.bound)
		s.bound = nil
	}
	return b
}

func errorKey(k stream.Kind) i18n.Key {
	switch k {
	case stream.KindInvalidResponse:
		return i18n.ErrInvalidResponse
	case stream.KindTransportFailure:
		return i18n.ErrTransportFailure
	case stream.KindPartialStream:
		return i18n.ErrPartialStream
	case stream.KindBufferAppend:
		return i18n.ErrBufferAppend
	case stream.KindReadyTimeout:
		return i18n.ErrReadyTimeout
	default:
		return i18n.ErrGeneric
	}
}
