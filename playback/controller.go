package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"voiceorb/metrics"
	"voiceorb/player"
	"voiceorb/stream"
)

// DefaultEventBuffer is the capacity of the Events channel.
const DefaultEventBuffer = 64

var (
	ErrClosed  = errors.New("playback: controller closed")
	errSettled = errors.New("playback: session already finished")
)

// Fetcher performs the request for one reply. It must honor ctx.
type Fetcher func(ctx context.Context) (*stream.Response, error)

// Controller is the single authority over the output device. Ownership moves
// between sessions only by releasing the current binding and then acquiring
// a new one, both under the controller's lock.
type Controller struct {
	dev      Device
	log      zerolog.Logger
	metrics  *metrics.Metrics
	readSize int
	maxBytes int

	autoplay  atomic.Bool
	streaming atomic.Bool
	thinking  atomic.Bool
	thinkFrom atomic.Int64

	cfgMu  sync.RWMutex
	locale language.Tag

	ctx    context.Context
	cancel context.CancelFunc
	events *dispatcher
	wg     sync.WaitGroup

	mu       sync.Mutex
	owner    *Session
	latest   *Reply // the reply thinking waits for
	sessions map[string]*Session
	closed   bool
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithAutoplay sets whether a reply starts playing as soon as it is ready.
func WithAutoplay(v bool) Option {
	return func(c *Controller) { c.autoplay.Store(v) }
}

// WithStreaming sets whether replies may play before they are complete.
func WithStreaming(v bool) Option {
	return func(c *Controller) { c.streaming.Store(v) }
}

func WithLocale(t language.Tag) Option {
	return func(c *Controller) { c.locale = t }
}

func WithReadSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.readSize = n
		}
	}
}

func WithMaxBufferBytes(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// NewController returns a Controller driving dev.
func NewController(dev Device, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		dev:      dev,
		log:      zerolog.Nop(),
		readSize: stream.DefaultReadSize,
		maxBytes: player.DefaultMaxBytes,
		locale:   language.English,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	c.autoplay.Store(true)
	c.streaming.Store(true)
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "playback").Logger()
	c.events = newDispatcher(DefaultEventBuffer)
	return c
}

// Events delivers every status change in order. The channel is closed by
// Close.
func (c *Controller) Events() <-chan Event { return c.events.out }

func (c *Controller) emit(e Event) { c.events.push(e) }

// Play starts a new session for the reply fetch returns. Whatever session
// holds the output is preempted first. Cancelling ctx disposes the reply.
func (c *Controller) Play(ctx context.Context, fetch Fetcher) (*Reply, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	s := c.newSessionLocked(Streamed)
	c.claimLocked(s)
	r := &Reply{first: s, cur: s, done: make(chan struct{})}
	c.latest = r
	s.mu.Lock()
	s.transitionLocked(Connecting, stream.KindUnknown)
	s.mu.Unlock()
	c.wg.Add(1)
	c.mu.Unlock()

	context.AfterFunc(ctx, r.Dispose)
	go func() {
		defer c.wg.Done()
		c.settleReply(r, c.run(r, s, fetch))
	}()
	return r, nil
}

func (c *Controller) newSessionLocked(origin Origin) *Session {
	ctx, cancel := context.WithCancel(c.ctx)
	s := &Session{
		c:       c,
		id:      uuid.NewString(),
		created: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		origin:  origin,
		status:  Idle,
		done:    make(chan struct{}),
	}
	c.sessions[s.id] = s
	c.metrics.RecordSessionStarted(origin.String())
	return s
}

// claimLocked makes s the owner, releasing the previous owner's binding
// before returning.
func (c *Controller) claimLocked(s *Session) {
	if c.owner == s {
		return
	}
	if c.owner != nil {
		c.log.Debug().Str("from", c.owner.id).Str("to", s.id).Msg("preempting")
		c.owner.preempt()
		c.metrics.RecordPreemption()
	}
	c.owner = s
}

// run streams the reply into s and returns the session the reply ends up
// on, which is a fallback session when streaming failed before any audio.
func (c *Controller) run(r *Reply, s *Session, fetch Fetcher) *Session {
	log := c.log.With().Str("session", s.id).Logger()

	resp, err := fetch(s.ctx)
	if err == nil {
		err = resp.Validate()
	}
	if err != nil {
		resp.Close()
		if s.ctx.Err() != nil {
			return s
		}
		return c.fallBack(r, s, fetch, classify(err, stream.KindTransportFailure), err)
	}

	if !c.streaming.Load() || !c.dev.CanStream(resp.ContentType) {
		log.Debug().Str("content_type", resp.ContentType).Msg("streaming unavailable, reading whole payload")
		s.setOrigin(Buffered)
		c.metrics.RecordFallback("unsupported")
		c.playPayload(s, resp)
		return s
	}

	buf := player.NewBuffer(resp.ContentType, c.maxBytes)
	s.setBuffer(buf)
	in, err := stream.NewIngestor(resp, c.readSize)
	if err != nil {
		resp.Close()
		return c.fallBack(r, s, fetch, classify(err, stream.KindInvalidResponse), err)
	}

	res, err := c.appender(s, buf).Run(s.ctx, in)
	switch {
	case s.ctx.Err() != nil:
		return s
	case err == nil && res.Appended == 0:
		return c.fallBack(r, s, fetch, stream.KindTransportFailure, errors.New("stream ended before any audio"))
	case res.Appended == 0 && err != nil:
		return c.fallBack(r, s, fetch, classify(err, stream.KindBufferAppend), err)
	default:
		log.Debug().Err(err).Int("chunks", res.Appended).Int("bytes", res.Bytes).Msg("stream finished")
		return s
	}
}

// fallBack ends the streaming session with kind and replays the reply from
// a fresh request as one whole payload in a new buffered session.
func (c *Controller) fallBack(r *Reply, old *Session, fetch Fetcher, kind stream.Kind, cause error) *Session {
	c.log.Warn().Err(cause).Str("session", old.id).Stringer("kind", kind).Msg("streaming failed, falling back to whole payload")
	c.metrics.RecordFallback(kind.String())

	c.mu.Lock()
	// r.mu is held from the check to the switch so a concurrent Dispose
	// either stops the fallback here or finds the new session.
	r.mu.Lock()
	owned := c.owner == old
	retry := !c.closed && !r.disposed
	old.mu.Lock()
	old.fallingBack = retry
	old.mu.Unlock()
	c.finishLocked(old, Errored, kind)
	if !retry {
		r.mu.Unlock()
		c.mu.Unlock()
		return old
	}
	s := c.newSessionLocked(Buffered)
	if owned {
		c.owner = s
	} else {
		s.noAutoStart = true
	}
	r.cur = s
	r.mu.Unlock()
	s.mu.Lock()
	s.transitionLocked(Connecting, stream.KindUnknown)
	s.mu.Unlock()
	c.mu.Unlock()

	resp, err := fetch(s.ctx)
	if err != nil {
		resp.Close()
		if s.ctx.Err() == nil {
			c.finish(s, Errored, classify(err, stream.KindTransportFailure))
		}
		return s
	}
	c.playPayload(s, resp)
	return s
}

// playPayload reads resp completely and appends it as a single chunk.
func (c *Controller) playPayload(s *Session, resp *stream.Response) {
	p, err := stream.ReadPayload(s.ctx, resp, c.maxBytes)
	if err != nil {
		if s.ctx.Err() == nil {
			c.finish(s, Errored, classify(err, stream.KindTransportFailure))
		}
		return
	}
	buf := player.NewBuffer(resp.ContentType, c.maxBytes)
	s.setBuffer(buf)
	if _, err := c.appender(s, buf).Run(s.ctx, p); err != nil && s.ctx.Err() == nil {
		c.finish(s, Errored, classify(err, stream.KindBufferAppend))
	}
}

func (c *Controller) appender(s *Session, buf *player.Buffer) *stream.Appender {
	return stream.NewAppender(buf,
		stream.WithLogger(c.log.With().Str("session", s.id).Logger()),
		stream.OnAppend(func(ch stream.Chunk, took time.Duration) {
			c.metrics.RecordAppend(ch.Len(), took.Seconds())
		}),
		stream.OnFirstAppend(func() {
			c.metrics.RecordFirstAppend(time.Since(s.created).Seconds())
			c.ready(s)
		}),
		stream.OnPartial(func(err error) {
			c.log.Warn().Err(err).Str("session", s.id).Msg("stream ended early")
			c.metrics.RecordPartialStream()
			s.markPartial()
		}),
	)
}

// ready moves s to Buffering and starts playback on its own goroutine.
func (c *Controller) ready(s *Session) {
	s.mu.Lock()
	ok := s.transitionLocked(Buffering, stream.KindUnknown)
	s.mu.Unlock()
	if !ok {
		return
	}
	c.mu.Lock()
	if c.latest != nil && c.latest.Session() == s {
		c.thinking.Store(false)
	}
	c.mu.Unlock()
	if !c.track() {
		return
	}
	go func() {
		defer c.wg.Done()
		c.autoStart(s)
	}()
}

// track adds a goroutine to the wait group unless the controller is
// closing.
func (c *Controller) track() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	return true
}

func (c *Controller) autoStart(s *Session) {
	s.mu.Lock()
	if s.status != Buffering || s.starting {
		s.mu.Unlock()
		return
	}
	if !c.autoplay.Load() || s.noAutoStart {
		s.transitionLocked(AutoplayBlocked, stream.KindUnknown)
		s.mu.Unlock()
		return
	}
	s.starting = true
	s.mu.Unlock()

	if err := c.activate(s.ctx, s); err != nil {
		c.log.Debug().Err(err).Str("session", s.id).Msg("auto start")
	}
}

// activate claims the output for s, loads its buffer if the binding is
// fresh and starts output. The caller has set s.starting.
func (c *Controller) activate(ctx context.Context, s *Session) error {
	b, bound, err := c.claim(s)
	if err != nil {
		return c.settle(s, nil, err)
	}
	if !b.Loaded() {
		lctx, cancel := mergeContexts(ctx, s.ctx)
		err = b.Load(lctx, s.buffer())
		cancel()
		if err != nil {
			return c.settle(s, b, err)
		}
		if c.track() {
			go c.watch(s, b, bound)
		}
	}
	return c.settle(s, b, b.Play())
}

func (c *Controller) claim(s *Session) (Binding, <-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, ErrClosed
	}
	if s.Status().Terminal() {
		return nil, nil, errSettled
	}
	c.claimLocked(s)

	s.mu.Lock()
	if s.binding != nil {
		b, bound := s.binding, s.bound
		s.mu.Unlock()
		return b, bound, nil
	}
	s.mu.Unlock()

	b, err := c.dev.Acquire(s.id)
	if err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	s.binding = b
	s.bound = make(chan struct{})
	s.noAutoStart = false
	bound := s.bound
	s.mu.Unlock()
	return b, bound, nil
}

// settle applies the outcome of a start attempt to s.
func (c *Controller) settle(s *Session, b Binding, err error) error {
	s.mu.Lock()
	s.starting = false
	switch {
	case s.status.Terminal():
		s.mu.Unlock()
		return nil
	case b == nil || s.binding != b:
		// The output went to another session while starting.
		if s.status == Buffering {
			s.transitionLocked(AutoplayBlocked, stream.KindUnknown)
		}
		s.mu.Unlock()
		if b == nil {
			return err
		}
		return nil
	case err == nil:
		s.transitionLocked(Playing, stream.KindUnknown)
		s.mu.Unlock()
		return nil
	case stream.IsKind(err, stream.KindAutoplayRejected):
		c.log.Debug().Str("session", s.id).Msg("autoplay rejected, waiting for a gesture")
		s.transitionLocked(AutoplayBlocked, stream.KindUnknown)
		s.mu.Unlock()
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	kind := classify(err, stream.KindBufferAppend)
	c.log.Error().Err(err).Str("session", s.id).Stringer("kind", kind).Msg("playback failed")
	c.finish(s, Errored, kind)
	return err
}

// watch completes s once its binding has played everything out.
func (c *Controller) watch(s *Session, b Binding, bound <-chan struct{}) {
	defer c.wg.Done()
	select {
	case <-b.Finished():
		c.complete(s, b)
	case <-bound:
	case <-s.ctx.Done():
	}
}

func (c *Controller) complete(s *Session, b Binding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.mu.Lock()
	if s.binding != b {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	c.finishLocked(s, Completed, stream.KindUnknown)
}

// stop ends s on the caller's request.
func (c *Controller) stop(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.mu.Lock()
	if !s.status.Terminal() {
		s.stopped = true
	}
	s.mu.Unlock()
	c.finishLocked(s, Completed, stream.KindUnknown)
}

func (c *Controller) finish(s *Session, to Status, kind stream.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishLocked(s, to, kind)
}

// finishLocked moves s to a terminal status and frees the output if s held
// it. Callers hold c.mu.
func (c *Controller) finishLocked(s *Session, to Status, kind stream.Kind) {
	s.mu.Lock()
	if !s.transitionLocked(to, kind) {
		s.mu.Unlock()
		return
	}
	b := s.dropBindingLocked()
	s.mu.Unlock()
	if b != nil {
		b.Release()
	}
	if c.owner == s {
		c.owner = nil
	}
}

func (c *Controller) forget(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, s.id)
}

// settleReply closes r.done once final is terminal, and ends thinking if r
// is the newest reply. Close disposes every session, so the goroutine cannot
// outlive the controller's sessions.
func (c *Controller) settleReply(r *Reply, final *Session) {
	go func() {
		<-final.Done()
		c.mu.Lock()
		if c.latest == r {
			c.thinking.Store(false)
		}
		c.mu.Unlock()
		close(r.done)
	}()
}

// Active returns the session that owns the output, or nil.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// Session looks up a live session by id.
func (c *Controller) Session(id string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[id]
}

// Playing reports whether the owning session is audible.
func (c *Controller) Playing() bool {
	s := c.Active()
	return s != nil && s.Status() == Playing
}

// Samples returns the last n samples of the owning session's output, or nil
// when nothing is playing.
func (c *Controller) Samples(n int) []float64 {
	s := c.Active()
	if s == nil {
		return nil
	}
	s.mu.Lock()
	b := s.binding
	playing := s.status == Playing
	s.mu.Unlock()
	if b == nil || !playing {
		return nil
	}
	return b.Samples(n)
}

// SetThinking marks whether an answer is being prepared.
func (c *Controller) SetThinking(v bool) {
	if v {
		c.thinkFrom.Store(time.Now().UnixNano())
	}
	c.thinking.Store(v)
}

// Thinking reports whether an answer is being prepared and for how long.
// It is cleared automatically when the newest reply reaches Buffering,
// including through its fallback session, or ends without audio.
func (c *Controller) Thinking() (bool, time.Duration) {
	if !c.thinking.Load() {
		return false, 0
	}
	return true, time.Since(time.Unix(0, c.thinkFrom.Load()))
}

func (c *Controller) SetAutoplay(v bool) { c.autoplay.Store(v) }
func (c *Controller) Autoplay() bool     { return c.autoplay.Load() }

func (c *Controller) SetStreaming(v bool) { c.streaming.Store(v) }
func (c *Controller) Streaming() bool     { return c.streaming.Load() }

// SetLocale changes the language of status texts. It never affects control
// flow.
func (c *Controller) SetLocale(t language.Tag) {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	c.locale = t
}

func (c *Controller) Locale() language.Tag {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.locale
}

// Close disposes every session, waits for all goroutines and closes the
// Events channel.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		s.Dispose()
	}
	c.cancel()
	c.wg.Wait()
	c.events.close(time.Second)
}

// classify returns the kind carried by err, or def.
func classify(err error, def stream.Kind) stream.Kind {
	if k := stream.KindOf(err); k != stream.KindUnknown {
		return k
	}
	return def
}

func mergeContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Reply is the caller's view of one answer. It follows the streaming session
// and, after a failure before any audio, the buffered session replacing it.
type Reply struct {
	mu       sync.Mutex
	first    *Session
	cur      *Session
	disposed bool
	done     chan struct{}
}

// Session returns the session currently carrying the reply.
func (r *Reply) Session() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}

// FellBack reports whether the reply moved to a whole-payload session.
func (r *Reply) FellBack() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != r.first
}

// Owns reports whether the session with id belongs to this reply.
func (r *Reply) Owns(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.first.id == id || r.cur.id == id
}

// Toggle toggles the current session.
func (r *Reply) Toggle(ctx context.Context) error {
	return r.Session().Toggle(ctx)
}

// Dispose disposes the current session. A reply disposed before its
// fallback starts does not fall back.
func (r *Reply) Dispose() {
	r.mu.Lock()
	r.disposed = true
	s := r.cur
	r.mu.Unlock()
	s.Dispose()
}

// Done is closed when the final session of the reply is terminal.
func (r *Reply) Done() <-chan struct{} { return r.done }

