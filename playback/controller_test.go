package playback

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceorb/i18n"
	"voiceorb/player"
	"voiceorb/player/playertest"
	"voiceorb/stream"
)

// chunkBody yields one part per Read, then err (io.EOF when nil).
type chunkBody struct {
	mu     sync.Mutex
	parts  [][]byte
	err    error
	closed bool
}

func (b *chunkBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, errors.New("body closed")
	}
	if len(b.parts) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.parts[0])
	b.parts[0] = b.parts[0][n:]
	if len(b.parts[0]) == 0 {
		b.parts = b.parts[1:]
	}
	return n, nil
}

func (b *chunkBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func wavResponse(parts [][]byte, tail error) *stream.Response {
	return &stream.Response{StatusCode: 200, ContentType: "audio/wav", Body: &chunkBody{parts: parts, err: tail}}
}

// fetchSeq returns a Fetcher serving the responses in order and counting
// calls.
func fetchSeq(resps ...func() *stream.Response) (Fetcher, *atomic.Int32) {
	var calls atomic.Int32
	return func(ctx context.Context) (*stream.Response, error) {
		i := int(calls.Add(1)) - 1
		if i >= len(resps) {
			return nil, errors.New("no more responses")
		}
		return resps[i](), nil
	}, &calls
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func record(c *Controller) *recorder {
	r := &recorder{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for e := range c.Events() {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) has(session string, from, to Status) bool {
	for _, e := range r.snapshot() {
		if e.Session == session && e.From == from && e.To == to {
			return true
		}
	}
	return false
}

type harness struct {
	out *player.Output
	spk *playertest.Speaker
	c   *Controller
	rec *recorder
}

// newHarness runs a controller over a real output whose speaker is pulled
// by a background goroutine, faster than real time.
func newHarness(t *testing.T, outOpts []player.OutputOption, opts ...Option) *harness {
	t.Helper()
	spk := &playertest.Speaker{}
	outOpts = append([]player.OutputOption{
		player.WithSampleRate(8000),
		player.WithReadyTimeout(time.Second),
	}, outOpts...)
	out, err := player.NewOutput(spk, outOpts...)
	require.NoError(t, err)

	c := NewController(FromOutput(out), opts...)
	rec := record(c)

	stop := make(chan struct{})
	pulled := make(chan struct{})
	go func() {
		defer close(pulled)
		for {
			select {
			case <-stop:
				return
			default:
			}
			spk.Pull(256)
			time.Sleep(time.Millisecond)
		}
	}()
	t.Cleanup(func() {
		c.Close()
		close(stop)
		<-pulled
		<-rec.done
	})
	return &harness{out: out, spk: spk, c: c, rec: rec}
}

func waitStatus(t *testing.T, s *Session, want Status) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Status() == want }, 3*time.Second, time.Millisecond,
		"session stuck in %s, want %s", s.Status(), want)
}

func waitDone(t *testing.T, r *Reply) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("reply not done, status %s", r.Session().Status())
	}
}

func TestScenarioThreeChunksCompletes(t *testing.T) {
	h := newHarness(t, nil)
	wav := playertest.WAV(8000, 3000, 440)
	parts := playertest.Split(wav, (len(wav)+2)/3)
	require.Len(t, parts, 3)

	fetch, calls := fetchSeq(func() *stream.Response { return wavResponse(parts, nil) })
	r, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	waitDone(t, r)

	s := r.Session()
	assert.Equal(t, Completed, s.Status())
	assert.False(t, s.Failed())
	assert.False(t, s.Partial())
	assert.False(t, r.FellBack())
	assert.Equal(t, Streamed, s.Origin())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "Complete", s.StatusText())

	assert.True(t, h.rec.has(s.ID(), Idle, Connecting))
	assert.True(t, h.rec.has(s.ID(), Connecting, Buffering))
	assert.True(t, h.rec.has(s.ID(), Buffering, Playing))
	assert.True(t, h.rec.has(s.ID(), Playing, Completed))
	assert.Nil(t, h.c.Active())
}

func TestScenarioFailureAfterFirstChunkDegrades(t *testing.T) {
	h := newHarness(t, nil, WithAutoplay(false))
	wav := playertest.WAV(8000, 3000, 440)
	fetch, calls := fetchSeq(func() *stream.Response {
		return wavResponse([][]byte{wav[:4000]}, errors.New("connection reset"))
	})

	r, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	s := r.Session()
	waitStatus(t, s, AutoplayBlocked)
	require.Eventually(t, s.Partial, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "no fallback after audio was appended")

	require.Eventually(t, func() bool {
		for _, e := range h.rec.snapshot() {
			if e.Session == s.ID() && e.Notice() && e.Text == "Stream ended early" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Toggle(context.Background()))
	waitDone(t, r)
	assert.Equal(t, Completed, s.Status())
	assert.False(t, s.Failed())
	assert.Equal(t, "Stream ended early", s.StatusText())
	assert.True(t, h.rec.has(s.ID(), AutoplayBlocked, Playing))
}

func TestScenarioInvalidResponseFallsBack(t *testing.T) {
	h := newHarness(t, nil)
	wav := playertest.WAV(8000, 2000, 440)
	fetch, calls := fetchSeq(
		func() *stream.Response {
			return &stream.Response{StatusCode: 200, ContentType: "application/json", Body: io.NopCloser(strings.NewReader(`{"error":"x"}`))}
		},
		func() *stream.Response { return wavResponse([][]byte{wav}, nil) },
	)

	r, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	first := r.first
	waitStatus(t, first, Errored)
	assert.Equal(t, stream.KindInvalidResponse, first.Kind())
	assert.Equal(t, "The server did not send audio", first.StatusText())
	assert.False(t, h.rec.has(first.ID(), Connecting, Buffering))
	for _, e := range h.rec.snapshot() {
		if e.Session == first.ID() && e.To == Errored {
			assert.True(t, e.FallingBack)
		}
	}

	waitDone(t, r)
	assert.True(t, r.FellBack())
	s := r.Session()
	assert.NotEqual(t, first.ID(), s.ID())
	assert.Equal(t, Buffered, s.Origin())
	assert.Equal(t, Completed, s.Status())
	assert.Equal(t, int32(2), calls.Load())
}

func TestScenarioAutoplayRejectedThenToggle(t *testing.T) {
	h := newHarness(t, []player.OutputOption{player.RequireGesture(true)})
	wav := playertest.WAV(8000, 40000, 440)
	fetch, _ := fetchSeq(func() *stream.Response { return wavResponse(playertest.Split(wav, 4096), nil) })

	r, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	s := r.Session()
	waitStatus(t, s, AutoplayBlocked)
	assert.Equal(t, "Tap to play", s.StatusText())
	assert.True(t, h.rec.has(s.ID(), Buffering, AutoplayBlocked))

	require.NoError(t, s.Toggle(context.Background()))
	assert.True(t, h.rec.has(s.ID(), AutoplayBlocked, Playing) || s.Status() == Playing)
	waitDone(t, r)
	assert.Equal(t, Completed, s.Status())
	assert.True(t, h.rec.has(s.ID(), AutoplayBlocked, Playing))
}

func TestTransportFailureBeforeAudioFallsBack(t *testing.T) {
	h := newHarness(t, nil)
	wav := playertest.WAV(8000, 1000, 440)
	fetch, calls := fetchSeq(
		func() *stream.Response { return wavResponse(nil, errors.New("reset by peer")) },
		func() *stream.Response { return wavResponse([][]byte{wav}, nil) },
	)
	r, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	waitDone(t, r)
	assert.Equal(t, stream.KindTransportFailure, r.first.Kind())
	assert.Equal(t, Completed, r.Session().Status())
	assert.Equal(t, int32(2), calls.Load())
}

func TestMalformedAudioFallsBackOnce(t *testing.T) {
	h := newHarness(t, nil)
	junk := func() *stream.Response {
		return wavResponse([][]byte{[]byte("definitely not a wave file")}, nil)
	}
	fetch, calls := fetchSeq(junk, junk, junk)
	r, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	waitDone(t, r)

	assert.Equal(t, stream.KindBufferAppend, r.first.Kind())
	assert.Equal(t, Errored, r.Session().Status())
	assert.Equal(t, stream.KindBufferAppend, r.Session().Kind())
	assert.Equal(t, int32(2), calls.Load(), "errored sessions are never retried")
}

func TestStreamingDisabledPlaysWholePayload(t *testing.T) {
	h := newHarness(t, nil, WithStreaming(false))
	wav := playertest.WAV(8000, 2000, 440)
	fetch, calls := fetchSeq(func() *stream.Response { return wavResponse(playertest.Split(wav, 1000), nil) })

	r, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	waitDone(t, r)
	s := r.Session()
	assert.False(t, r.FellBack())
	assert.Equal(t, Buffered, s.Origin())
	assert.Equal(t, Completed, s.Status())
	assert.Equal(t, int32(1), calls.Load())
}

func TestPreemptionPausesPlayingSession(t *testing.T) {
	h := newHarness(t, nil)
	long := playertest.WAV(8000, 400000, 220)
	fetch := func(context.Context) (*stream.Response, error) {
		return wavResponse(playertest.Split(long, 4096), nil), nil
	}

	a, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	waitStatus(t, a.Session(), Playing)

	b, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	// Released before Play returned.
	assert.Equal(t, Paused, a.Session().Status())
	assert.Same(t, b.Session(), h.c.Active())
	waitStatus(t, b.Session(), Playing)

	// Switching back rebinds a from the start and pauses b.
	require.NoError(t, a.Toggle(context.Background()))
	assert.Equal(t, Playing, a.Session().Status())
	assert.Equal(t, Paused, b.Session().Status())
	assert.Equal(t, a.Session().ID(), h.out.Holder())
}

func TestPreemptedBeforeStartWaitsForGesture(t *testing.T) {
	h := newHarness(t, nil)
	long := playertest.WAV(8000, 400000, 220)
	release := make(chan struct{})
	slow := func(ctx context.Context) (*stream.Response, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return wavResponse(playertest.Split(long, 4096), nil), nil
	}
	fast := func(context.Context) (*stream.Response, error) {
		return wavResponse(playertest.Split(long, 4096), nil), nil
	}

	a, err := h.c.Play(context.Background(), slow)
	require.NoError(t, err)
	b, err := h.c.Play(context.Background(), fast)
	require.NoError(t, err)
	waitStatus(t, b.Session(), Playing)

	close(release)
	waitStatus(t, a.Session(), AutoplayBlocked)
	assert.Equal(t, Playing, b.Session().Status())
	assert.Equal(t, b.Session().ID(), h.out.Holder())
}

func TestDisposeFreesOutput(t *testing.T) {
	h := newHarness(t, nil)
	long := playertest.WAV(8000, 400000, 220)
	fetch := func(context.Context) (*stream.Response, error) {
		return wavResponse(playertest.Split(long, 4096), nil), nil
	}
	r, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	waitStatus(t, r.Session(), Playing)

	r.Dispose()
	waitDone(t, r)
	assert.Equal(t, Completed, r.Session().Status())
	assert.True(t, r.Session().Stopped())
	assert.Equal(t, "", h.out.Holder())
	assert.Nil(t, h.c.Active())
	assert.Nil(t, h.c.Session(r.Session().ID()))
}

func TestCancelledContextDisposesReply(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(ctx context.Context) (*stream.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r, err := h.c.Play(ctx, fetch)
	require.NoError(t, err)
	cancel()
	waitDone(t, r)
	assert.False(t, r.FellBack())
}

func TestLocaleAffectsTextOnly(t *testing.T) {
	h := newHarness(t, nil, WithAutoplay(false))
	wav := playertest.WAV(8000, 2000, 440)
	fetch, _ := fetchSeq(func() *stream.Response { return wavResponse([][]byte{wav}, nil) })
	r, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	s := r.Session()
	waitStatus(t, s, AutoplayBlocked)

	h.c.SetLocale(i18n.Match("fr"))
	assert.Equal(t, "Touchez pour écouter", s.StatusText())
	assert.Equal(t, AutoplayBlocked, s.Status())
}

func TestThinkingClearedWhenReplyArrives(t *testing.T) {
	h := newHarness(t, nil, WithAutoplay(false))
	wav := playertest.WAV(8000, 2000, 440)
	fetch, _ := fetchSeq(func() *stream.Response { return wavResponse([][]byte{wav}, nil) })

	h.c.SetThinking(true)
	thinking, _ := h.c.Thinking()
	require.True(t, thinking)
	r, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	waitStatus(t, r.Session(), AutoplayBlocked)
	thinking, _ = h.c.Thinking()
	assert.False(t, thinking)
}

// gatedFetch serves wav once release is closed.
func gatedFetch(wav []byte, release <-chan struct{}) Fetcher {
	return func(ctx context.Context) (*stream.Response, error) {
		select {
		case <-release:
			return wavResponse([][]byte{wav}, nil), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func TestThinkingSurvivesFallback(t *testing.T) {
	h := newHarness(t, nil, WithAutoplay(false))
	wav := playertest.WAV(8000, 2000, 440)
	release := make(chan struct{})
	retry := gatedFetch(wav, release)
	var calls atomic.Int32
	fetch := func(ctx context.Context) (*stream.Response, error) {
		if calls.Add(1) == 1 {
			return &stream.Response{StatusCode: 200, ContentType: "application/json", Body: io.NopCloser(strings.NewReader(`{}`))}, nil
		}
		return retry(ctx)
	}

	h.c.SetThinking(true)
	r, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	waitStatus(t, r.first, Errored)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 3*time.Second, time.Millisecond)

	assert.True(t, r.FellBack())
	assert.Equal(t, Connecting, r.Session().Status())
	thinking, _ := h.c.Thinking()
	assert.True(t, thinking, "still waiting for the whole payload")

	close(release)
	waitStatus(t, r.Session(), AutoplayBlocked)
	thinking, _ = h.c.Thinking()
	assert.False(t, thinking)
}

func TestThinkingIgnoresOlderReply(t *testing.T) {
	h := newHarness(t, nil, WithAutoplay(false))
	wav := playertest.WAV(8000, 2000, 440)
	releaseOld, releaseNew := make(chan struct{}), make(chan struct{})

	old, err := h.c.Play(context.Background(), gatedFetch(wav, releaseOld))
	require.NoError(t, err)
	h.c.SetThinking(true)
	cur, err := h.c.Play(context.Background(), gatedFetch(wav, releaseNew))
	require.NoError(t, err)

	close(releaseOld)
	waitStatus(t, old.Session(), AutoplayBlocked)
	thinking, _ := h.c.Thinking()
	assert.True(t, thinking, "an older reply does not answer the newest question")

	close(releaseNew)
	waitStatus(t, cur.Session(), AutoplayBlocked)
	thinking, _ = h.c.Thinking()
	assert.False(t, thinking)
}

func TestThinkingClearedWhenReplyFails(t *testing.T) {
	h := newHarness(t, nil)
	fetch := func(context.Context) (*stream.Response, error) {
		return nil, stream.Errorf(stream.KindTransportFailure, "offline")
	}
	h.c.SetThinking(true)
	r, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	waitDone(t, r)
	assert.True(t, r.Session().Failed())
	thinking, _ := h.c.Thinking()
	assert.False(t, thinking)
}

func TestDisposeBeforeAudioReportsStopped(t *testing.T) {
	h := newHarness(t, nil)
	fetch := func(ctx context.Context) (*stream.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r, err := h.c.Play(context.Background(), fetch)
	require.NoError(t, err)
	s := r.Session()
	r.Dispose()
	waitDone(t, r)

	assert.Equal(t, Completed, s.Status())
	assert.True(t, s.Stopped())
	assert.Equal(t, "Stopped", s.StatusText())
	assert.True(t, h.rec.has(s.ID(), Connecting, Completed))
	assert.False(t, r.FellBack())
}

func TestDisposedReplyDoesNotFallBack(t *testing.T) {
	h := newHarness(t, nil)
	h.c.mu.Lock()
	s := h.c.newSessionLocked(Streamed)
	h.c.mu.Unlock()
	r := &Reply{first: s, cur: s, done: make(chan struct{})}
	r.Dispose()

	fetch, calls := fetchSeq(func() *stream.Response { return wavResponse(nil, nil) })
	got := h.c.fallBack(r, s, fetch, stream.KindInvalidResponse, errors.New("not audio"))
	assert.Same(t, s, got)
	assert.Zero(t, calls.Load())
	assert.False(t, r.FellBack())
	assert.True(t, s.Stopped())
}

func TestPlayAfterClose(t *testing.T) {
	h := newHarness(t, nil)
	h.c.Close()
	_, err := h.c.Play(context.Background(), nil)
	assert.ErrorIs(t, err, ErrClosed)
}

// fakeDevice counts holders so tests can check the output is never shared.
type fakeDevice struct {
	mu         sync.Mutex
	holder     *fakeBinding
	held       int
	maxHeld    int
	conflicts  int
	gate       chan struct{}
	streamable bool
}

func (d *fakeDevice) Acquire(owner string) (Binding, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.holder != nil {
		d.conflicts++
		return nil, player.ErrHandleHeld
	}
	b := &fakeBinding{d: d, owner: owner, finished: make(chan struct{})}
	d.holder = b
	d.held++
	d.maxHeld = max(d.maxHeld, d.held)
	return b, nil
}

func (d *fakeDevice) NoteGesture() {}

func (d *fakeDevice) CanStream(string) bool { return d.streamable }

func (d *fakeDevice) current() *fakeBinding {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.holder
}

type fakeBinding struct {
	d        *fakeDevice
	owner    string
	mu       sync.Mutex
	loaded   bool
	released bool
	finished chan struct{}
	finOnce  sync.Once
}

func (b *fakeBinding) Load(ctx context.Context, buf *player.Buffer) error {
	if gate := b.d.gate; gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := buf.WaitFor(ctx, 1); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return player.ErrReleased
	}
	b.loaded = true
	return nil
}

func (b *fakeBinding) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

func (b *fakeBinding) Play() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return player.ErrReleased
	}
	return nil
}

func (b *fakeBinding) Pause()                    {}
func (b *fakeBinding) Finished() <-chan struct{} { return b.finished }
func (b *fakeBinding) Samples(int) []float64     { return nil }

func (b *fakeBinding) finish() { b.finOnce.Do(func() { close(b.finished) }) }

func (b *fakeBinding) Release() {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	b.mu.Unlock()

	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	if b.d.holder == b {
		b.d.holder = nil
		b.d.held--
	}
}

func TestConcurrentTogglesFromPausedCoalesce(t *testing.T) {
	dev := &fakeDevice{streamable: true}
	c := NewController(dev)
	rec := record(c)
	defer func() {
		c.Close()
		<-rec.done
	}()

	wav := playertest.WAV(8000, 2000, 440)
	fetch := func(context.Context) (*stream.Response, error) { return wavResponse([][]byte{wav}, nil), nil }

	a, err := c.Play(context.Background(), fetch)
	require.NoError(t, err)
	waitStatus(t, a.Session(), Playing)
	b, err := c.Play(context.Background(), fetch)
	require.NoError(t, err)
	waitStatus(t, b.Session(), Playing)
	require.Equal(t, Paused, a.Session().Status())

	// Hold a's rebinding load so both toggles overlap the pending start.
	dev.gate = make(chan struct{})
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, a.Toggle(context.Background()))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(dev.gate)
	wg.Wait()

	assert.Equal(t, Playing, a.Session().Status())
	assert.Equal(t, Paused, b.Session().Status())
	assert.Equal(t, 0, dev.conflicts)
	assert.Equal(t, 1, dev.maxHeld)
}

func TestToggleNoopOnTerminalAndPending(t *testing.T) {
	dev := &fakeDevice{streamable: true}
	c := NewController(dev, WithAutoplay(false))
	defer c.Close()

	wav := playertest.WAV(8000, 500, 440)
	fetch := func(context.Context) (*stream.Response, error) { return wavResponse([][]byte{wav}, nil), nil }
	r, err := c.Play(context.Background(), fetch)
	require.NoError(t, err)
	s := r.Session()
	waitStatus(t, s, AutoplayBlocked)

	require.NoError(t, s.Toggle(context.Background()))
	assert.Equal(t, Playing, s.Status())
	require.NoError(t, s.Toggle(context.Background()))
	assert.Equal(t, Paused, s.Status())
	require.NoError(t, s.Toggle(context.Background()))
	assert.Equal(t, Playing, s.Status())

	dev.current().finish()
	waitStatus(t, s, Completed)
	require.NoError(t, s.Toggle(context.Background()))
	assert.Equal(t, Completed, s.Status())
}

// TestRandomOperationsFollowTheGraph drives random plays, toggles, disposals
// and playback ends and checks every reported transition is a legal edge,
// each session ends exactly once and the output is never shared.
func TestRandomOperationsFollowTheGraph(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		rng := rand.New(rand.NewSource(seed))
		dev := &fakeDevice{streamable: seed%2 == 0}
		c := NewController(dev, WithAutoplay(seed%3 != 0))
		rec := record(c)

		wav := playertest.WAV(8000, 500, 440)
		responses := []func() *stream.Response{
			func() *stream.Response { return wavResponse(playertest.Split(wav, 300), nil) },
			func() *stream.Response { return wavResponse([][]byte{wav[:300]}, errors.New("reset")) },
			func() *stream.Response { return wavResponse(nil, errors.New("refused")) },
			func() *stream.Response {
				return &stream.Response{StatusCode: 503, ContentType: "text/plain", Body: io.NopCloser(strings.NewReader("busy"))}
			},
		}
		var fetchMu sync.Mutex
		fetchRng := rand.New(rand.NewSource(seed * 7))
		lockedFetch := func(context.Context) (*stream.Response, error) {
			fetchMu.Lock()
			defer fetchMu.Unlock()
			return responses[fetchRng.Intn(len(responses))](), nil
		}

		var replies []*Reply
		for range 40 {
			switch op := rng.Intn(10); {
			case op < 3 || len(replies) == 0:
				r, err := c.Play(context.Background(), lockedFetch)
				require.NoError(t, err)
				replies = append(replies, r)
			case op < 7:
				_ = replies[rng.Intn(len(replies))].Toggle(context.Background())
			case op < 8:
				replies[rng.Intn(len(replies))].Dispose()
			default:
				if b := dev.current(); b != nil {
					b.finish()
				}
			}
			time.Sleep(time.Duration(rng.Intn(3)) * time.Millisecond)
		}
		c.Close()
		<-rec.done

		last := map[string]Status{}
		terminal := map[string]int{}
		for _, e := range rec.snapshot() {
			prev, seen := last[e.Session]
			if !seen {
				assert.Equal(t, Idle, e.From, "first event of %s", e.Session)
				prev = Idle
			}
			assert.Equal(t, prev, e.From, "event chain of %s", e.Session)
			if !e.Notice() {
				assert.True(t, CanTransition(e.From, e.To), "illegal %s -> %s", e.From, e.To)
			}
			if e.To.Terminal() && !e.Notice() {
				terminal[e.Session]++
			}
			last[e.Session] = e.To
		}
		for id, st := range last {
			assert.True(t, st.Terminal(), "session %s left in %s", id, st)
			assert.Equal(t, 1, terminal[id], "session %s terminal count", id)
		}
		assert.Equal(t, 0, dev.conflicts, "seed %d", seed)
		assert.LessOrEqual(t, dev.maxHeld, 1)
	}
}
