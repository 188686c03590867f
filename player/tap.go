// Package player owns the single physical audio output: the growable buffer
// a response is appended into, the decoders reading it, the exclusive
// playback handle and the sample tap used for visualization.
package player

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// DefaultTapSize is the ring buffer length of an output's tap.
const DefaultTapSize = 4096

// Tap is a streamer wrapper that copies samples into a ring buffer for
// real-time FFT visualization without altering what is audible. An Output
// has at most one Tap; rebinding swaps the tapped source instead of stacking
// another tap.
type Tap struct {
	mu   sync.Mutex
	s    beep.Streamer
	buf  []float64
	pos  int
	size int
	fill int
}

// NewTap returns a Tap with a ring buffer of the given size.
func NewTap(bufSize int) *Tap {
	return &Tap{
		buf:  make([]float64, bufSize),
		size: bufSize,
	}
}

// bind sets the tapped source and clears captured samples.
func (t *Tap) bind(s beep.Streamer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s = s
	clear(t.buf)
	t.pos = 0
	t.fill = 0
}

// Stream passes audio through while capturing a mono mix into the ring buffer.
func (t *Tap) Stream(samples [][2]float64) (int, bool) {
	t.mu.Lock()
	s := t.s
	t.mu.Unlock()
	if s == nil {
		return 0, false
	}

	n, ok := s.Stream(samples)
	t.mu.Lock()
	for i := range n {
		t.buf[t.pos] = (samples[i][0] + samples[i][1]) / 2
		t.pos = (t.pos + 1) % t.size
	}
	t.fill = min(t.fill+n, t.size)
	t.mu.Unlock()
	return n, ok
}

// Err returns the underlying streamer's error.
func (t *Tap) Err() error {
	t.mu.Lock()
	s := t.s
	t.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Err()
}

// Samples returns the last n samples from the ring buffer in chronological
// order, or nil when nothing has been captured since the last bind.
func (t *Tap) Samples(n int) []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fill == 0 {
		return nil
	}
	if n > t.size {
		n = t.size
	}
	out := make([]float64, n)
	start := (t.pos - n + t.size) % t.size
	for i := range n {
		out[i] = t.buf[(start+i)%t.size]
	}
	return out
}
