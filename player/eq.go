package player

import (
	"math"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
)

// Presence filter: a peaking band around the consonant range that makes
// speech clearer on small speakers.
const (
	PresenceFreq = 3000.0
	PresenceQ    = 0.9
	maxPresence  = 12.0
)

// gain is a dB value shared between the control side and the audio thread.
type gain struct{ bits atomic.Uint64 }

func (g *gain) Load() float64   { return math.Float64frombits(g.bits.Load()) }
func (g *gain) Store(v float64) { g.bits.Store(math.Float64bits(v)) }

// coeffs are normalized peaking-filter coefficients (a0 == 1).
type coeffs struct{ b0, b1, b2, a1, a2 float64 }

func peakingCoeffs(freq, q, dB, sr float64) coeffs {
	amp := math.Pow(10, dB/40)
	w := 2 * math.Pi * freq / sr
	cos := math.Cos(w)
	alpha := math.Sin(w) / (2 * q)
	norm := 1 + alpha/amp
	return coeffs{
		b0: (1 + alpha*amp) / norm,
		b1: -2 * cos / norm,
		b2: (1 - alpha*amp) / norm,
		a1: -2 * cos / norm,
		a2: (1 - alpha/amp) / norm,
	}
}

// peaking boosts or cuts a band around freq. The gain is re-read on every
// block; coefficients are recomputed only when it changes.
type peaking struct {
	src  beep.Streamer
	freq float64
	q    float64
	sr   float64
	gain *gain

	db    float64
	c     coeffs
	ready bool
	// direct form I history per channel: last two inputs, last two outputs
	in  [2][2]float64
	out [2][2]float64
}

func newPeaking(src beep.Streamer, freq, q float64, g *gain, sr beep.SampleRate) *peaking {
	return &peaking{src: src, freq: freq, q: q, gain: g, sr: float64(sr)}
}

func (p *peaking) Stream(samples [][2]float64) (int, bool) {
	n, ok := p.src.Stream(samples)
	db := p.gain.Load()
	if math.Abs(db) < 0.1 {
		return n, ok
	}
	if !p.ready || db != p.db {
		p.c, p.db, p.ready = peakingCoeffs(p.freq, p.q, db, p.sr), db, true
	}
	c := p.c
	for i := range n {
		for ch := range 2 {
			x := samples[i][ch]
			in, out := &p.in[ch], &p.out[ch]
			y := c.b0*x + c.b1*in[0] + c.b2*in[1] - c.a1*out[0] - c.a2*out[1]
			in[1], in[0] = in[0], x
			out[1], out[0] = out[0], y
			samples[i][ch] = y
		}
	}
	return n, ok
}

func (p *peaking) Err() error { return p.src.Err() }

// WithPresence sets the presence boost in dB, clamped to [-12, +12].
func WithPresence(db float64) OutputOption {
	return func(o *Output) { o.presence.Store(clampPresence(db)) }
}

// SetPresence changes the presence boost of the bound and future sources.
func (o *Output) SetPresence(db float64) {
	o.presence.Store(clampPresence(db))
}

// Presence returns the presence boost in dB.
func (o *Output) Presence() float64 { return o.presence.Load() }

func clampPresence(db float64) float64 {
	return max(min(db, maxPresence), -maxPresence)
}
