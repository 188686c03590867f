// Package spectrum turns output samples into smoothed per-frame band levels
// and produces the synthetic pulse shown while an answer is being prepared.
package spectrum

import (
	"math"
	"math/cmplx"

	"github.com/madelynnblue/go-dsp/fft"
)

const (
	DefaultBands     = 6
	DefaultSmoothing = 0.8
	FFTSize          = 2048

	minFreq = 80.0
	maxFreq = 8000.0
)

// Snapshot is one frame of band levels, each in [0,1].
type Snapshot []float64

// Peak returns the largest level in s.
func (s Snapshot) Peak() float64 {
	var p float64
	for _, v := range s {
		p = max(p, v)
	}
	return p
}

// Analyzer performs FFT analysis and smooths the result across frames.
type Analyzer struct {
	sr        float64
	smoothing float64
	edges     []float64
	prev      Snapshot
	buf       []float64 // reusable FFT buffer to avoid per-frame allocation
	window    []float64
}

// NewAnalyzer creates an Analyzer producing bands levels per frame.
// smoothing is the weight of the previous frame, in [0,1).
func NewAnalyzer(sampleRate float64, bands int, smoothing float64) *Analyzer {
	if bands <= 0 {
		bands = DefaultBands
	}
	if smoothing < 0 || smoothing >= 1 {
		smoothing = DefaultSmoothing
	}
	a := &Analyzer{
		sr:        sampleRate,
		smoothing: smoothing,
		edges:     logEdges(minFreq, min(maxFreq, sampleRate/2), bands),
		prev:      make(Snapshot, bands),
		buf:       make([]float64, FFTSize),
		window:    make([]float64, FFTSize),
	}
	for i := range FFTSize {
		a.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(FFTSize-1)))
	}
	return a
}

// logEdges splits [lo, hi] into n log-spaced bands.
func logEdges(lo, hi float64, n int) []float64 {
	edges := make([]float64, n+1)
	ratio := math.Log(hi / lo)
	for i := range edges {
		edges[i] = lo * math.Exp(ratio*float64(i)/float64(n))
	}
	return edges
}

// Bands returns the snapshot length.
func (a *Analyzer) Bands() int { return len(a.prev) }

// Smoothing returns the weight of the previous frame.
func (a *Analyzer) Smoothing() float64 { return a.smoothing }

// Analyze runs FFT on raw audio samples and returns the next smoothed
// snapshot. Without samples the levels decay toward zero at the same rate.
func (a *Analyzer) Analyze(samples []float64) Snapshot {
	raw := make([]float64, len(a.prev))
	if len(samples) > 0 {
		a.measure(samples, raw)
	}

	out := make(Snapshot, len(a.prev))
	for b := range out {
		v := a.smoothing*a.prev[b] + (1-a.smoothing)*raw[b]
		out[b] = max(0, min(1, v))
		a.prev[b] = out[b]
	}
	return out
}

func (a *Analyzer) measure(samples []float64, raw []float64) {
	clear(a.buf)
	copy(a.buf, samples)
	for i := range FFTSize {
		a.buf[i] *= a.window[i]
	}

	spectrum := fft.FFTReal(a.buf)
	binHz := a.sr / float64(FFTSize)
	halfLen := len(spectrum) / 2

	for b := range raw {
		lo := max(1, int(a.edges[b]/binHz))
		hi := min(halfLen-1, int(a.edges[b+1]/binHz))
		if hi < lo {
			hi = lo
		}

		var sum float64
		for i := lo; i <= hi; i++ {
			sum += cmplx.Abs(spectrum[i])
		}
		sum /= float64(hi - lo + 1)

		// dB-like scale normalized to 0-1
		if sum > 0 {
			raw[b] = (20*math.Log10(sum) + 10) / 50
		}
		raw[b] = max(0, min(1, raw[b]))
	}
}

// Reset forgets the previous frame, for a new binding.
func (a *Analyzer) Reset() {
	clear(a.prev)
}
