// Package playertest provides a speaker that is pulled by the test instead of
// a sound card, and helpers to synthesize audio payloads.
package playertest

import (
	"errors"
	"io"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/generators"
	"github.com/gopxl/beep/v2/wav"
)

// Speaker implements player.Speaker over a beep.Mixer that only advances when
// Pull is called.
type Speaker struct {
	mu    sync.Mutex
	mixer beep.Mixer

	SampleRate beep.SampleRate
	Inits      int
	Clears     int
}

func (s *Speaker) Init(sr beep.SampleRate, bufferSize int) error {
	s.SampleRate = sr
	s.Inits++
	return nil
}

func (s *Speaker) Play(st ...beep.Streamer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.Add(st...)
}

func (s *Speaker) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.Clear()
	s.Clears++
}

func (s *Speaker) Lock()   { s.mu.Lock() }
func (s *Speaker) Unlock() { s.mu.Unlock() }

// Active returns the number of streamers still playing.
func (s *Speaker) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mixer.Len()
}

// Pull advances playback by n samples and returns them.
func (s *Speaker) Pull(n int) [][2]float64 {
	buf := make([][2]float64, n)
	s.mu.Lock()
	s.mixer.Stream(buf)
	s.mu.Unlock()
	return buf
}

// WAV returns a 16-bit stereo PCM WAV of a sine tone at half scale.
func WAV(sampleRate, frames int, freq float64) []byte {
	sr := beep.SampleRate(sampleRate)
	tone, err := generators.SineTone(sr, freq)
	if err != nil {
		panic(err)
	}
	half := &effects.Gain{Streamer: beep.Take(frames, tone), Gain: -0.5}

	var f memFile
	format := beep.Format{SampleRate: sr, NumChannels: 2, Precision: 2}
	if err := wav.Encode(&f, half, format); err != nil {
		panic(err)
	}
	return f.buf
}

// memFile is the io.WriteSeeker wav.Encode needs, kept in memory.
type memFile struct {
	buf []byte
	pos int
}

func (f *memFile) Write(p []byte) (int, error) {
	if end := f.pos + len(p); end > len(f.buf) {
		f.buf = append(f.buf, make([]byte, end-len(f.buf))...)
	}
	n := copy(f.buf[f.pos:], p)
	f.pos += n
	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	base := 0
	switch whence {
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = len(f.buf)
	}
	pos := base + int(offset)
	if pos < 0 {
		return 0, errors.New("playertest: seek before start")
	}
	f.pos = pos
	return int64(pos), nil
}

// Split cuts p into chunks of at most size bytes.
func Split(p []byte, size int) [][]byte {
	var out [][]byte
	for len(p) > 0 {
		n := min(size, len(p))
		out = append(out, p[:n])
		p = p[n:]
	}
	return out
}
