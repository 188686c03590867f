package playertest

import (
	"bytes"
	"math"
	"testing"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVDecodes(t *testing.T) {
	data := WAV(8000, 1000, 440)
	assert.Len(t, data, 44+1000*4)
	assert.Equal(t, "RIFF", string(data[:4]))

	s, format, err := wav.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, beep.SampleRate(8000), format.SampleRate)
	assert.Equal(t, 2, format.NumChannels)
	assert.Equal(t, 1000, s.Len())

	buf := make([][2]float64, 1000)
	n, _ := s.Stream(buf)
	require.Equal(t, 1000, n)
	var peak float64
	for _, x := range buf {
		peak = max(peak, math.Abs(x[0]))
	}
	assert.InDelta(t, 0.5, peak, 0.02)
}

func TestSplit(t *testing.T) {
	parts := Split([]byte("abcdefg"), 3)
	require.Len(t, parts, 3)
	assert.Equal(t, "g", string(parts[2]))
	assert.Empty(t, Split(nil, 3))
}
