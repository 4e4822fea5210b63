package voxscope

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterleaveRoundTrip(t *testing.T) {
	samples := []float32{1, -1, 2, -2, 3, -3}
	f := Deinterleave(samples, 2)

	assert.Equal(t, Frame[float32]{{1, 2, 3}, {-1, -2, -3}}, f)
	assert.Equal(t, samples, f.Interleave())
	assert.Equal(t, 2, f.NumChannels())
	assert.Equal(t, 3, f.Len())
}

func TestDeinterleaveDropsPartialFrame(t *testing.T) {
	f := Deinterleave([]float64{1, 2, 3, 4, 5}, 2)
	assert.Equal(t, Frame[float64]{{1, 3}, {2, 4}}, f)

	assert.Panics(t, func() { Deinterleave([]float64{1}, 0) })
}

func TestFrameClone(t *testing.T) {
	f := Frame[float64]{{1, 2}, {3, 4}}
	c := f.Clone()
	c[0][0] = 10

	assert.Equal(t, 1.0, f[0][0])
	assert.Equal(t, 0, Frame[float64](nil).Len())
}

func TestConvertFrame(t *testing.T) {
	f := ConvertFrame[float64](Frame[float32]{{0.5, -0.25}})
	assert.Equal(t, Frame[float64]{{0.5, -0.25}}, f)
}

func TestFrameLevels(t *testing.T) {
	f := Frame[float32]{{0.5, -0.5, 0.5, -0.5}, {-0.8, 0.1, 0, 0}, {}}

	assert.InDelta(t, 0.5, f.RMS(0), 1e-9)
	assert.InDelta(t, 0.8, f.Peak(1), 1e-6)
	assert.Equal(t, 0.0, f.RMS(2))
	assert.Equal(t, 0.0, f.Peak(2))

	sine := sineFrame(1, 4800, 1, 1000, 48000)
	assert.InDelta(t, 1/math.Sqrt2, sine.RMS(0), 1e-3)
}
