package voxscope

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUnsupported(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("fLaC")), ".flac")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Decode(bytes.NewReader([]byte("not a riff file at all")), ".WAV")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = DecodeFile(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestDecodeAIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.aiff")
	out, err := os.Create(path)
	require.NoError(t, err)

	data := []int{16384, -16384, 8192, -8192, 0, 32767}
	enc := aiff.NewEncoder(out, 22050, 16, 2)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: 2, SampleRate: 22050},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, out.Close())

	clip, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, 22050, clip.SampleRate)
	require.Equal(t, 2, clip.Channels())
	assert.InDeltaSlice(t, []float32{0.5, 0.25, 0}, clip.Frame[0], 1e-6)
	assert.InDeltaSlice(t, []float32{-0.5, -0.25, 1}, clip.Frame[1], 1e-4)
}

func writeTestWAV(t *testing.T, bitDepth, audioFormat int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	out, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(out, 8000, bitDepth, 1, audioFormat)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
		SourceBitDepth: bitDepth,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, out.Close())
	return path
}

func TestDecodeWAV8Bit(t *testing.T) {
	silence := make([]int, 64)
	for i := range silence {
		silence[i] = 128
	}
	clip, err := DecodeFile(writeTestWAV(t, 8, wavPCM, silence))
	require.NoError(t, err)
	require.Equal(t, 1, clip.Channels())
	require.Equal(t, 64, clip.Frame.Len())
	assert.Zero(t, clip.Frame.RMS(0))

	tracker := NewPeakTracker[float32](DefaultMeterConfig())
	tracker.Capture(clip.Frame, 0)
	levels := tracker.Poll()
	assert.False(t, levels.Clipped)
	assert.False(t, levels.HasSignal)
	assert.Zero(t, levels.LitCount())

	clip, err = DecodeFile(writeTestWAV(t, 8, wavPCM, []int{128, 192, 64, 0, 255}))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 0.5, -0.5, -1, 127.0 / 128}, clip.Frame[0], 1e-6)
}

func TestDecodeWAVFloat(t *testing.T) {
	values := []float32{0.25, -0.5, 1, 0}
	data := make([]int, len(values))
	for i, v := range values {
		data[i] = int(int32(math.Float32bits(v)))
	}
	clip, err := DecodeFile(writeTestWAV(t, 32, wavFloat, data))
	require.NoError(t, err)
	assert.Equal(t, 8000, clip.SampleRate)
	assert.Equal(t, values, []float32(clip.Frame[0]))
}

func TestDecodeWAVUnsupportedFormat(t *testing.T) {
	// 8-bit A-law
	_, err := DecodeFile(writeTestWAV(t, 8, 6, []int{1, 2, 3}))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestClipDuration(t *testing.T) {
	clip := &Clip{SampleRate: 1000, Frame: NewFrame[float32](1, 250)}
	assert.Equal(t, "250ms", clip.Duration().String())
	assert.Zero(t, (&Clip{}).Duration())
}
