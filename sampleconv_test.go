package voxscope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleFormat16(t *testing.T) {
	buf := make([]byte, 8)
	n := S16LE.Encode(buf, []float32{0.5, -0.5, 2, -2})
	require.Equal(t, 4, n)
	assert.Equal(t, []byte{0x00, 0x40, 0x00, 0xc0, 0xff, 0x7f, 0x01, 0x80}, buf)

	out := make([]float32, 4)
	S16LE.Decode(out, buf)
	assert.Equal(t, float32(0.5), out[0])
	assert.Equal(t, float32(-0.5), out[1])
	assert.InDelta(t, 1, out[2], 1e-4)
	assert.InDelta(t, -1, out[3], 1e-4)

	S16BE.Decode(out[:1], []byte{0x40, 0x00})
	assert.Equal(t, float32(0.5), out[0])
}

func TestSampleFormat24(t *testing.T) {
	out := make([]float32, 1)

	S24LE.Decode(out, []byte{0xff, 0xff, 0x7f})
	assert.Equal(t, float32(1), out[0])
	S24BE.Decode(out, []byte{0x80, 0x00, 0x00})
	assert.InDelta(t, -1, out[0], 1e-6)

	in := []float32{-1, -0.5, 0, 0.25, 0.999}
	for _, f := range []SampleFormat{S24LE, S24BE} {
		buf := make([]byte, len(in)*3)
		require.Equal(t, len(in), f.Encode(buf, in), f.String())
		got := make([]float32, len(in))
		f.Decode(got, buf)
		assert.InDeltaSlice(t, in, got, 1e-6, f.String())
	}
}

func TestSampleFormat32(t *testing.T) {
	in := []float32{-1, -0.5, 0, 0.75}
	for _, f := range []SampleFormat{S32LE, S32BE, F32LE, F32BE} {
		buf := make([]byte, len(in)*4)
		f.Encode(buf, in)
		got := make([]float32, len(in))
		f.Decode(got, buf)
		assert.InDeltaSlice(t, in, got, 1e-7, f.String())
	}
}

func TestSampleFormatStride(t *testing.T) {
	// two interleaved 16-bit channels
	src := []byte{0x00, 0x40, 0x00, 0xc0, 0x00, 0x20, 0x00, 0xe0}
	f := S16LE.Interleaved(2)
	assert.Equal(t, 4, f.Stride)
	assert.Equal(t, 2, f.Samples(len(src)))

	left := make([]float32, 4)
	right := make([]float32, 4)
	assert.Equal(t, 2, f.Decode(left, src))
	assert.Equal(t, 2, f.Decode(right, src[2:]))
	assert.Equal(t, []float32{0.5, 0.25}, left[:2])
	assert.Equal(t, []float32{-0.5, -0.25}, right[:2])
}

func TestSampleFormatChannels(t *testing.T) {
	frame := Frame[float32]{{0.5, 0.25, 0}, {-0.5, -0.25, 0.125}}
	buf := S16LE.EncodeChannels(frame)
	require.Len(t, buf, 12)

	back := S16LE.DecodeChannels(buf, 2)
	require.Equal(t, 3, back.Len())
	for c := range frame {
		assert.InDeltaSlice(t, frame[c], back[c], 1.0/32768)
	}

	assert.Empty(t, S16LE.EncodeChannels(NewFrame[float32](2, 0)))
	assert.Equal(t, 0, S24LE.DecodeChannels([]byte{1, 2}, 1).Len())
}

func TestParseSampleFormat(t *testing.T) {
	for _, f := range []SampleFormat{S16LE, S16BE, S24LE, S24BE, S32LE, S32BE, F32LE, F32BE} {
		got, err := ParseSampleFormat(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
		assert.NoError(t, got.Validate())
	}

	got, err := ParseSampleFormat("S24")
	require.NoError(t, err)
	assert.Equal(t, S24LE, got)

	_, err = ParseSampleFormat("u8")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSampleFormatValidate(t *testing.T) {
	assert.ErrorIs(t, SampleFormat{BitDepth: 8}.Validate(), ErrUnsupportedFormat)
	assert.ErrorIs(t, SampleFormat{BitDepth: 64, Float: true}.Validate(), ErrUnsupportedFormat)
	assert.ErrorIs(t, SampleFormat{BitDepth: 24, Stride: 2}.Validate(), ErrUnsupportedFormat)
	assert.NoError(t, S24LE.Interleaved(6).Validate())
}
