package voxscope

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/go-audio/audio"
)

// SampleFormat describes how one channel's samples are laid out in a host
// byte buffer: integer or float, bit depth, byte order, and the distance in
// bytes between consecutive samples of the channel.
type SampleFormat struct {
	BitDepth  int
	Float     bool
	BigEndian bool
	// Stride defaults to the sample width when zero. Interleaved buffers use
	// channels*width.
	Stride int
}

var (
	S16LE = SampleFormat{BitDepth: 16}
	S16BE = SampleFormat{BitDepth: 16, BigEndian: true}
	S24LE = SampleFormat{BitDepth: 24}
	S24BE = SampleFormat{BitDepth: 24, BigEndian: true}
	S32LE = SampleFormat{BitDepth: 32}
	S32BE = SampleFormat{BitDepth: 32, BigEndian: true}
	F32LE = SampleFormat{BitDepth: 32, Float: true}
	F32BE = SampleFormat{BitDepth: 32, Float: true, BigEndian: true}
)

// ParseSampleFormat parses names such as "s16le", "s24be" or "f32le".
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch strings.ToLower(s) {
	case "s16le", "s16":
		return S16LE, nil
	case "s16be":
		return S16BE, nil
	case "s24le", "s24":
		return S24LE, nil
	case "s24be":
		return S24BE, nil
	case "s32le", "s32":
		return S32LE, nil
	case "s32be":
		return S32BE, nil
	case "f32le", "f32":
		return F32LE, nil
	case "f32be":
		return F32BE, nil
	}
	return SampleFormat{}, fmt.Errorf("%w: sample format %q", ErrUnsupportedFormat, s)
}

func (f SampleFormat) String() string {
	kind := "s"
	if f.Float {
		kind = "f"
	}
	order := "le"
	if f.BigEndian {
		order = "be"
	}
	return fmt.Sprintf("%s%d%s", kind, f.BitDepth, order)
}

// Width returns the number of bytes occupied by one sample.
func (f SampleFormat) Width() int { return f.BitDepth / 8 }

func (f SampleFormat) stride() int {
	if f.Stride > 0 {
		return f.Stride
	}
	return f.Width()
}

// Interleaved returns f with the stride of an interleaved buffer of the given channel count.
func (f SampleFormat) Interleaved(channels int) SampleFormat {
	f.Stride = f.Width() * channels
	return f
}

// Validate reports whether the format can be converted.
func (f SampleFormat) Validate() error {
	switch {
	case f.Float && f.BitDepth == 32:
	case !f.Float && (f.BitDepth == 16 || f.BitDepth == 24 || f.BitDepth == 32):
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	if f.Stride != 0 && f.Stride < f.Width() {
		return fmt.Errorf("%w: stride %d shorter than sample width %d", ErrUnsupportedFormat, f.Stride, f.Width())
	}
	return nil
}

// Samples returns how many samples of this format fit in n bytes.
func (f SampleFormat) Samples(n int) int {
	if n < f.Width() {
		return 0
	}
	return (n-f.Width())/f.stride() + 1
}

func (f SampleFormat) order() binary.ByteOrder {
	if f.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Decode converts samples from src into dst, stopping when either runs out,
// and returns the number of samples converted.
//
// Integer samples are scaled by 1/32768 (16-bit), 1/0x7fffff (24-bit) and
// 1/0x7fffffff (32-bit).
func (f SampleFormat) Decode(dst []float32, src []byte) int {
	n := min(len(dst), f.Samples(len(src)))
	stride := f.stride()
	order := f.order()

	for i := range n {
		p := src[i*stride:]
		switch {
		case f.Float:
			dst[i] = math.Float32frombits(order.Uint32(p))
		case f.BitDepth == 16:
			dst[i] = float32(float64(int16(order.Uint16(p))) / 32768.0)
		case f.BitDepth == 24:
			var v int32
			if f.BigEndian {
				v = audio.Int24BETo32(p[:3])
			} else {
				v = audio.Int24LETo32(p[:3])
			}
			dst[i] = float32(float64(v) / 0x7fffff)
		case f.BitDepth == 32:
			dst[i] = float32(float64(int32(order.Uint32(p))) / 0x7fffffff)
		}
	}
	return n
}

// Encode converts src into dst, clamping to the integer range and rounding,
// and returns the number of samples written.
func (f SampleFormat) Encode(dst []byte, src []float32) int {
	n := min(len(src), f.Samples(len(dst)))
	stride := f.stride()
	order := f.order()

	for i := range n {
		p := dst[i*stride:]
		switch {
		case f.Float:
			order.PutUint32(p, math.Float32bits(src[i]))
		case f.BitDepth == 16:
			order.PutUint16(p, uint16(int16(quantize(float64(src[i]), 0x7fff))))
		case f.BitDepth == 24:
			var b []byte
			if f.BigEndian {
				b = audio.Int32toInt24BEBytes(quantize(float64(src[i]), 0x7fffff))
			} else {
				b = audio.Int32toInt24LEBytes(quantize(float64(src[i]), 0x7fffff))
			}
			copy(p[:3], b)
		case f.BitDepth == 32:
			order.PutUint32(p, uint32(quantize(float64(src[i]), 0x7fffffff)))
		}
	}
	return n
}

// DecodeChannels decodes an interleaved buffer into a frame.
func (f SampleFormat) DecodeChannels(src []byte, channels int) Frame[float32] {
	if channels <= 0 {
		panic("voxscope: channel count must be positive")
	}
	f = f.Interleaved(channels)
	n := len(src) / f.stride()
	frame := NewFrame[float32](channels, n)
	for c := range channels {
		if n == 0 {
			break
		}
		f.Decode(frame[c], src[c*f.Width():])
	}
	return frame
}

// EncodeChannels packs a frame into a new interleaved buffer.
func (f SampleFormat) EncodeChannels(frame Frame[float32]) []byte {
	n := frame.checkLengths()
	channels := len(frame)
	f = f.Interleaved(channels)
	out := make([]byte, n*f.stride())
	if n == 0 {
		return out
	}
	for c, ch := range frame {
		f.Encode(out[c*f.Width():], ch)
	}
	return out
}

// quantize scales v by maxVal, clamps to [-maxVal, maxVal] and rounds.
func quantize(v, maxVal float64) int32 {
	x := v * maxVal
	if x > maxVal {
		x = maxVal
	} else if x < -maxVal {
		x = -maxVal
	}
	return int32(math.Round(x))
}
