package voxscope

import "math"

// Sample is the numeric type of a single audio sample.
type Sample interface {
	~float32 | ~float64
}

// Frame is one block of non-interleaved audio: Frame[c][i] is sample i of channel c.
// All channels of a frame have the same length.
type Frame[S Sample] [][]S

// NewFrame allocates a zeroed frame with the given channel count and length.
func NewFrame[S Sample](channels, n int) Frame[S] {
	f := make(Frame[S], channels)
	for c := range f {
		f[c] = make([]S, n)
	}
	return f
}

// NumChannels returns the number of channels in the frame.
func (f Frame[S]) NumChannels() int { return len(f) }

// Len returns the number of samples per channel.
func (f Frame[S]) Len() int {
	if len(f) == 0 {
		return 0
	}
	return len(f[0])
}

// Clone returns a deep copy of the frame.
func (f Frame[S]) Clone() Frame[S] {
	out := make(Frame[S], len(f))
	for c, ch := range f {
		out[c] = append([]S(nil), ch...)
	}
	return out
}

// checkLengths panics if the channels of f differ in length.
func (f Frame[S]) checkLengths() int {
	n := f.Len()
	for c := 1; c < len(f); c++ {
		if len(f[c]) != n {
			panic("voxscope: frame channels differ in length")
		}
	}
	return n
}

// Deinterleave splits interleaved samples into a frame with the given channel count.
// Trailing samples that do not form a whole frame are ignored.
func Deinterleave[S Sample](samples []S, channels int) Frame[S] {
	if channels <= 0 {
		panic("voxscope: channel count must be positive")
	}
	n := len(samples) / channels
	f := NewFrame[S](channels, n)
	for i := range n {
		base := i * channels
		for c := range channels {
			f[c][i] = samples[base+c]
		}
	}
	return f
}

// Interleave packs the frame into a single interleaved slice.
func (f Frame[S]) Interleave() []S {
	n := f.checkLengths()
	channels := len(f)
	out := make([]S, n*channels)
	for c, ch := range f {
		for i, v := range ch {
			out[i*channels+c] = v
		}
	}
	return out
}

// ConvertFrame copies src into a frame of another sample precision.
func ConvertFrame[D, S Sample](src Frame[S]) Frame[D] {
	out := make(Frame[D], len(src))
	for c, ch := range src {
		dst := make([]D, len(ch))
		for i, v := range ch {
			dst[i] = D(v)
		}
		out[c] = dst
	}
	return out
}

// RMS returns the root mean square level of channel ch, or 0 for an empty channel.
func (f Frame[S]) RMS(ch int) float64 {
	data := f[ch]
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		x := float64(v)
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(data)))
}

// Peak returns the largest absolute sample value of channel ch.
func (f Frame[S]) Peak(ch int) float64 {
	var peak float64
	for _, v := range f[ch] {
		if a := absFloat(float64(v)); a > peak {
			peak = a
		}
	}
	return peak
}
