package voxscope

import "math"

// sineFrame returns a sine wave of the given amplitude on every channel.
func sineFrame(channels, n int, amp, freq, sampleRate float64) Frame[float32] {
	f := NewFrame[float32](channels, n)
	for i := range n {
		v := float32(amp * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
		for c := range channels {
			f[c][i] = v
		}
	}
	return f
}

// constantFrame returns a frame with every sample set to v.
func constantFrame[S Sample](channels, n int, v S) Frame[S] {
	f := NewFrame[S](channels, n)
	for c := range f {
		for i := range f[c] {
			f[c][i] = v
		}
	}
	return f
}

// ramp returns a mono frame holding from, from+1, ... from+n-1.
func ramp(from, n int) Frame[float64] {
	f := NewFrame[float64](1, n)
	for i := range n {
		f[0][i] = float64(from + i)
	}
	return f
}
