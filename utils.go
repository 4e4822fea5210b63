package voxscope

import (
	"math"
	"strings"
)

// Helper function: Calculate absolute value
func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// gainToDecibels converts a linear gain to dB, never going below floor.
func gainToDecibels(gain, floor float64) float64 {
	if gain <= 0 {
		return floor
	}
	return math.Max(floor, 20*math.Log10(gain))
}

// Helper function: Check if string contains substring, ignoring case
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
