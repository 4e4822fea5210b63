package voxscope

import (
	"sync"
	"time"
)

// Latest holds the most recent value published by the producer.
// Set is dropped while the consumer is reading; Get waits for at most one Set.
type Latest[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
}

// Set publishes v unless the consumer currently holds the cell.
// It reports whether v was stored.
func (l *Latest[T]) Set(v T) bool {
	if !l.mu.TryLock() {
		return false
	}
	l.value = v
	l.set = true
	l.mu.Unlock()
	return true
}

// store publishes v, waiting for the consumer if needed. Only for use
// outside the real-time path.
func (l *Latest[T]) store(v T) {
	l.mu.Lock()
	l.value = v
	l.set = true
	l.mu.Unlock()
}

// Get returns the last stored value and whether anything was ever stored.
func (l *Latest[T]) Get() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.set
}

func (l *Latest[T]) reset() {
	var zero T
	l.value = zero
	l.set = false
}

// Position is the transport position of the stream feeding an Engine.
type Position struct {
	SampleRate float64       `json:"sample_rate"`
	Samples    int64         `json:"samples"`
	Time       time.Duration `json:"time"`
	Playing    bool          `json:"playing"`
	Recording  bool          `json:"recording"`
}

// Advance returns p moved forward by n samples.
func (p Position) Advance(n int) Position {
	p.Samples += int64(n)
	if p.SampleRate > 0 {
		p.Time = time.Duration(float64(p.Samples) / p.SampleRate * float64(time.Second))
	}
	return p
}

// Block is a whole processed block together with where it started.
type Block[S Sample] struct {
	Frame      Frame[S]
	SampleRate float64
	Start      time.Duration
}

// DisplayBuffer keeps a copy of the most recent block for waveform views.
type DisplayBuffer[S Sample] struct {
	mu    sync.Mutex
	block Block[S]
}

// Set copies frame into the buffer. The copy is skipped while the consumer
// holds the buffer.
func (d *DisplayBuffer[S]) Set(frame Frame[S], sampleRate float64, start time.Duration) bool {
	if !d.mu.TryLock() {
		return false
	}
	defer d.mu.Unlock()

	// reuse storage when the shape has not changed
	dst := d.block.Frame
	if len(dst) != len(frame) || dst.Len() != frame.Len() {
		dst = NewFrame[S](len(frame), frame.Len())
	}
	for c, ch := range frame {
		copy(dst[c], ch)
	}
	d.block = Block[S]{Frame: dst, SampleRate: sampleRate, Start: start}
	return true
}

func (d *DisplayBuffer[S]) reset() {
	d.block = Block[S]{}
}

// Get returns a copy of the stored block.
func (d *DisplayBuffer[S]) Get() Block[S] {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := d.block
	b.Frame = b.Frame.Clone()
	return b
}
