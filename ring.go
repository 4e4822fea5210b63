package voxscope

import (
	"fmt"
	"sync"
)

// SnapshotMode selects what Snapshot does to the ring after copying it out.
type SnapshotMode int

const (
	// Peek leaves the ring untouched, so consecutive snapshots overlap.
	Peek SnapshotMode = iota
	// Drain empties the ring after each snapshot, so every sample is handed out once.
	Drain
)

func (m SnapshotMode) String() string {
	switch m {
	case Peek:
		return "peek"
	case Drain:
		return "drain"
	default:
		return fmt.Sprintf("SnapshotMode(%d)", int(m))
	}
}

// ParseSnapshotMode parses "peek" or "drain".
func ParseSnapshotMode(s string) (SnapshotMode, error) {
	switch s {
	case "peek", "":
		return Peek, nil
	case "drain":
		return Drain, nil
	}
	return Peek, fmt.Errorf("%w: snapshot mode %q", ErrInvalidConfig, s)
}

// RingBuffer is a fixed-capacity multi-channel sample ring shared by exactly one
// real-time producer and one display consumer.
//
// The producer side (Add) never blocks: if the consumer is inside Snapshot the
// whole block is dropped. The consumer side (Snapshot) takes the lock and waits
// at most one Add critical section.
//
// Data lives in [start, start+count) modulo capacity. While count < capacity,
// start is always 0.
type RingBuffer[S Sample] struct {
	mu sync.Mutex

	channels  [][]S
	capacity  int
	start     int
	count     int
	highWater int
	mode      SnapshotMode
}

// NewRingBuffer allocates a ring holding capacity samples per channel.
func NewRingBuffer[S Sample](capacity, channels int, mode SnapshotMode) *RingBuffer[S] {
	r := &RingBuffer[S]{mode: mode}
	r.Initialize(capacity, channels)
	return r
}

// Initialize (re)allocates storage and discards all held samples.
//
// It is not synchronized with Add or Snapshot; call it only while neither the
// producer nor the consumer is running, e.g. while the device is stopped.
func (r *RingBuffer[S]) Initialize(capacity, channels int) {
	if capacity <= 0 || channels <= 0 {
		panic(fmt.Sprintf("voxscope: ring buffer needs positive capacity and channels, got %d x %d", capacity, channels))
	}
	r.channels = make([][]S, channels)
	for c := range r.channels {
		r.channels[c] = make([]S, capacity)
	}
	r.capacity = capacity
	r.start = 0
	r.count = 0
	r.highWater = 0
}

// Add appends one block from the producer.
//
// If the consumer currently holds the lock the block is dropped without any
// trace. Channels of frame beyond the ring's channel count are ignored, and a
// block longer than the capacity keeps only its trailing samples. When frame
// has fewer channels than the ring, the count and start still advance for
// every channel, so the missing channels show whatever their slots held
// before: zeros if never written, otherwise older samples.
func (r *RingBuffer[S]) Add(frame Frame[S]) {
	if !r.mu.TryLock() {
		return
	}
	defer r.mu.Unlock()

	r.add(frame)
}

func (r *RingBuffer[S]) add(frame Frame[S]) {
	n := frame.checkLengths()
	if n == 0 || r.capacity == 0 {
		return
	}

	skip := 0
	if n > r.capacity {
		skip = n - r.capacity
		n = r.capacity
	}

	fill := min(n, r.capacity-r.count)
	overwrite := n - fill
	head := (r.start + r.count) % r.capacity

	channels := min(len(frame), len(r.channels))
	for c := range channels {
		src := frame[c][skip:]
		dst := r.channels[c]
		writeWrapped(dst, head, src[:fill])
		// once full, the rest replaces the oldest samples
		writeWrapped(dst, r.start, src[fill:])
	}

	r.count += fill
	r.start = (r.start + overwrite) % r.capacity
	if r.count > r.highWater {
		r.highWater = r.count
	}
}

// writeWrapped copies src into dst starting at pos, continuing at index 0 past the end.
func writeWrapped[S Sample](dst []S, pos int, src []S) {
	n := copy(dst[pos:], src)
	copy(dst, src[n:])
}

// Snapshot returns the held samples of every channel in chronological order,
// oldest first, in freshly allocated storage. In Drain mode the ring is emptied.
func (r *RingBuffer[S]) Snapshot() Frame[S] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channels == nil {
		panic("voxscope: Snapshot on uninitialized ring buffer")
	}

	out := NewFrame[S](len(r.channels), r.count)
	for c, ch := range r.channels {
		n := copy(out[c], ch[r.start:])
		copy(out[c][n:], ch[:r.count-n])
	}

	if r.mode == Drain {
		r.start = 0
		r.count = 0
	}
	return out
}

// Len returns the number of samples currently held per channel.
func (r *RingBuffer[S]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Start returns the index of the oldest held sample.
func (r *RingBuffer[S]) Start() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.start
}

// HighWater returns the largest Len seen since the last Initialize.
func (r *RingBuffer[S]) HighWater() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.highWater
}

// Cap returns the capacity per channel.
func (r *RingBuffer[S]) Cap() int { return r.capacity }

// Channels returns the allocated channel count.
func (r *RingBuffer[S]) Channels() int { return len(r.channels) }

// Mode returns the snapshot mode.
func (r *RingBuffer[S]) Mode() SnapshotMode { return r.mode }
