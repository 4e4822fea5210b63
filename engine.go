package voxscope

import "fmt"

// Format describes the stream an Engine is configured for.
type Format struct {
	SampleRate float64 `json:"sample_rate"`
	Channels   int     `json:"channels"`
	// Capacity is the ring size in samples per channel.
	Capacity int `json:"capacity"`
}

func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %v", ErrInvalidConfig, f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("%w: channel count %d", ErrInvalidConfig, f.Channels)
	}
	if f.Capacity <= 0 {
		return fmt.Errorf("%w: capacity %d", ErrInvalidConfig, f.Capacity)
	}
	return nil
}

// Display is what the consumer gets from one Engine poll.
type Display[S Sample] struct {
	Levels   []Levels `json:"levels"`
	Position Position `json:"position"`
	Samples  Frame[S] `json:"-"`
}

// Engine owns every structure shared between one audio producer and one
// display consumer: the sample ring, a peak tracker per channel, the
// transport position cell and the last-block display buffer.
//
// Process is the producer entry point and never blocks. Snapshot, Poll and
// Position belong to the consumer.
type Engine[S Sample] struct {
	format Format
	meter  MeterConfig

	ring     *RingBuffer[S]
	trackers []*PeakTracker[S]
	position Latest[Position]
	display  DisplayBuffer[S]

	// producer-owned
	pos Position
}

// NewEngine returns an engine configured for f.
func NewEngine[S Sample](f Format, mode SnapshotMode, meter MeterConfig) (*Engine[S], error) {
	e := &Engine[S]{
		meter: meter,
		ring:  &RingBuffer[S]{mode: mode},
	}
	if err := e.Configure(f); err != nil {
		return nil, err
	}
	return e, nil
}

// Configure reallocates all state for f, discarding held samples, levels and
// the position. Neither Process nor the consumer may run concurrently.
func (e *Engine[S]) Configure(f Format) error {
	if err := f.Validate(); err != nil {
		return err
	}
	e.format = f
	e.ring.Initialize(f.Capacity, f.Channels)
	e.trackers = make([]*PeakTracker[S], f.Channels)
	for c := range e.trackers {
		e.trackers[c] = NewPeakTracker[S](e.meter)
	}
	e.pos = Position{SampleRate: f.SampleRate}
	e.position.reset()
	e.display.reset()
	return nil
}

// Format returns the current configuration.
func (e *Engine[S]) Format() Format { return e.format }

// Mode returns the snapshot mode of the ring.
func (e *Engine[S]) Mode() SnapshotMode { return e.ring.Mode() }

// Process hands one block from the producer to every structure. Each step
// is dropped independently if the consumer holds that structure.
func (e *Engine[S]) Process(frame Frame[S]) {
	start := e.pos.Time

	e.ring.Add(frame)
	for c, t := range e.trackers {
		t.Capture(frame, c)
	}
	e.display.Set(frame, e.format.SampleRate, start)

	e.pos = e.pos.Advance(frame.Len())
	e.pos.Playing = true
	e.position.Set(e.pos)
}

// Idle publishes that the producer stopped. Call it once the producer has
// returned for good; unlike Process it waits for the consumer.
func (e *Engine[S]) Idle() {
	e.pos.Playing = false
	e.position.store(e.pos)
}

// Snapshot returns the ring contents, oldest first.
func (e *Engine[S]) Snapshot() Frame[S] {
	return e.ring.Snapshot()
}

// Levels polls every channel's tracker.
func (e *Engine[S]) Levels() []Levels {
	out := make([]Levels, len(e.trackers))
	for c, t := range e.trackers {
		out[c] = t.Poll()
	}
	return out
}

// Position returns the last published transport position.
func (e *Engine[S]) Position() Position {
	p, ok := e.position.Get()
	if !ok {
		return Position{SampleRate: e.format.SampleRate}
	}
	return p
}

// Block returns a copy of the most recent block.
func (e *Engine[S]) Block() Block[S] {
	return e.display.Get()
}

// Poll collects levels, position and a snapshot for one display refresh.
func (e *Engine[S]) Poll() Display[S] {
	return Display[S]{
		Levels:   e.Levels(),
		Position: e.Position(),
		Samples:  e.Snapshot(),
	}
}

// Tap returns a producer callback that feeds float32 blocks into e. A
// float64 engine converts into a buffer owned by the callback, which is
// reallocated only when the block shape changes.
func Tap[S Sample](e *Engine[S]) func(Frame[float32]) {
	if fe, ok := any(e).(*Engine[float32]); ok {
		return fe.Process
	}

	var buf Frame[S]
	return func(in Frame[float32]) {
		if len(buf) != len(in) || buf.Len() != in.Len() {
			buf = NewFrame[S](len(in), in.Len())
		}
		for c, ch := range in {
			dst := buf[c]
			for i, v := range ch {
				dst[i] = S(v)
			}
		}
		e.Process(buf)
	}
}
