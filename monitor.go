package voxscope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// DisplaySink receives every display the Monitor polls.
type DisplaySink[S Sample] interface {
	Show(Display[S]) error
}

// SinkFunc adapts a function to a DisplaySink.
type SinkFunc[S Sample] func(Display[S]) error

func (f SinkFunc[S]) Show(d Display[S]) error { return f(d) }

// RenderSink draws the levels of each display with a LevelRenderer.
type RenderSink[S Sample] struct {
	W        io.Writer
	Renderer LevelRenderer
	// Redraw moves the cursor home and clears the terminal before drawing.
	Redraw bool
}

func (r *RenderSink[S]) Show(d Display[S]) error {
	if r.Redraw {
		if _, err := io.WriteString(r.W, "\033[H\033[2J"); err != nil {
			return err
		}
	}
	if err := r.Renderer.Render(r.W, d.Levels); err != nil {
		return err
	}
	state := "stopped"
	if d.Position.Playing {
		state = "running"
	}
	if d.Position.Recording {
		state += ", recording"
	}
	_, err := fmt.Fprintf(r.W, "%10s  %.0f Hz  %s\n", d.Position.Time.Truncate(time.Millisecond*100), d.Position.SampleRate, state)
	return err
}

// Monitor is the consumer loop: it polls an Engine at a fixed rate and hands
// each display to its sinks.
type Monitor[S Sample] struct {
	engine    *Engine[S]
	interval  time.Duration
	sinks     []DisplaySink[S]
	recording bool

	failing map[int]bool
}

// NewMonitor polls e pollHz times per second.
func NewMonitor[S Sample](e *Engine[S], pollHz int, sinks ...DisplaySink[S]) *Monitor[S] {
	if pollHz <= 0 {
		pollHz = 30
	}
	return &Monitor[S]{
		engine:   e,
		interval: time.Second / time.Duration(pollHz),
		sinks:    sinks,
		failing:  make(map[int]bool),
	}
}

// Add appends a sink. Not safe while Run is active.
func (m *Monitor[S]) Add(sink DisplaySink[S]) {
	m.sinks = append(m.sinks, sink)
}

// SetRecording marks displays as recording. Not safe while Run is active.
func (m *Monitor[S]) SetRecording(on bool) { m.recording = on }

// Run polls until ctx is done. Callers that drain the ring should Poll once
// more after stopping the producer.
func (m *Monitor[S]) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Poll()
		}
	}
}

// Poll takes one display from the engine and shows it on every sink.
func (m *Monitor[S]) Poll() Display[S] {
	d := m.engine.Poll()
	d.Position.Recording = m.recording

	for i, sink := range m.sinks {
		err := sink.Show(d)
		switch {
		case err == nil:
			if m.failing[i] {
				fmt.Printf("[Monitor] Sink %d recovered\n", i)
				delete(m.failing, i)
			}
		case errors.Is(err, ErrChannelNotOpen):
			// remote peer not connected yet
		case !m.failing[i]:
			// log once until the sink recovers
			fmt.Printf("[Monitor] Sink %d failed: %v\n", i, err)
			m.failing[i] = true
		}
	}
	return d
}
