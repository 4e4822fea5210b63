package voxscope

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
)

// LevelRenderer draws one poll worth of channel levels.
type LevelRenderer interface {
	Render(w io.Writer, levels []Levels) error
}

// NewLevelRenderer returns the renderer registered under name: "bar" or "lights".
func NewLevelRenderer(name string, cfg MeterConfig) (LevelRenderer, error) {
	switch name {
	case "bar", "":
		return &BarRenderer{Width: 48, MinDb: cfg.MinDb, MaxDb: cfg.MaxDb}, nil
	case "lights":
		return &LightsRenderer{MinDb: cfg.MinDb, MaxDb: cfg.MaxDb, TickDb: 6}, nil
	}
	return nil, fmt.Errorf("%w: renderer %q", ErrInvalidConfig, name)
}

// DbScale maps decibels onto a vertical axis where Bottom is MinDb and Top is MaxDb.
type DbScale struct {
	MinDb, MaxDb float64
	Top, Bottom  float64
}

// YFromDb returns the coordinate of db, clamped to the scale.
func (s DbScale) YFromDb(db float64) float64 {
	if db <= s.MinDb {
		return s.Bottom
	}
	if db >= s.MaxDb {
		return s.Top
	}
	if s.MaxDb == s.MinDb {
		return s.Bottom
	}
	return s.Bottom + (db-s.MinDb)*(s.Top-s.Bottom)/(s.MaxDb-s.MinDb)
}

// Tick is one whole-decibel mark on a DbScale. Only every inc-th tick has a label.
type Tick struct {
	Db    float64
	Y     float64
	Label string
}

// Ticks lists a tick for every whole dB between MinDb and MaxDb, labelling
// those divisible by inc.
func (s DbScale) Ticks(inc int) []Tick {
	var ticks []Tick
	for v := int(math.Ceil(s.MinDb)); v <= int(math.Floor(s.MaxDb)); v++ {
		t := Tick{Db: float64(v), Y: s.YFromDb(float64(v))}
		if inc > 0 && v%inc == 0 {
			t.Label = fmt.Sprintf("%+2.0f", float64(v))
		}
		ticks = append(ticks, t)
	}
	return ticks
}

// BarRenderer draws one horizontal bar per channel:
//
//	1 [#############-------|-----]  -18.2 dB CLIP
type BarRenderer struct {
	Width        int
	MinDb, MaxDb float64
}

func (r *BarRenderer) Render(w io.Writer, levels []Levels) error {
	bw := bufio.NewWriter(w)
	width := max(r.Width, 1)
	scale := DbScale{MinDb: r.MinDb, MaxDb: r.MaxDb, Bottom: 0, Top: float64(width)}

	for c, l := range levels {
		fill := int(scale.YFromDb(l.PeakDb))
		hold := -1
		if l.HoldDb > r.MinDb {
			hold = min(int(scale.YFromDb(l.HoldDb)), width-1)
		}

		var bar strings.Builder
		for i := range width {
			switch {
			case i < fill:
				bar.WriteByte('#')
			case i == hold:
				bar.WriteByte('|')
			default:
				bar.WriteByte('-')
			}
		}

		flag := ""
		if l.Clipped {
			flag = " CLIP"
		}
		if _, err := fmt.Fprintf(bw, "%2d [%s] %s%s\n", c+1, bar.String(), formatDb(l.PeakDb, r.MinDb), flag); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LightsRenderer draws a vertical column of lights per channel with a dB
// gutter on the left. The top light is red, the next 40% are orange and the
// rest green:
//
//	 +0 ! !
//	    + .
//	-12 * *
type LightsRenderer struct {
	MinDb, MaxDb float64
	// TickDb is the label spacing of the gutter; zero disables the gutter.
	TickDb int
}

const (
	lightOff    = '.'
	lightRed    = '!'
	lightOrange = '+'
	lightGreen  = '*'
)

func (r *LightsRenderer) Render(w io.Writer, levels []Levels) error {
	if len(levels) == 0 {
		return nil
	}
	n := len(levels[0].Lit)
	labels := r.gutter(n)
	orange := int(float64(n) * 0.4)

	bw := bufio.NewWriter(w)
	for row := range n {
		// row 0 is the top light
		level := n - row
		line := []byte(fmt.Sprintf("%4s", labels[row]))
		for _, l := range levels {
			glyph := byte(lightOff)
			if level-1 < len(l.Lit) && l.Lit[level-1] {
				switch {
				case row == 0:
					glyph = lightRed
				case row <= orange:
					glyph = lightOrange
				default:
					glyph = lightGreen
				}
			}
			line = append(line, ' ', glyph)
		}
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}

	var flags strings.Builder
	flags.WriteString("    ")
	for _, l := range levels {
		if l.Clipped {
			flags.WriteString(" C")
		} else {
			flags.WriteString("  ")
		}
	}
	if _, err := fmt.Fprintln(bw, strings.TrimRight(flags.String(), " ")); err != nil {
		return err
	}
	return bw.Flush()
}

// gutter returns the label printed next to each of n rows, top first.
func (r *LightsRenderer) gutter(n int) []string {
	labels := make([]string, n)
	if r.TickDb <= 0 || n == 0 {
		return labels
	}
	scale := DbScale{MinDb: r.MinDb, MaxDb: r.MaxDb, Top: 0, Bottom: float64(n - 1)}
	for _, t := range scale.Ticks(r.TickDb) {
		if t.Label == "" {
			continue
		}
		row := int(math.Round(t.Y))
		if labels[row] == "" {
			labels[row] = t.Label
		}
	}
	return labels
}

func formatDb(db, floor float64) string {
	if db <= floor {
		return "  -inf dB"
	}
	return fmt.Sprintf("%6.1f dB", db)
}

// StereoMeter pairs two trackers fed from channels 0 and 1 of the same frames.
type StereoMeter[S Sample] struct {
	Left, Right *PeakTracker[S]
}

func NewStereoMeter[S Sample](cfg MeterConfig) *StereoMeter[S] {
	return &StereoMeter[S]{
		Left:  NewPeakTracker[S](cfg),
		Right: NewPeakTracker[S](cfg),
	}
}

// Capture feeds channel 0 to Left and channel 1 to Right. A mono frame only
// reaches Left.
func (m *StereoMeter[S]) Capture(frame Frame[S]) {
	m.Left.Capture(frame, 0)
	m.Right.Capture(frame, 1)
}

// Poll polls both sides.
func (m *StereoMeter[S]) Poll() []Levels {
	return []Levels{m.Left.Poll(), m.Right.Poll()}
}

// Reset returns both sides to silence.
func (m *StereoMeter[S]) Reset() {
	m.Left.Reset()
	m.Right.Reset()
}
