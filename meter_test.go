package voxscope

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDbScale(t *testing.T) {
	s := DbScale{MinDb: -54, MaxDb: 0, Top: 0, Bottom: 108}

	assert.Equal(t, 54.0, s.YFromDb(-27))
	assert.Equal(t, 0.0, s.YFromDb(0))
	assert.Equal(t, 108.0, s.YFromDb(-54))
	assert.Equal(t, 108.0, s.YFromDb(-144))
	assert.Equal(t, 0.0, s.YFromDb(12))
}

func TestDbScaleTicks(t *testing.T) {
	s := DbScale{MinDb: -54, MaxDb: 0, Top: 0, Bottom: 54}
	ticks := s.Ticks(6)
	require.Len(t, ticks, 55)

	assert.Equal(t, Tick{Db: -54, Y: 54, Label: "-54"}, ticks[0])
	assert.Equal(t, "", ticks[1].Label)
	assert.Equal(t, Tick{Db: 0, Y: 0, Label: "+0"}, ticks[54])

	var labels []string
	for _, tick := range ticks {
		if tick.Label != "" {
			labels = append(labels, tick.Label)
		}
	}
	assert.Equal(t, []string{"-54", "-48", "-42", "-36", "-30", "-24", "-18", "-12", "-6", "+0"}, labels)
}

func TestDbScaleTicksFractionalRange(t *testing.T) {
	dbs := func(ticks []Tick) []float64 {
		var out []float64
		for _, tick := range ticks {
			out = append(out, tick.Db)
		}
		return out
	}

	s := DbScale{MinDb: -6.5, MaxDb: -0.5, Top: 0, Bottom: 60}
	assert.Equal(t, []float64{-6, -5, -4, -3, -2, -1}, dbs(s.Ticks(0)))

	s = DbScale{MinDb: 0.5, MaxDb: 3.7, Top: 0, Bottom: 32}
	assert.Equal(t, []float64{1, 2, 3}, dbs(s.Ticks(0)))

	s = DbScale{MinDb: -54.5, MaxDb: 0, Top: 0, Bottom: 545}
	ticks := s.Ticks(6)
	require.Len(t, ticks, 55)
	assert.Equal(t, -54.0, ticks[0].Db)
	assert.InDelta(t, 540.0, ticks[0].Y, 1e-9)
}

func TestNewLevelRenderer(t *testing.T) {
	cfg := DefaultMeterConfig()

	r, err := NewLevelRenderer("", cfg)
	require.NoError(t, err)
	assert.IsType(t, &BarRenderer{}, r)

	r, err = NewLevelRenderer("lights", cfg)
	require.NoError(t, err)
	assert.Equal(t, &LightsRenderer{MinDb: -54, MaxDb: 0, TickDb: 6}, r)

	_, err = NewLevelRenderer("scope", cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBarRenderer(t *testing.T) {
	r := &BarRenderer{Width: 12, MinDb: -48, MaxDb: 0}
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, []Levels{
		{PeakDb: -24, HoldDb: -12, Clipped: true},
		{PeakDb: -144, HoldDb: -144},
	}))

	want := " 1 [######---|--]  -24.0 dB CLIP\n" +
		" 2 [------------]   -inf dB\n"
	assert.Equal(t, want, buf.String())
}

func TestLightsRenderer(t *testing.T) {
	r := &LightsRenderer{MinDb: -48, MaxDb: 0}
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, []Levels{
		{Lit: []bool{true, true, true, true, true}, Clipped: true},
		{Lit: []bool{true, false, false, false, false}},
	}))

	want := "     ! .\n" +
		"     + .\n" +
		"     + .\n" +
		"     * .\n" +
		"     * *\n" +
		"     C\n"
	assert.Equal(t, want, buf.String())

	buf.Reset()
	require.NoError(t, r.Render(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestLightsRendererGutter(t *testing.T) {
	r := &LightsRenderer{MinDb: -48, MaxDb: 0, TickDb: 12}
	assert.Equal(t, []string{"+0", "-12", "-24", "-36", "-48"}, r.gutter(5))

	r.TickDb = 0
	assert.Equal(t, []string{"", ""}, r.gutter(2))
}

func TestStereoMeter(t *testing.T) {
	cfg := DefaultMeterConfig()
	m := NewStereoMeter[float32](cfg)

	frame := constantFrame[float32](2, 64, 0.5)
	for i := range frame[1] {
		frame[1][i] = 0
	}
	m.Capture(frame)

	levels := m.Poll()
	require.Len(t, levels, 2)
	assert.True(t, levels[0].HasSignal)
	assert.False(t, levels[1].HasSignal)
	assert.Equal(t, cfg.FloorDb, levels[1].PeakDb)

	// mono only reaches the left side
	m.Capture(constantFrame[float32](1, 64, 0.5))
	assert.Greater(t, m.Left.Max(), cfg.FloorDb)
	assert.Equal(t, cfg.FloorDb, m.Right.Max())

	m.Reset()
	assert.Equal(t, cfg.FloorDb, m.Left.Poll().HoldDb)
}
