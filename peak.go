package voxscope

import (
	"math"
	"sync"
)

// MeterConfig holds the tunables of a PeakTracker.
type MeterConfig struct {
	// PeakHoldTimes is the number of polls a peak stays displayed without a new peak.
	PeakHoldTimes int `yaml:"peak_hold_times"`
	// MinDb and MaxDb bound the range mapped onto the lights.
	MinDb float64 `yaml:"min_db"`
	MaxDb float64 `yaml:"max_db"`
	// LevelCount is the number of discrete lights.
	LevelCount int `yaml:"level_count"`
	// ClipThresholdDb sets the clipped flag when a block's RMS level exceeds it.
	ClipThresholdDb float64 `yaml:"clip_threshold_db"`
	// FloorDb is the value used for silence.
	FloorDb float64 `yaml:"floor_db"`
}

// DefaultMeterConfig returns the settings of a 12-light meter showing -54..0 dB.
func DefaultMeterConfig() MeterConfig {
	return MeterConfig{
		PeakHoldTimes:   10,
		MinDb:           -54,
		MaxDb:           0,
		LevelCount:      12,
		ClipThresholdDb: 0,
		FloorDb:         -144,
	}
}

// Levels is one poll of a PeakTracker, ready to be drawn.
type Levels struct {
	PeakDb    float64 `json:"peak_db"`
	HoldDb    float64 `json:"hold_db"`
	Clipped   bool    `json:"clipped"`
	HasSignal bool    `json:"has_signal"`
	// Lit[i] reports whether light i+1 (counting from the bottom) is on.
	Lit []bool `json:"lit"`
}

// LitCount returns the number of lit lights.
func (l Levels) LitCount() int {
	n := 0
	for _, on := range l.Lit {
		if on {
			n++
		}
	}
	return n
}

// PeakTracker follows the loudest block level of one channel between polls
// and keeps a decaying peak-hold reading for a meter display.
//
// Capture runs on the producer and is dropped when the consumer holds the
// lock; Levels, Poll and Clear run on the consumer.
type PeakTracker[S Sample] struct {
	mu  sync.Mutex
	cfg MeterConfig

	peakAmp   float64
	clipped   bool
	hasSignal bool

	// consumer-side hold state
	peakHold  float64
	holdPolls int
}

// NewPeakTracker returns a tracker reset to silence.
func NewPeakTracker[S Sample](cfg MeterConfig) *PeakTracker[S] {
	t := &PeakTracker[S]{cfg: cfg}
	t.Reset()
	return t
}

// Config returns the tracker's settings.
func (t *PeakTracker[S]) Config() MeterConfig { return t.cfg }

// Capture measures the RMS level of channel ch of frame.
func (t *PeakTracker[S]) Capture(frame Frame[S], ch int) {
	if ch < 0 || ch >= len(frame) {
		return
	}
	if !t.mu.TryLock() {
		return
	}
	defer t.mu.Unlock()

	db := gainToDecibels(frame.RMS(ch), t.cfg.FloorDb)
	if db > t.peakAmp {
		t.peakAmp = db
	}
	if db > t.cfg.ClipThresholdDb {
		t.clipped = true
	}
	if frame.Peak(ch) > 0 {
		t.hasSignal = true
	}
}

// Max returns the loudest level captured since the last Clear.
func (t *PeakTracker[S]) Max() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakAmp
}

// Levels advances the peak hold by one poll and returns the current reading.
func (t *PeakTracker[S]) Levels() Levels {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.levels()
}

// Clear starts a new poll window: the running maximum goes back to the floor
// and the clip and signal flags are cleared. The peak hold is kept.
func (t *PeakTracker[S]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clear()
}

// Poll is Levels followed by Clear under a single lock.
func (t *PeakTracker[S]) Poll() Levels {
	t.mu.Lock()
	defer t.mu.Unlock()

	l := t.levels()
	t.clear()
	return l
}

// Reset returns the tracker to silence, including the peak hold.
// Like RingBuffer.Initialize it must not race with Capture.
func (t *PeakTracker[S]) Reset() {
	t.clear()
	t.peakHold = t.cfg.FloorDb
	t.holdPolls = 0
}

func (t *PeakTracker[S]) clear() {
	t.peakAmp = t.cfg.FloorDb
	t.clipped = false
	t.hasSignal = false
}

func (t *PeakTracker[S]) levels() Levels {
	t.holdPolls++
	if t.holdPolls > t.cfg.PeakHoldTimes {
		t.holdPolls = 0
		t.peakHold = t.cfg.FloorDb
	}
	if t.peakAmp > t.peakHold {
		t.peakHold = t.peakAmp
		t.holdPolls = 0
	}

	return Levels{
		PeakDb:    t.peakAmp,
		HoldDb:    t.peakHold,
		Clipped:   t.clipped,
		HasSignal: t.hasSignal,
		Lit:       LightLevels(t.peakAmp, t.peakHold, t.cfg.MinDb, t.cfg.MaxDb, t.cfg.LevelCount),
	}
}

// LightLevels maps a peak and a hold reading onto levelCount lights.
//
// litCount = floor((peakDb-minDb)/(maxDb-minDb)*levelCount), clamped to
// [0, levelCount]. Light l (1-based) is on when l <= litCount; the light at
// the hold position is on as well.
func LightLevels(peakDb, holdDb, minDb, maxDb float64, levelCount int) []bool {
	lit := make([]bool, max(levelCount, 0))
	if levelCount <= 0 || maxDb <= minDb {
		return lit
	}

	litCount := lightIndex(peakDb, minDb, maxDb, levelCount)
	for l := 1; l <= litCount; l++ {
		lit[l-1] = true
	}
	if hold := lightIndex(holdDb, minDb, maxDb, levelCount); hold >= 1 {
		lit[hold-1] = true
	}
	return lit
}

func lightIndex(db, minDb, maxDb float64, levelCount int) int {
	pos := math.Floor((db - minDb) / (maxDb - minDb) * float64(levelCount))
	if pos < 0 {
		return 0
	}
	if pos > float64(levelCount) {
		return levelCount
	}
	return int(pos)
}
