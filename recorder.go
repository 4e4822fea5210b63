package voxscope

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// WAVE format tags
const (
	wavPCM        = 1
	wavFloat      = 3
	wavExtensible = 0xFFFE
)

// Recorder appends drained snapshots to a PCM WAV file.
type Recorder[S Sample] struct {
	mu         sync.Mutex
	file       *os.File
	enc        *wav.Encoder
	buf        *audio.IntBuffer
	path       string
	bitDepth   int
	channels   int
	sampleRate int
	frames     int64
	closed     bool
}

// NewRecorder creates a uniquely named WAV file in dir.
func NewRecorder[S Sample](dir string, f Format, bitDepth int) (*Recorder[S], error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit wav", ErrUnsupportedFormat, bitDepth)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}

	name := fmt.Sprintf("voxscope-%s-%s.wav", time.Now().Format("20060102-150405"), uuid.NewString()[:8])
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav file: %w", err)
	}

	rate := int(f.SampleRate)
	fmt.Printf("[Recorder] Saving audio to %s\n", path)
	return &Recorder[S]{
		file: file,
		enc:  wav.NewEncoder(file, rate, bitDepth, f.Channels, wavPCM),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: f.Channels, SampleRate: rate},
			SourceBitDepth: bitDepth,
		},
		path:       path,
		bitDepth:   bitDepth,
		channels:   f.Channels,
		sampleRate: rate,
	}, nil
}

// Path returns the file being written.
func (r *Recorder[S]) Path() string { return r.path }

// Duration returns the length recorded so far.
func (r *Recorder[S]) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.frames) * time.Second / time.Duration(r.sampleRate)
}

// Show records the samples of a display.
func (r *Recorder[S]) Show(d Display[S]) error {
	return r.Write(d.Samples)
}

// Write appends frame. Missing channels are written as silence, extra ones dropped.
func (r *Recorder[S]) Write(frame Frame[S]) error {
	n := frame.checkLengths()
	if n == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	if need := n * r.channels; cap(r.buf.Data) < need {
		r.buf.Data = make([]int, need)
	} else {
		r.buf.Data = r.buf.Data[:need]
		clear(r.buf.Data)
	}
	maxVal := float64(int64(1)<<(r.bitDepth-1) - 1)
	for c := range min(len(frame), r.channels) {
		for i, v := range frame[c] {
			r.buf.Data[i*r.channels+c] = int(quantize(float64(v), maxVal))
		}
	}

	if err := r.enc.Write(r.buf); err != nil {
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	r.frames += int64(n)
	return nil
}

// Close finalizes the WAV header and closes the file.
func (r *Recorder[S]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.frames == 0 {
		// nothing was written, so there is no header to finalize
		r.file.Close()
		fmt.Printf("[Recorder] No audio recorded, removing %s\n", r.path)
		return os.Remove(r.path)
	}

	encErr := r.enc.Close()
	fileErr := r.file.Close()
	if encErr != nil {
		return fmt.Errorf("failed to finalize wav: %w", encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("failed to close wav: %w", fileErr)
	}
	fmt.Printf("[Recorder] Saved %.2f seconds of audio to %s\n",
		float64(r.frames)/float64(r.sampleRate), r.path)
	return nil
}

// WriteWAV writes frame to a new WAV file at path.
func WriteWAV[S Sample](path string, frame Frame[S], sampleRate, bitDepth int) error {
	if frame.Len() == 0 {
		return fmt.Errorf("%w: no samples to write", ErrUnsupportedFormat)
	}
	f := Format{SampleRate: float64(sampleRate), Channels: frame.NumChannels(), Capacity: 1}
	rec, err := NewRecorder[S](filepath.Dir(path), f, bitDepth)
	if err != nil {
		return err
	}
	if err := rec.Write(frame); err != nil {
		rec.Close()
		os.Remove(rec.path)
		return err
	}
	if err := rec.Close(); err != nil {
		return err
	}
	return os.Rename(rec.path, path)
}
