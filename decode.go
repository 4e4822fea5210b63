package voxscope

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Clip is a fully decoded audio file.
type Clip struct {
	SampleRate int
	Frame      Frame[float32]
}

// Channels returns the clip's channel count.
func (c *Clip) Channels() int { return c.Frame.NumChannels() }

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.Frame.Len()) * time.Second / time.Duration(c.SampleRate)
}

// DecodeFile decodes a WAV, AIFF, MP3 or Ogg Vorbis file, chosen by extension.
func DecodeFile(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	clip, err := Decode(bytes.NewReader(data), filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return clip, nil
}

// Decode decodes r as the container named by ext (".wav", ".aiff", ".mp3", ".ogg").
func Decode(r io.ReadSeeker, ext string) (*Clip, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "wav", "wave":
		return decodeWAV(r)
	case "aif", "aiff":
		return decodeAIFF(r)
	case "mp3":
		return decodeMP3(r)
	case "ogg", "oga":
		return decodeVorbis(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

func decodeWAV(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid wav file", ErrUnsupportedFormat)
	}
	bitDepth := int(dec.SampleBitDepth())

	switch dec.WavAudioFormat {
	case wavPCM, wavExtensible:
	case wavFloat:
		if bitDepth != 32 {
			return nil, fmt.Errorf("%w: %d-bit float wav", ErrUnsupportedFormat, bitDepth)
		}
	default:
		return nil, fmt.Errorf("%w: wav audio format %d", ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: missing channel count", ErrUnsupportedFormat)
	}

	switch {
	case dec.WavAudioFormat == wavFloat:
		// the decoder hands back the raw IEEE bits as int32
		samples := make([]float32, len(buf.Data))
		for i, v := range buf.Data {
			samples[i] = math.Float32frombits(uint32(int32(v)))
		}
		return &Clip{
			SampleRate: buf.Format.SampleRate,
			Frame:      Deinterleave(samples, buf.Format.NumChannels),
		}, nil
	case bitDepth == 8:
		// 8-bit wav is unsigned with silence at 128
		for i, v := range buf.Data {
			buf.Data[i] = v - 128
		}
	}
	return clipFromInts(buf, bitDepth)
}

type pcmReader interface {
	Format() *audio.Format
	PCMBuffer(buf *audio.IntBuffer) (int, error)
}

func decodeAIFF(r io.ReadSeeker) (*Clip, error) {
	dec := aiff.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid aiff file", ErrUnsupportedFormat)
	}
	dec.ReadInfo()

	buf, err := readAllPCM(dec)
	if err != nil {
		return nil, err
	}
	return clipFromInts(buf, int(dec.BitDepth))
}

// readAllPCM drains a go-audio decoder into one IntBuffer.
func readAllPCM(dec pcmReader) (*audio.IntBuffer, error) {
	format := dec.Format()
	if format == nil {
		return nil, fmt.Errorf("%w: missing format chunk", ErrUnsupportedFormat)
	}
	all := &audio.IntBuffer{Format: format}
	chunk := &audio.IntBuffer{Data: make([]int, 4096), Format: format}
	for {
		n, err := dec.PCMBuffer(chunk)
		all.Data = append(all.Data, chunk.Data[:n]...)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if n == 0 || err != nil {
			return all, nil
		}
	}
}

func clipFromInts(buf *audio.IntBuffer, bitDepth int) (*Clip, error) {
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: missing channel count", ErrUnsupportedFormat)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, bitDepth)
	}
	scale := float32(int64(1) << (bitDepth - 1))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	return &Clip{
		SampleRate: buf.Format.SampleRate,
		Frame:      Deinterleave(samples, buf.Format.NumChannels),
	}, nil
}

func decodeMP3(r io.Reader) (*Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	// always 16-bit little endian stereo
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	return &Clip{
		SampleRate: dec.SampleRate(),
		Frame:      S16LE.DecodeChannels(pcm, 2),
	}, nil
}

func decodeVorbis(r io.Reader) (*Clip, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, err
	}
	channels := dec.Channels()
	if channels <= 0 {
		return nil, fmt.Errorf("%w: vorbis stream without channels", ErrUnsupportedFormat)
	}

	var samples []float32
	buf := make([]float32, 4096*channels)
	for {
		// n counts values across all channels
		n, err := dec.Read(buf)
		samples = append(samples, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return &Clip{
		SampleRate: dec.SampleRate(),
		Frame:      Deinterleave(samples, channels),
	}, nil
}
