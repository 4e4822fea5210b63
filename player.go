package voxscope

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

var (
	otoMutex   sync.Mutex
	otoContext *oto.Context
	otoRate    int
	otoChans   int
)

// sharedOtoContext returns the process-wide oto context, creating it on first
// use. oto allows a single context, so later callers must ask for the same format.
func sharedOtoContext(sampleRate, channels int) (*oto.Context, error) {
	otoMutex.Lock()
	defer otoMutex.Unlock()

	if otoContext != nil {
		if sampleRate != otoRate || channels != otoChans {
			return nil, fmt.Errorf("%w: output already open at %d Hz x %d, want %d Hz x %d",
				ErrUnsupportedFormat, otoRate, otoChans, sampleRate, channels)
		}
		return otoContext, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio output: %w", err)
	}
	<-ready

	otoContext, otoRate, otoChans = ctx, sampleRate, channels
	return ctx, nil
}

// PlayerOptions controls clip playback.
type PlayerOptions struct {
	// BlockSize is the number of samples per channel handed to the producer at once.
	BlockSize int
	Loop      bool
	// Headless skips the audio output and paces blocks with a timer instead.
	Headless bool
}

// Player plays a Clip and hands every block it plays to a producer function.
// With an output device the blocks are produced as oto pulls them; headless
// playback runs the producer from a ticker at the clip's sample rate.
type Player struct {
	clip *Clip
	opts PlayerOptions

	mu      sync.Mutex
	output  *oto.Player
	stopCh  chan struct{}
	done    chan struct{}
	started bool

	// producer-owned
	process func(Frame[float32])
	pos     int
	view    Frame[float32]
	format  SampleFormat
}

// NewPlayer prepares playback of clip.
func NewPlayer(clip *Clip, opts PlayerOptions) *Player {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 512
	}
	return &Player{
		clip:   clip,
		opts:   opts,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		view:   make(Frame[float32], clip.Channels()),
		format: S16LE.Interleaved(clip.Channels()),
	}
}

// Start begins playback. process runs on the playback goroutine and must not block.
func (p *Player) Start(process func(Frame[float32])) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("player already started")
	}
	if p.clip.Channels() == 0 || p.clip.SampleRate <= 0 {
		return fmt.Errorf("%w: empty clip", ErrUnsupportedFormat)
	}
	p.process = process

	headless := p.opts.Headless
	if !headless && p.clip.Channels() > 2 {
		fmt.Printf("[Player] %d channels cannot be played, running headless\n", p.clip.Channels())
		headless = true
	}

	if headless {
		p.started = true
		go p.tick()
		fmt.Printf("[Player] Headless playback: %v at %d Hz\n", p.clip.Duration(), p.clip.SampleRate)
		return nil
	}

	ctx, err := sharedOtoContext(p.clip.SampleRate, p.clip.Channels())
	if err != nil {
		return err
	}
	p.output = ctx.NewPlayer(p)
	p.output.Play()
	p.started = true
	go p.watch()

	fmt.Printf("[Player] Playing %v at %d Hz, %d channels\n", p.clip.Duration(), p.clip.SampleRate, p.clip.Channels())
	return nil
}

// Done is closed when playback ends or is stopped.
func (p *Player) Done() <-chan struct{} { return p.done }

// Stop ends playback and waits for the producer to finish.
func (p *Player) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	output := p.output
	p.mu.Unlock()

	var err error
	if output != nil {
		output.Pause()
		err = output.Close()
	}
	<-p.done
	return err
}

// next returns the following block, or nil at the end of a non-looping clip.
func (p *Player) next(n int) Frame[float32] {
	total := p.clip.Frame.Len()
	if p.pos >= total {
		if !p.opts.Loop || total == 0 {
			return nil
		}
		p.pos = 0
	}
	end := min(p.pos+n, total)
	for c, ch := range p.clip.Frame {
		p.view[c] = ch[p.pos:end]
	}
	p.pos = end
	return p.view
}

// Read feeds oto with 16-bit PCM and taps each block into the producer.
func (p *Player) Read(b []byte) (int, error) {
	select {
	case <-p.stopCh:
		return 0, io.EOF
	default:
	}

	bytesPerFrame := p.format.stride()
	n := min(len(b)/bytesPerFrame, p.opts.BlockSize)
	if n == 0 {
		return 0, nil
	}
	block := p.next(n)
	if block == nil {
		return 0, io.EOF
	}

	for c, ch := range block {
		p.format.Encode(b[c*2:], ch)
	}
	p.process(block)
	return block.Len() * bytesPerFrame, nil
}

// watch closes done once oto has drained the clip.
func (p *Player) watch() {
	defer close(p.done)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if !p.output.IsPlaying() {
				if err := p.output.Err(); err != nil {
					fmt.Printf("[Player] Playback error: %v\n", err)
				}
				return
			}
		}
	}
}

func (p *Player) tick() {
	defer close(p.done)

	interval := time.Duration(p.opts.BlockSize) * time.Second / time.Duration(p.clip.SampleRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			block := p.next(p.opts.BlockSize)
			if block == nil {
				return
			}
			p.process(block)
		}
	}
}
