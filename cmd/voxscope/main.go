// Command voxscope meters an audio input, a file or a remote WebRTC track and
// shows per-channel peak levels in the terminal, over a websocket feed and
// back to the remote peer.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voxscope"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run() error {
	if len(os.Args) > 1 && os.Args[1] == "devices" {
		return listDevices()
	}

	// no argument means defaults plus VOXSCOPE_* overrides
	cfgPath := ""
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := voxscope.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Buffer.Precision {
	case "float64":
		return meter[float64](ctx, cfg)
	default:
		return meter[float32](ctx, cfg)
	}
}

func listDevices() error {
	devices, err := voxscope.ListInputDevices()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	for _, dev := range devices {
		fmt.Printf("%-40s in:%d rate:%.0f (%s)\n", dev.Name, dev.MaxInputChannels, dev.DefaultSampleRate, dev.HostApi.Name)
	}
	return nil
}

// source is one producer feeding the engine.
type source struct {
	format voxscope.Format
	start  func(process func(voxscope.Frame[float32])) error
	stop   func() error
	// done is closed when the source ends on its own; nil for live sources.
	done <-chan struct{}
	// publish sends displays back to the source, when it supports that.
	publish func(v any) error
}

func openSource(ctx context.Context, cfg *voxscope.Config) (*source, error) {
	capacity := cfg.Buffer.Capacity

	switch cfg.Source.Kind {
	case "file":
		clip, err := voxscope.DecodeFile(cfg.Source.File)
		if err != nil {
			return nil, err
		}
		player := voxscope.NewPlayer(clip, voxscope.PlayerOptions{
			BlockSize: cfg.Buffer.BlockSize,
			Loop:      cfg.Source.Loop,
			Headless:  cfg.Source.Headless,
		})
		return &source{
			format: voxscope.Format{SampleRate: float64(clip.SampleRate), Channels: clip.Channels(), Capacity: capacity},
			start:  player.Start,
			stop:   player.Stop,
			done:   player.Done(),
		}, nil

	case "remote":
		session, err := voxscope.NewSession(cfg.Remote)
		if err != nil {
			return nil, err
		}
		return &source{
			format: voxscope.Format{SampleRate: 48000, Channels: cfg.Remote.Channels, Capacity: capacity},
			start: func(process func(voxscope.Frame[float32])) error {
				session.RegisterTrack(process)
				return session.Conn(ctx)
			},
			stop: func() error {
				session.Stop()
				return nil
			},
			publish: session.Publish,
		}, nil

	default:
		dev, err := voxscope.OpenInputDevice(voxscope.DeviceOptions{
			Name:            cfg.Source.Device,
			PreferLoopback:  cfg.Source.PreferLoopback,
			Channels:        cfg.Source.Channels,
			FramesPerBuffer: cfg.Buffer.BlockSize,
			HighLatency:     cfg.Source.HighLatency,
		})
		if err != nil {
			return nil, err
		}
		return &source{
			format: voxscope.Format{SampleRate: dev.SampleRate(), Channels: dev.Channels(), Capacity: capacity},
			start:  dev.Start,
			stop:   dev.Close,
		}, nil
	}
}

func meter[S voxscope.Sample](ctx context.Context, cfg *voxscope.Config) error {
	src, err := openSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}

	if err := cfg.CheckRecordWindow(src.format.SampleRate); err != nil {
		src.stop()
		return err
	}

	engine, err := voxscope.NewEngine[S](src.format, cfg.SnapshotMode(), cfg.Meter)
	if err != nil {
		src.stop()
		return fmt.Errorf("create engine: %w", err)
	}
	monitor := voxscope.NewMonitor(engine, cfg.PollHz)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Render != "none" {
		renderer, err := voxscope.NewLevelRenderer(cfg.Render, cfg.Meter)
		if err != nil {
			src.stop()
			return err
		}
		monitor.Add(&voxscope.RenderSink[S]{W: os.Stdout, Renderer: renderer, Redraw: true})
	}

	var recorder *voxscope.Recorder[S]
	if cfg.Record.Dir != "" {
		recorder, err = voxscope.NewRecorder[S](cfg.Record.Dir, src.format, cfg.Record.BitDepth)
		if err != nil {
			src.stop()
			return fmt.Errorf("create recorder: %w", err)
		}
		monitor.Add(recorder)
		monitor.SetRecording(true)
	}

	feedErr := make(chan error, 1)
	if cfg.Feed.Listen != "" {
		feed := voxscope.NewFeed(cfg.Feed.Token)
		monitor.Add(voxscope.SinkFunc[S](func(d voxscope.Display[S]) error {
			return feed.Broadcast(d)
		}))
		go func() {
			err := feed.Serve(runCtx, cfg.Feed.Listen)
			if err != nil {
				cancel()
			}
			feedErr <- err
		}()
	} else {
		feedErr <- nil
	}

	if src.publish != nil {
		monitor.Add(voxscope.SinkFunc[S](func(d voxscope.Display[S]) error {
			return src.publish(d)
		}))
	}

	if err := src.start(voxscope.Tap(engine)); err != nil {
		src.stop()
		if recorder != nil {
			recorder.Close()
		}
		cancel()
		<-feedErr
		return fmt.Errorf("start source: %w", err)
	}

	if src.done != nil {
		go func() {
			select {
			case <-src.done:
				fmt.Println("[Main] Source finished")
				cancel()
			case <-runCtx.Done():
			}
		}()
	}

	started := time.Now()
	monitor.Run(runCtx)

	// stop the producer before touching producer-side state
	if err := src.stop(); err != nil {
		fmt.Printf("[Main] Stopping source failed: %v\n", err)
	}
	engine.Idle()
	monitor.Poll()

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			fmt.Printf("[Main] Closing recording failed: %v\n", err)
		}
	}

	cancel()
	if err := <-feedErr; err != nil {
		return err
	}
	fmt.Printf("[Main] Metered %v\n", time.Since(started).Truncate(time.Millisecond))
	return nil
}
