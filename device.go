package voxscope

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// loopbackNames are substrings of virtual devices that carry the system output.
var loopbackNames = []string{"BlackHole", "Loopback", "Monitor of", "Stereo Mix"}

// DeviceOptions selects and sizes a capture stream.
type DeviceOptions struct {
	// Name is matched exactly first, then as a case-insensitive substring.
	Name string
	// PreferLoopback picks a loopback device (BlackHole and the like) before
	// looking at Name, so the meter follows what the speakers play.
	PreferLoopback bool
	// Channels limits the captured channels; zero takes all the device has.
	Channels        int
	FramesPerBuffer int
	// HighLatency trades latency for fewer dropouts.
	HighLatency bool
}

// InputDevice captures a PortAudio input and hands every callback block to
// a producer function.
type InputDevice struct {
	mu     sync.Mutex
	info   *portaudio.DeviceInfo
	params portaudio.StreamParameters
	stream *portaudio.Stream
	closed bool
}

// OpenInputDevice initializes PortAudio and selects a device, without
// starting a stream yet.
func OpenInputDevice(opts DeviceOptions) (*InputDevice, error) {
	if err := SafePortAudioInit(); err != nil {
		return nil, err
	}

	apis, err := portaudio.HostApis()
	if err != nil {
		SafePortAudioTerminate()
		return nil, fmt.Errorf("list host apis: %w", err)
	}
	var def *portaudio.DeviceInfo
	if api, err := portaudio.DefaultHostApi(); err == nil {
		def = api.DefaultInputDevice
	}

	selected, err := selectInputDevice(apis, def, opts.Name, opts.PreferLoopback)
	if err != nil {
		SafePortAudioTerminate()
		return nil, err
	}

	var params portaudio.StreamParameters
	if opts.HighLatency {
		params = portaudio.HighLatencyParameters(selected, nil)
	} else {
		params = portaudio.LowLatencyParameters(selected, nil)
	}
	params.Input.Channels = selected.MaxInputChannels
	if opts.Channels > 0 && opts.Channels < selected.MaxInputChannels {
		params.Input.Channels = opts.Channels
	}
	params.SampleRate = selected.DefaultSampleRate
	if opts.FramesPerBuffer > 0 {
		params.FramesPerBuffer = opts.FramesPerBuffer
	}

	return &InputDevice{info: selected, params: params}, nil
}

// ListInputDevices returns every device with at least one input channel.
func ListInputDevices() ([]*portaudio.DeviceInfo, error) {
	if err := SafePortAudioInit(); err != nil {
		return nil, err
	}
	defer SafePortAudioTerminate()

	apis, err := portaudio.HostApis()
	if err != nil {
		return nil, err
	}
	var out []*portaudio.DeviceInfo
	for _, api := range apis {
		for _, dev := range api.Devices {
			if dev.MaxInputChannels > 0 {
				out = append(out, dev)
			}
		}
	}
	return out, nil
}

// Name returns the selected device's name.
func (d *InputDevice) Name() string { return d.info.Name }

// SampleRate returns the stream sample rate.
func (d *InputDevice) SampleRate() float64 { return d.params.SampleRate }

// Channels returns the captured channel count.
func (d *InputDevice) Channels() int { return d.params.Input.Channels }

// Start opens the stream and calls process from the audio thread for every
// block. process must not block; the frame is only valid during the call.
func (d *InputDevice) Start(process func(Frame[float32])) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.stream != nil {
		return fmt.Errorf("device %s already started", d.info.Name)
	}

	stream, err := portaudio.OpenStream(d.params, func(in [][]float32) {
		process(Frame[float32](in))
	})
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start stream: %w", err)
	}
	d.stream = stream

	fmt.Printf("[Device] Capturing %s (sample rate: %.0f Hz, channels: %d)\n",
		d.info.Name, d.params.SampleRate, d.params.Input.Channels)
	return nil
}

// Stop stops and closes the stream. The device can be started again.
func (d *InputDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop()
}

func (d *InputDevice) stop() error {
	if d.stream == nil {
		return nil
	}
	stream := d.stream
	d.stream = nil

	if err := stream.Stop(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}

// Close stops the stream and releases PortAudio.
func (d *InputDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	err := d.stop()
	SafePortAudioTerminate()
	return err
}

// selectInputDevice picks the capture device.
//
// With preferLoopback a loopback device wins, then a device matching name,
// then the default input. Otherwise an exact name match wins, then a partial
// one; an empty name means the default input.
func selectInputDevice(apis []*portaudio.HostApiInfo, def *portaudio.DeviceInfo, name string, preferLoopback bool) (*portaudio.DeviceInfo, error) {
	find := func(match func(*portaudio.DeviceInfo) bool) *portaudio.DeviceInfo {
		for _, api := range apis {
			for _, dev := range api.Devices {
				if dev.MaxInputChannels > 0 && match(dev) {
					return dev
				}
			}
		}
		return nil
	}

	if preferLoopback {
		if dev := find(isLoopbackDevice); dev != nil {
			return dev, nil
		}
	}

	if name != "" {
		if dev := find(func(d *portaudio.DeviceInfo) bool { return d.Name == name }); dev != nil {
			return dev, nil
		}
		if dev := find(func(d *portaudio.DeviceInfo) bool { return containsFold(d.Name, name) }); dev != nil {
			fmt.Printf("[Device] Found partial match device: %s\n", dev.Name)
			return dev, nil
		}
		if !preferLoopback {
			return nil, fmt.Errorf("%w: %s", ErrNoDevice, name)
		}
	}

	if def == nil || def.MaxInputChannels == 0 {
		return nil, fmt.Errorf("%w: no default input", ErrNoDevice)
	}
	return def, nil
}

func isLoopbackDevice(dev *portaudio.DeviceInfo) bool {
	for _, n := range loopbackNames {
		if containsFold(dev.Name, n) {
			return true
		}
	}
	return false
}
