package voxscope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const (
	opusSampleRate = 48000
	// 120 ms, the longest opus frame
	maxOpusFrame = opusSampleRate * 120 / 1000

	levelsChannelLabel = "levels"

	// consecutive ReadRTP failures before a track is given up
	maxReadErrors = 50
)

// readErrorBackoff is the pause after a failed ReadRTP.
var readErrorBackoff = 20 * time.Millisecond

var defaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:3478",
	"stun:stun2.l.google.com:19302",
}

// RemoteConfig configures a WebRTC session with a remote audio peer.
type RemoteConfig struct {
	// SignalingURL receives the SDP offer in a POST and answers with SDP.
	SignalingURL string   `yaml:"signaling_url"`
	Token        string   `yaml:"token"`
	Channels     int      `yaml:"channels"`
	ICEServers   []string `yaml:"ice_servers"`
	// Monitor plays the received audio on the default output as well.
	Monitor bool `yaml:"monitor"`
}

// Session receives an opus audio track from a remote peer and sends meter
// displays back over the "levels" data channel.
type Session struct {
	cfg RemoteConfig
	pc  *webrtc.PeerConnection
	dc  *webrtc.DataChannel

	mu        sync.Mutex
	stopCh    chan struct{}
	tracks    sync.WaitGroup
	receiving bool
}

// NewSession creates the peer connection, a receive-only audio transceiver
// and the levels data channel.
func NewSession(cfg RemoteConfig) (*Session, error) {
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = defaultICEServers
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: cfg.ICEServers}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to add audio transceiver: %w", err)
	}
	dc, err := pc.CreateDataChannel(levelsChannelLabel, nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}

	return &Session{
		cfg:    cfg,
		pc:     pc,
		dc:     dc,
		stopCh: make(chan struct{}),
	}, nil
}

// Conn runs the offer/answer exchange against the signaling URL.
func (s *Session) Conn(ctx context.Context) error {
	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		fmt.Printf("[Remote] Connection state changed: %s\n", state.String())
	})
	s.dc.OnOpen(func() {
		fmt.Println("[Remote] Levels channel opened")
	})
	s.dc.OnClose(func() {
		fmt.Println("[Remote] Levels channel closed")
	})
	s.dc.OnError(func(err error) {
		fmt.Printf("[Remote] Levels channel error: %v\n", err)
	})

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	answer, err := postOffer(ctx, s.cfg.SignalingURL, s.cfg.Token, s.pc.LocalDescription().SDP)
	if err != nil {
		return err
	}
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	fmt.Println("[Remote] Remote SDP set, waiting for connection to establish...")
	return nil
}

func postOffer(ctx context.Context, url, token, sdp string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(sdp)))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("signaling returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

// RegisterTrack decodes the first incoming audio track and hands its blocks
// to process. process is the only producer; later tracks are ignored.
func (s *Session) RegisterTrack(process func(Frame[float32])) {
	s.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		s.mu.Lock()
		if s.receiving {
			s.mu.Unlock()
			fmt.Printf("[Remote] Ignoring extra audio track %s\n", track.ID())
			return
		}
		s.receiving = true
		s.tracks.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.tracks.Done()
			if err := s.receive(track, process); err != nil {
				fmt.Printf("[Remote] Track %s stopped: %v\n", track.ID(), err)
			}
		}()
	})
}

func (s *Session) receive(track *webrtc.TrackRemote, process func(Frame[float32])) error {
	src, err := NewRemoteSource(s.cfg.Channels)
	if err != nil {
		return err
	}

	if s.cfg.Monitor {
		ctx, err := sharedOtoContext(opusSampleRate, s.cfg.Channels)
		if err != nil {
			fmt.Printf("[Remote] Monitor output unavailable: %v\n", err)
		} else {
			// a quarter second of 16-bit audio
			queue := newPCMQueue(opusSampleRate/4*2*s.cfg.Channels, 2*s.cfg.Channels)
			player := ctx.NewPlayer(queue)
			player.Play()
			defer player.Close()
			defer queue.Close()
			src.Monitor = queue
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Printf("[Remote] Receiving %s track %s\n", track.Codec().MimeType, track.ID())
	return src.Run(ctx, track, process)
}

// Publish sends v as JSON on the levels channel.
func (s *Session) Publish(v any) error {
	if s.dc == nil || s.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	msg, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode levels: %w", err)
	}
	return s.dc.SendText(string(msg))
}

// Stop closes the data channel and the peer connection and waits for track readers.
func (s *Session) Stop() {
	s.mu.Lock()
	select {
	case <-s.stopCh:
		s.mu.Unlock()
		return
	default:
		close(s.stopCh)
	}
	s.mu.Unlock()

	if s.dc != nil && s.dc.ReadyState() == webrtc.DataChannelStateOpen {
		_ = s.dc.Close()
	}
	if s.pc != nil {
		_ = s.pc.Close()
	}
	s.tracks.Wait()
}

// packetReader is the part of *webrtc.TrackRemote a RemoteSource reads from.
type packetReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// RemoteSource decodes opus RTP payloads into frames.
type RemoteSource struct {
	channels int
	dec      *opus.Decoder
	pcm      []float32
	frame    Frame[float32]

	// Monitor, when set, receives the decoded audio as 16-bit little endian PCM.
	Monitor io.Writer

	Packets      int
	DecodeErrors int
}

// NewRemoteSource returns a 48 kHz opus decoder for the given channel count.
func NewRemoteSource(channels int) (*RemoteSource, error) {
	dec, err := opus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	return &RemoteSource{
		channels: channels,
		dec:      dec,
		pcm:      make([]float32, maxOpusFrame*channels),
		frame:    NewFrame[float32](channels, maxOpusFrame),
	}, nil
}

// SampleRate is always 48 kHz for opus.
func (s *RemoteSource) SampleRate() float64 { return opusSampleRate }

// Channels returns the decoded channel count.
func (s *RemoteSource) Channels() int { return s.channels }

// Run reads packets until the track ends or ctx is cancelled.
func (s *RemoteSource) Run(ctx context.Context, track packetReader, process func(Frame[float32])) error {
	lastLog := time.Now()
	readErrors := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) || strings.Contains(err.Error(), "closed") {
				return nil
			}
			readErrors++
			if readErrors >= maxReadErrors {
				return fmt.Errorf("read rtp: %d errors in a row: %w", readErrors, err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readErrorBackoff):
			}
			continue
		}
		readErrors = 0

		block, err := s.Decode(pkt.Payload)
		if err != nil {
			s.DecodeErrors++
			fmt.Printf("[Remote] Decoding audio failed: %v\n", err)
			continue
		}
		if block.Len() == 0 {
			continue
		}
		process(block)

		if s.Monitor != nil {
			if _, err := s.Monitor.Write(S16LE.EncodeChannels(block)); err != nil && !errors.Is(err, ErrClosed) {
				fmt.Printf("[Remote] Monitor write failed: %v\n", err)
			}
		}

		if time.Since(lastLog) > 10*time.Second {
			fmt.Printf("[Remote] Received %d packets (%d decode errors)\n", s.Packets, s.DecodeErrors)
			lastLog = time.Now()
		}
	}
}

// Decode decodes one opus packet. The returned frame is reused by the next call.
func (s *RemoteSource) Decode(payload []byte) (Frame[float32], error) {
	n, err := s.dec.DecodeFloat32(payload, s.pcm)
	if err != nil {
		return nil, err
	}
	s.Packets++

	for c := range s.frame {
		s.frame[c] = s.frame[c][:cap(s.frame[c])][:n]
	}
	for i := range n {
		base := i * s.channels
		for c := range s.channels {
			s.frame[c][i] = s.pcm[base+c]
		}
	}
	return s.frame, nil
}
