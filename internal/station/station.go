// Package station binds the modem to an audio device: text goes out as a
// packet waveform, and captured audio comes back as decoded packets.
package station

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jeongseonghan/acoustic-modem/internal/modem"
	"github.com/jeongseonghan/acoustic-modem/internal/packet"
)

// Player sends a waveform to a speaker.
type Player interface {
	Play(ctx context.Context, samples []float64) error
}

// Capturer delivers microphone blocks until ctx is cancelled.
type Capturer interface {
	Capture(ctx context.Context, blocks chan<- []float64) error
}

// DefaultLevel is the output peak amplitude.
const DefaultLevel = 0.8

// decodeBlock is the block size used when replaying a recording.
const decodeBlock = 4096

// Options configures a station.
type Options struct {
	Modem  modem.Config
	Layout packet.Layout
	Level  float64 // output peak, 0 selects DefaultLevel
}

// Station is one end of the acoustic link.
type Station struct {
	cfg      modem.Config
	codec    *packet.Codec
	level    float64
	player   Player
	capturer Capturer
	events   chan Event

	mu  sync.Mutex
	seq byte
}

// New creates a station. player or capturer may be nil for a send-only or
// receive-only station.
func New(opts Options, player Player, capturer Capturer) (*Station, error) {
	codec, err := packet.NewCodec(opts.Layout)
	if err != nil {
		return nil, err
	}
	cfg := opts.Modem
	cfg.PayloadBits = opts.Layout.Bits()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("station modem config: %w", err)
	}
	level := opts.Level
	if level <= 0 {
		level = DefaultLevel
	}
	return &Station{
		cfg:      cfg,
		codec:    codec,
		level:    level,
		player:   player,
		capturer: capturer,
		events:   make(chan Event, 100),
	}, nil
}

// Config returns the modem config with the packet payload length applied.
func (s *Station) Config() modem.Config { return s.cfg }

// Events returns the event channel for monitoring traffic.
func (s *Station) Events() <-chan Event { return s.events }

// Waveform renders p as a preamble plus protected block at the output level.
func (s *Station) Waveform(p packet.Packet) ([]float64, error) {
	bits, err := s.codec.EncodeBits(p)
	if err != nil {
		return nil, err
	}
	wave, err := modem.Transmit(bits, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("modulate: %w", err)
	}
	modem.Normalize(wave, s.level)
	return wave, nil
}

// NextText packs text into a TEXT packet carrying the next sequence number.
func (s *Station) NextText(text string) packet.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := packet.NewText(s.seq, text)
	s.seq++
	return p
}

// Send packs text into the next TEXT packet and plays it.
func (s *Station) Send(ctx context.Context, text string) (packet.Packet, error) {
	if s.player == nil {
		return packet.Packet{}, errors.New("station has no player")
	}
	p := s.NextText(text)
	wave, err := s.Waveform(p)
	if err != nil {
		return packet.Packet{}, err
	}
	log.WithFields(log.Fields{
		"seq":     p.Seq,
		"bytes":   len(p.Payload),
		"seconds": fmt.Sprintf("%.2f", float64(len(wave))/s.cfg.SampleRate),
	}).Info("Sending packet")

	if err := s.player.Play(ctx, wave); err != nil {
		return packet.Packet{}, fmt.Errorf("play: %w", err)
	}
	s.publish(newPacketEvent(EventSent, p, 0, 0))
	return p, nil
}

// PlayTone plays a calibration sine at the output level.
func (s *Station) PlayTone(ctx context.Context, freq, seconds float64) error {
	if s.player == nil {
		return errors.New("station has no player")
	}
	log.WithFields(log.Fields{"freq": freq, "seconds": seconds}).Info("Playing tone")
	return s.player.Play(ctx, modem.Tone(freq, seconds, s.level, s.cfg.SampleRate))
}

// Listen captures audio and publishes an Event per decoded frame until ctx
// is cancelled or capture fails.
func (s *Station) Listen(ctx context.Context) error {
	if s.capturer == nil {
		return errors.New("station has no capturer")
	}
	rx, err := modem.NewReceiver(s.cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	blocks := make(chan []float64, 64)
	frames := make(chan modem.Frame, 8)
	captureErr := make(chan error, 1)

	go func() {
		captureErr <- s.capturer.Capture(ctx, blocks)
		cancel()
	}()
	go func() {
		defer close(frames)
		if err := rx.Run(ctx, blocks, frames); err != nil && !isStop(err) {
			log.WithError(err).Warn("Receiver stopped")
		}
	}()

	log.WithField("payload_bits", s.cfg.PayloadBits).Info("Listening")
	for f := range frames {
		s.handleFrame(f)
	}

	if err := <-captureErr; err != nil && !isStop(err) {
		s.publish(Event{Kind: EventError, Time: time.Now(), Error: err.Error()})
		return fmt.Errorf("capture: %w", err)
	}
	return nil
}

// Decode replays a recording through the receiver and returns every packet
// that decodes. Frames that fail are published as corrupt events.
func (s *Station) Decode(signal []float64) ([]packet.Packet, error) {
	m, err := modem.NewMachine(s.cfg)
	if err != nil {
		return nil, err
	}

	clean := modem.ApplyDCRemoval(signal)
	// Trailing silence lets a frame that ends the recording complete.
	clean = append(clean, make([]float64, s.cfg.FrameSamples())...)

	var (
		st      modem.RxState
		packets []packet.Packet
	)
	for off := 0; off < len(clean); off += decodeBlock {
		out, err := m.Step(st, clean[off:min(off+decodeBlock, len(clean))])
		if err != nil {
			return packets, err
		}
		st = out.State
		for _, f := range out.Frames {
			if p, ok := s.handleFrame(f); ok {
				packets = append(packets, p)
			}
		}
	}
	return packets, nil
}

func (s *Station) handleFrame(f modem.Frame) (packet.Packet, bool) {
	p, stats, err := s.codec.DecodeFrame(f)
	if err != nil {
		log.WithFields(log.Fields{
			"score": fmt.Sprintf("%.3f", f.Score),
		}).WithError(err).Warn("Dropping frame")
		s.publish(Event{Kind: EventCorrupt, Time: time.Now(), Score: f.Score, Error: err.Error()})
		return packet.Packet{}, false
	}

	log.WithFields(log.Fields{
		"type":   p.Type,
		"seq":    p.Seq,
		"erased": stats.Erased,
	}).Info("Packet received")
	s.publish(newPacketEvent(EventReceived, p, f.Score, stats.Erased))
	return p, true
}

func (s *Station) publish(e Event) {
	select {
	case s.events <- e:
	default:
		log.WithField("kind", e.Kind).Warn("Event channel full, dropping event")
	}
}

func isStop(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
