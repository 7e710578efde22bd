// Package audio moves modem waveforms between memory and sound hardware.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	log "github.com/sirupsen/logrus"

	"github.com/jeongseonghan/acoustic-modem/internal/modem"
)

// Defaults for a mono float32 stream.
const (
	DefaultSampleRate = modem.DefaultSampleRate
	DefaultBlockSize  = 1024
	NumChannels       = 1
)

// Options configures a hardware stream.
type Options struct {
	SampleRate float64 `yaml:"sample_rate"`
	BlockSize  int     `yaml:"block_size"`
}

// DefaultOptions returns 44.1 kHz mono in 1024-sample blocks.
func DefaultOptions() Options {
	return Options{SampleRate: DefaultSampleRate, BlockSize: DefaultBlockSize}
}

// Validate checks the stream parameters.
func (o Options) Validate() error {
	if o.SampleRate <= 0 {
		return fmt.Errorf("audio sample rate must be positive, got %g", o.SampleRate)
	}
	if o.BlockSize <= 0 {
		return fmt.Errorf("audio block size must be positive, got %d", o.BlockSize)
	}
	return nil
}

// Init initializes PortAudio.
func Init() error {
	return portaudio.Initialize()
}

// Terminate cleans up PortAudio.
func Terminate() error {
	return portaudio.Terminate()
}

// Stream plays and captures through the default PortAudio devices. Streams
// are opened lazily and stay open until Close.
type Stream struct {
	opts Options

	mu     sync.Mutex
	input  *portaudio.Stream
	output *portaudio.Stream
	inBuf  []float32
	outBuf []float32
}

// NewStream creates a stream; no device is touched until first use.
func NewStream(opts Options) (*Stream, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Stream{
		opts:   opts,
		inBuf:  make([]float32, opts.BlockSize),
		outBuf: make([]float32, opts.BlockSize),
	}, nil
}

func (s *Stream) openOutput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.output != nil {
		return nil
	}
	stream, err := portaudio.OpenDefaultStream(0, NumChannels, s.opts.SampleRate, s.opts.BlockSize, s.outBuf)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	s.output = stream
	log.WithFields(log.Fields{
		"rate":  s.opts.SampleRate,
		"block": s.opts.BlockSize,
	}).Debug("Opened output stream")
	return nil
}

func (s *Stream) openInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.input != nil {
		return nil
	}
	stream, err := portaudio.OpenDefaultStream(NumChannels, 0, s.opts.SampleRate, s.opts.BlockSize, s.inBuf)
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	s.input = stream
	log.WithFields(log.Fields{
		"rate":  s.opts.SampleRate,
		"block": s.opts.BlockSize,
	}).Debug("Opened input stream")
	return nil
}

// Play writes samples to the output device in block-sized chunks, padding
// the last block with silence. It returns early when ctx is cancelled.
func (s *Stream) Play(ctx context.Context, samples []float64) error {
	if err := s.openOutput(); err != nil {
		return err
	}
	if err := s.output.Start(); err != nil {
		return fmt.Errorf("start output: %w", err)
	}
	defer s.output.Stop()

	pcm := modem.SamplesToFloat32(samples)
	for off := 0; off < len(pcm); off += s.opts.BlockSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(s.outBuf, pcm[off:])
		clear(s.outBuf[n:])
		if err := s.output.Write(); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	return nil
}

// Capture reads blocks from the input device and sends them on blocks until
// ctx is cancelled. Input overflows are logged and skipped.
func (s *Stream) Capture(ctx context.Context, blocks chan<- []float64) error {
	if err := s.openInput(); err != nil {
		return err
	}
	if err := s.input.Start(); err != nil {
		return fmt.Errorf("start input: %w", err)
	}
	defer s.input.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.input.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				log.Warn("Input overflowed, samples dropped")
				continue
			}
			return fmt.Errorf("read: %w", err)
		}
		block := modem.Float32ToSamples(s.inBuf)
		select {
		case blocks <- block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes all open streams.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.input != nil {
		errs = append(errs, s.input.Close())
		s.input = nil
	}
	if s.output != nil {
		errs = append(errs, s.output.Close())
		s.output = nil
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close streams: %w", err)
	}
	return nil
}
