// Package loopback connects a modem's playback straight to its capture
// without sound hardware. It has no cgo dependencies, so simulations and
// tests build on headless hosts.
package loopback

import (
	"context"
	"fmt"
)

// DefaultBlockSize matches the hardware stream's capture block.
const DefaultBlockSize = 1024

// Channel transforms a played waveform into the captured one.
type Channel func([]float64) ([]float64, error)

// Loopback routes played waveforms to its capture side, optionally through
// a channel model. It stands in for a speaker and microphone pair.
type Loopback struct {
	blockSize int
	channel   Channel
	gap       int
	blocks    chan []float64
}

// New creates a loopback that captures in blocks of blockSize. channel may
// be nil. gap samples of silence surround every transmission and pass
// through the channel with it, so echoes and noise spill into the silence.
func New(blockSize int, channel Channel, gap int) *Loopback {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Loopback{
		blockSize: blockSize,
		channel:   channel,
		gap:       max(gap, 0),
		blocks:    make(chan []float64, 4096),
	}
}

// Play queues samples for capture.
func (l *Loopback) Play(ctx context.Context, samples []float64) error {
	buf := make([]float64, 0, len(samples)+2*l.gap)
	buf = append(buf, make([]float64, l.gap)...)
	buf = append(buf, samples...)
	buf = append(buf, make([]float64, l.gap)...)

	if l.channel != nil {
		rx, err := l.channel(buf)
		if err != nil {
			return fmt.Errorf("loopback channel: %w", err)
		}
		buf = rx
	}

	for off := 0; off < len(buf); off += l.blockSize {
		block := make([]float64, l.blockSize)
		copy(block, buf[off:])
		select {
		case l.blocks <- block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Capture forwards queued blocks until ctx is cancelled.
func (l *Loopback) Capture(ctx context.Context, blocks chan<- []float64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-l.blocks:
			select {
			case blocks <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Pending returns the number of queued capture blocks.
func (l *Loopback) Pending() int {
	return len(l.blocks)
}
