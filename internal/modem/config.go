package modem

import (
	"errors"
	"fmt"
	"math"

	"github.com/jeongseonghan/acoustic-modem/internal/filter"
)

var (
	// ErrInvalidConfig reports non-positive rates or identical tone frequencies.
	ErrInvalidConfig = errors.New("invalid modem config")
	// ErrPreambleNotFound reports that a synchronizer exhausted its search space.
	ErrPreambleNotFound = errors.New("preamble not found")
)

// DefaultPreamble is the Barker-like sync word sent ahead of every payload.
var DefaultPreamble = []byte{1, 0, 1, 1, 0, 0, 1, 0}

// Default modem parameters.
const (
	DefaultSampleRate   = 44100
	DefaultBitRate      = 100
	DefaultFreq0        = 500
	DefaultFreq1        = 1500
	DefaultGuardBand    = 100
	DefaultFilterOrder  = 5
	DefaultNeighborBins = 2

	DefaultDetectionThreshold = 0.5
)

// Config carries every modem parameter explicitly. Nothing in this package
// reads process-wide settings.
type Config struct {
	SampleRate float64 // Hz
	BitRate    float64 // bits per second
	Freq0      float64 // tone for a 0 bit, Hz
	Freq1      float64 // tone for a 1 bit, Hz

	// GuardBand widens the receive filter beyond the tone pair, Hz.
	GuardBand   float64
	FilterOrder int

	Preamble []byte

	// NeighborBins is the half-width of the spectral neighbourhood searched
	// around each tone bin.
	NeighborBins int

	// DetectionThreshold is the minimum normalized correlation accepted as a
	// preamble. Zero accepts the best peak unconditionally.
	DetectionThreshold float64

	// PayloadBits is the number of bits following the preamble in a frame.
	// Zero means "decode to the end of the buffer".
	PayloadBits int

	// Squelch is the peak level that wakes an idle receiver. Zero disables it.
	Squelch float64
}

// DefaultConfig returns the reference parameter set.
func DefaultConfig() Config {
	return Config{
		SampleRate:   DefaultSampleRate,
		BitRate:      DefaultBitRate,
		Freq0:        DefaultFreq0,
		Freq1:        DefaultFreq1,
		GuardBand:    DefaultGuardBand,
		FilterOrder:  DefaultFilterOrder,
		Preamble:     append([]byte(nil), DefaultPreamble...),
		NeighborBins: DefaultNeighborBins,

		DetectionThreshold: DefaultDetectionThreshold,
	}
}

// Validate checks the invariants every modem operation relies on.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %g", ErrInvalidConfig, c.SampleRate)
	case c.BitRate <= 0:
		return fmt.Errorf("%w: bit rate %g", ErrInvalidConfig, c.BitRate)
	case c.Freq0 == c.Freq1:
		return fmt.Errorf("%w: freq0 and freq1 are both %g Hz", ErrInvalidConfig, c.Freq0)
	case c.NeighborBins < 0:
		return fmt.Errorf("%w: neighbor bins %d", ErrInvalidConfig, c.NeighborBins)
	case c.PayloadBits < 0:
		return fmt.Errorf("%w: payload bits %d", ErrInvalidConfig, c.PayloadBits)
	}
	if c.SamplesPerBit() < 1 {
		return fmt.Errorf("%w: bit rate %g exceeds sample rate %g", ErrInvalidConfig, c.BitRate, c.SampleRate)
	}
	for i, b := range c.Preamble {
		if b > 1 {
			return fmt.Errorf("%w: preamble[%d] = %d", ErrInvalidConfig, i, b)
		}
	}
	return nil
}

// SamplesPerBit returns round(SampleRate / BitRate).
func (c Config) SamplesPerBit() int {
	if c.BitRate <= 0 {
		return 0
	}
	return int(math.Round(c.SampleRate / c.BitRate))
}

// CenterFrequency is the midpoint of the tone pair.
func (c Config) CenterFrequency() float64 {
	return (c.Freq0 + c.Freq1) / 2
}

// Band designs the receive bandpass for this tone pair.
func (c Config) Band() (filter.Spec, error) {
	order := c.FilterOrder
	if order == 0 {
		order = DefaultFilterOrder
	}
	return filter.ForTones(c.Freq0, c.Freq1, c.GuardBand, c.SampleRate, order)
}

// FrameSamples is the length of a preamble plus PayloadBits in samples.
func (c Config) FrameSamples() int {
	return (len(c.Preamble) + c.PayloadBits) * c.SamplesPerBit()
}
