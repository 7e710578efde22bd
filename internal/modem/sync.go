package modem

import (
	"fmt"
	"math"
)

// Preamble synchronization. Two strategies share one interface: a literal
// search over decoded bits, and cross-correlation of the ideal preamble
// waveform against raw samples.

// Match locates a preamble inside a stream.
type Match struct {
	Preamble int     // index of the first preamble element; may be negative for partial overlap
	Payload  int     // index of the first payload element
	Score    float64 // detection quality in [0, 1]
}

// PreambleFinder finds the preamble in a stream of bits or samples.
type PreambleFinder[T any] interface {
	Find(stream []T) (Match, error)
}

var (
	_ PreambleFinder[byte]    = BitFinder{}
	_ PreambleFinder[float64] = (*SignalFinder)(nil)
)

// FindPreamble returns the index of the first occurrence of preamble in bits.
func FindPreamble(bits, preamble []byte) (int, bool) {
	n, m := len(bits), len(preamble)
	for i := 0; i+m <= n; i++ {
		match := true
		for j := 0; j < m; j++ {
			if bits[i+j] != preamble[j] {
				match = false
				break
			}
		}
		if match {
			return i, true
		}
	}
	return -1, false
}

// BitFinder searches decoded bits for the preamble pattern.
type BitFinder struct {
	Preamble []byte
}

// Find implements PreambleFinder for bitstreams.
func (f BitFinder) Find(bits []byte) (Match, error) {
	idx, ok := FindPreamble(bits, f.Preamble)
	if !ok {
		return Match{}, fmt.Errorf("%w in %d bits", ErrPreambleNotFound, len(bits))
	}
	return Match{Preamble: idx, Payload: idx + len(f.Preamble), Score: 1}, nil
}

// PeakTolerance is how far below the strongest correlation peak an earlier
// peak may fall and still be taken as the preamble.
const PeakTolerance = 0.1

// SignalFinder locates the preamble in raw samples by full cross-correlation
// with the regenerated preamble waveform.
type SignalFinder struct {
	template       []float64
	templateEnergy float64
	threshold      float64
	refine         int // lags searched after the first near-maximal peak
}

// NewSignalFinder regenerates cfg.Preamble with the same modem parameters.
func NewSignalFinder(cfg Config) (*SignalFinder, error) {
	template, err := Modulate(cfg.Preamble, cfg)
	if err != nil {
		return nil, fmt.Errorf("preamble waveform: %w", err)
	}
	return &SignalFinder{
		template:       template,
		templateEnergy: energy(template),
		threshold:      cfg.DetectionThreshold,
		refine:         cfg.SamplesPerBit() / 2,
	}, nil
}

// Template returns a copy of the ideal preamble waveform.
func (f *SignalFinder) Template() []float64 {
	out := make([]float64, len(f.template))
	copy(out, f.template)
	return out
}

// Find returns the earliest match whose correlation magnitude is within
// PeakTolerance of the strongest one. Payload bits that repeat the preamble
// correlate almost as well as the preamble, and only the first copy is the
// sync word. Payload points at the first sample after the preamble.
func (f *SignalFinder) Find(signal []float64) (Match, error) {
	m := len(f.template)
	if m == 0 {
		return Match{Score: 1}, nil
	}
	if len(signal) < m {
		return Match{}, fmt.Errorf("%w: signal has %d samples, preamble needs %d",
			ErrPreambleNotFound, len(signal), m)
	}

	corr := crossCorrelate(signal, f.template)
	mags := make([]float64, len(corr))
	strongest := 0.0
	for j, c := range corr {
		mags[j] = math.Abs(c)
		strongest = math.Max(strongest, mags[j])
	}

	floor := (1 - PeakTolerance) * strongest
	first := 0
	for first < len(mags)-1 && mags[first] < floor {
		first++
	}
	// The first lag over the floor sits on the rising edge of its peak.
	bestIdx := first
	for j := first + 1; j < min(first+f.refine+1, len(mags)); j++ {
		if mags[j] > mags[bestIdx] {
			bestIdx = j
		}
	}
	best := mags[bestIdx]
	lag := bestIdx - (m - 1)

	// Normalize by the energy of the overlapping signal segment.
	cum := prefixEnergy(signal)
	lo, hi := max(lag, 0), min(lag+m, len(signal))
	score := 0.0
	if segment := cum[hi] - cum[lo]; segment > 0 && f.templateEnergy > 0 {
		score = math.Min(best/math.Sqrt(segment*f.templateEnergy), 1)
	}
	if f.threshold > 0 && score < f.threshold {
		return Match{}, fmt.Errorf("%w: peak score %.3f below %.3f",
			ErrPreambleNotFound, score, f.threshold)
	}

	return Match{Preamble: lag, Payload: lag + m, Score: score}, nil
}

// FindPreambleInSignal returns the index of the first payload sample
// following preamble in signal. It always reports the best peak;
// cfg.DetectionThreshold only applies to SignalFinder and the receiver.
func FindPreambleInSignal(signal []float64, preamble []byte, cfg Config) (int, error) {
	cfg.Preamble = preamble
	cfg.DetectionThreshold = 0
	finder, err := NewSignalFinder(cfg)
	if err != nil {
		return 0, err
	}
	match, err := finder.Find(signal)
	if err != nil {
		return 0, err
	}
	return match.Payload, nil
}
