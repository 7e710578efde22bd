package modem

import (
	"iter"
	"math"

	"github.com/mjibson/go-dsp/window"
)

// Decision is the soft output for one symbol slot.
type Decision struct {
	Bit     byte
	Energy0 float64 // peak magnitude near Freq0
	Energy1 float64 // peak magnitude near Freq1

	// Confidence is |Energy1-Energy0| / (Energy1+Energy0), 0 for silence.
	Confidence float64
}

// Demodulator turns fixed-size sample windows into bit decisions by
// comparing spectral magnitude around the two tone frequencies. It holds no
// state between calls.
type Demodulator struct {
	spb       int
	bin0      int
	bin1      int
	neighbors int
	window    []float64
}

// NewDemodulator precomputes the window and tone bins for cfg.
func NewDemodulator(cfg Config) (*Demodulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	spb := cfg.SamplesPerBit()

	win := make([]float64, spb)
	if spb > 1 {
		win = window.Hann(spb)
	} else {
		win[0] = 1
	}

	return &Demodulator{
		spb:       spb,
		bin0:      toneBin(cfg.Freq0, spb, cfg.SampleRate),
		bin1:      toneBin(cfg.Freq1, spb, cfg.SampleRate),
		neighbors: cfg.NeighborBins,
		window:    win,
	}, nil
}

// toneBin maps freq to the nearest FFT bin of an n-point transform.
func toneBin(freq float64, n int, sampleRate float64) int {
	bin := int(math.Round(freq * float64(n) / sampleRate))
	return max(0, min(bin, n/2))
}

// SamplesPerBit returns the symbol window length.
func (d *Demodulator) SamplesPerBit() int {
	return d.spb
}

// Decisions yields one Decision per complete symbol window starting at
// start. A trailing partial window is dropped. The sequence can be ranged
// over any number of times.
func (d *Demodulator) Decisions(signal []float64, start int) iter.Seq[Decision] {
	return func(yield func(Decision) bool) {
		for off := max(start, 0); off+d.spb <= len(signal); off += d.spb {
			if !yield(d.decide(signal[off : off+d.spb])) {
				return
			}
		}
	}
}

// Bits yields the hard decisions of Decisions.
func (d *Demodulator) Bits(signal []float64, start int) iter.Seq[byte] {
	return func(yield func(byte) bool) {
		for dec := range d.Decisions(signal, start) {
			if !yield(dec.Bit) {
				return
			}
		}
	}
}

// Decode collects up to n decisions; n <= 0 means all of them.
func (d *Demodulator) Decode(signal []float64, start, n int) []Decision {
	out := make([]Decision, 0, max(n, 0))
	for dec := range d.Decisions(signal, start) {
		if n > 0 && len(out) == n {
			break
		}
		out = append(out, dec)
	}
	return out
}

func (d *Demodulator) decide(chunk []float64) Decision {
	mags := magnitudeSpectrum(chunk, d.window)
	e0 := neighborhoodPeak(mags, d.bin0, d.neighbors)
	e1 := neighborhoodPeak(mags, d.bin1, d.neighbors)

	dec := Decision{Energy0: e0, Energy1: e1}
	// Ties resolve to 0.
	if e1 > e0 {
		dec.Bit = 1
	}
	if sum := e0 + e1; sum > 0 {
		dec.Confidence = math.Abs(e1-e0) / sum
	}
	return dec
}

func neighborhoodPeak(mags []float64, center, width int) float64 {
	peak := 0.0
	for k := max(center-width, 0); k <= min(center+width, len(mags)-1); k++ {
		if mags[k] > peak {
			peak = mags[k]
		}
	}
	return peak
}

// Demodulate decodes every complete symbol window of signal from start.
// A signal shorter than one symbol yields an empty bitstream.
func Demodulate(signal []float64, start int, cfg Config) ([]byte, error) {
	d, err := NewDemodulator(cfg)
	if err != nil {
		return nil, err
	}
	bits := make([]byte, 0, max(len(signal)-start, 0)/d.spb)
	for b := range d.Bits(signal, start) {
		bits = append(bits, b)
	}
	return bits, nil
}
