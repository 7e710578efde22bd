package modem

import (
	"fmt"

	"github.com/jeongseonghan/acoustic-modem/internal/filter"
)

// Frame is one decoded transmission together with the intermediate data a
// reporting collaborator may want.
type Frame struct {
	Offset    int     // first payload sample in the filtered buffer
	Score     float64 // preamble correlation score
	Bits      []byte
	Decisions []Decision
}

// Transmit modulates the preamble followed by payload bits.
func Transmit(payload []byte, cfg Config) ([]float64, error) {
	bits := make([]byte, 0, len(cfg.Preamble)+len(payload))
	bits = append(bits, cfg.Preamble...)
	bits = append(bits, payload...)
	return Modulate(bits, cfg)
}

// Receive filters a captured waveform to the tone band, locates the
// preamble and decodes the payload. It returns the filtered waveform for
// reporting alongside the frame.
func Receive(signal []float64, cfg Config) (Frame, []float64, error) {
	band, err := cfg.Band()
	if err != nil {
		return Frame{}, nil, fmt.Errorf("receive band: %w", err)
	}
	filtered := filter.Apply(signal, band)

	frame, err := decodeFiltered(filtered, cfg)
	return frame, filtered, err
}

// decodeFiltered runs synchronization and demodulation on samples that are
// already band-limited.
func decodeFiltered(filtered []float64, cfg Config) (Frame, error) {
	finder, err := NewSignalFinder(cfg)
	if err != nil {
		return Frame{}, err
	}
	match, err := finder.Find(filtered)
	if err != nil {
		return Frame{}, err
	}

	demod, err := NewDemodulator(cfg)
	if err != nil {
		return Frame{}, err
	}
	decisions := demod.Decode(filtered, match.Payload, cfg.PayloadBits)
	bits := make([]byte, len(decisions))
	for i, d := range decisions {
		bits[i] = d.Bit
	}

	return Frame{
		Offset:    match.Payload,
		Score:     match.Score,
		Bits:      bits,
		Decisions: decisions,
	}, nil
}
