package modem

import (
	"fmt"
	"math"
)

// Modulate maps each bit to SamplesPerBit samples of a sine at Freq1 (bit 1)
// or Freq0 (bit 0), sampled uniformly over [0, 1/BitRate), and concatenates
// the symbols in bit order.
func Modulate(bits []byte, cfg Config) ([]float64, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	spb := cfg.SamplesPerBit()
	symbol0 := symbol(cfg.Freq0, spb, cfg.BitRate)
	symbol1 := symbol(cfg.Freq1, spb, cfg.BitRate)

	samples := make([]float64, 0, len(bits)*spb)
	for i, b := range bits {
		switch b {
		case 0:
			samples = append(samples, symbol0...)
		case 1:
			samples = append(samples, symbol1...)
		default:
			return nil, fmt.Errorf("bit %d has value %d", i, b)
		}
	}
	return samples, nil
}

// symbol synthesizes one bit period of a unit sine at freq.
func symbol(freq float64, spb int, bitRate float64) []float64 {
	dt := 1 / bitRate / float64(spb)
	out := make([]float64, spb)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) * dt)
	}
	return out
}

// Tone generates a fixed-amplitude sine of the given duration, used for
// speaker and microphone calibration.
func Tone(freq, seconds, amplitude, sampleRate float64) []float64 {
	n := int(sampleRate * seconds)
	if n < 0 {
		n = 0
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/sampleRate)
	}
	return out
}
