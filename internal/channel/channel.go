// Package channel emulates an underwater acoustic path: geometric spreading,
// medium absorption, a single surface echo and ambient noise.
package channel

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrDegenerateSignal is returned for an empty or all-zero input waveform.
var ErrDegenerateSignal = errors.New("degenerate signal")

// Default environment values.
const (
	DefaultTemperature = 10  // °C
	DefaultSalinity    = 35  // ppt
	DefaultDepth       = 100 // m
	DefaultEchoGain    = 0.4
)

// Parameters describe the environment between transmitter and receiver.
type Parameters struct {
	Medium      Medium
	Distance    float64 // m
	Temperature float64 // °C
	Salinity    float64 // ppt
	Depth       float64 // m

	// SpeedOfSound in m/s. Zero derives it from temperature, salinity and depth.
	SpeedOfSound float64
	EchoGain     float64
	Seed         int64
}

// DefaultParameters returns a saltwater environment at zero distance.
func DefaultParameters() Parameters {
	return Parameters{
		Medium:      Saltwater,
		Temperature: DefaultTemperature,
		Salinity:    DefaultSalinity,
		Depth:       DefaultDepth,
		EchoGain:    DefaultEchoGain,
	}
}

// Validate checks the parameter ranges.
func (p Parameters) Validate() error {
	switch {
	case p.Medium < None || p.Medium > Arctic:
		return fmt.Errorf("%w: %d", ErrUnknownMedium, int(p.Medium))
	case p.Distance < 0 || math.IsNaN(p.Distance):
		return fmt.Errorf("distance must be non-negative, got %g", p.Distance)
	case p.SpeedOfSound < 0:
		return fmt.Errorf("speed of sound must be non-negative, got %g", p.SpeedOfSound)
	}
	return nil
}

// Speed returns the configured or derived speed of sound in m/s.
func (p Parameters) Speed() float64 {
	if p.SpeedOfSound > 0 {
		return p.SpeedOfSound
	}
	return SoundSpeed(p.Temperature, p.Salinity, p.Depth)
}

// TransmissionLoss returns spreading plus absorption loss in dB at freq Hz.
func TransmissionLoss(p Parameters, freq float64) float64 {
	if p.Medium == None {
		return 0
	}
	var spreading float64
	if p.Distance > 0 {
		// Negative below 1 m: the reference distance is one metre.
		spreading = 10 * math.Log10(p.Distance)
	}
	absorption := Absorption(p.Medium, freq, p.Temperature, p.Salinity, p.Depth) * p.Distance / 1000
	return spreading + absorption
}

// Emulator applies a fixed channel to waveforms. The noise source advances
// with each Apply, so an Emulator must not be shared between goroutines.
type Emulator struct {
	params     Parameters
	gain       float64
	delay      int
	noiseLevel float64
	rng        *rand.Rand
}

// New prepares an emulator for signals at sampleRate whose tone pair is
// centred on centerFreq.
func New(params Parameters, sampleRate, centerFreq float64) (*Emulator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}

	lossDB := TransmissionLoss(params, centerFreq)
	return &Emulator{
		params:     params,
		gain:       math.Pow(10, -lossDB/20),
		delay:      int(math.Round(params.Distance / params.Speed() * sampleRate)),
		noiseLevel: NoiseLevel(params.Medium, centerFreq),
		rng:        rand.New(rand.NewSource(params.Seed)),
	}, nil
}

// Gain is the linear amplitude factor of the direct path.
func (e *Emulator) Gain() float64 { return e.gain }

// EchoDelay is the multipath delay in samples.
func (e *Emulator) EchoDelay() int { return e.delay }

// NoiseLevel is the ambient noise standard deviation before renormalization.
func (e *Emulator) NoiseLevel() float64 { return e.noiseLevel }

// Apply returns the received waveform: the input normalized to unit peak,
// attenuated, with an echo and ambient noise added, renormalized to unit
// peak. The echo is EchoGain times the normalized input, not the attenuated
// direct path, so it does not fade with distance. The input is not modified.
func (e *Emulator) Apply(signal []float64) ([]float64, error) {
	peak := peakAbs(signal)
	if peak == 0 {
		return nil, fmt.Errorf("%w: %d samples, peak 0", ErrDegenerateSignal, len(signal))
	}

	norm := make([]float64, len(signal))
	for i, v := range signal {
		norm[i] = v / peak
	}

	out := make([]float64, len(norm))
	for i, v := range norm {
		out[i] = v * e.gain
	}
	if e.params.EchoGain != 0 {
		for i := e.delay; i < len(out); i++ {
			out[i] += e.params.EchoGain * norm[i-e.delay]
		}
	}
	if e.noiseLevel > 0 {
		for i := range out {
			out[i] += e.noiseLevel * e.rng.NormFloat64()
		}
	}

	peak = peakAbs(out)
	if peak == 0 {
		return nil, fmt.Errorf("%w: channel output is silent", ErrDegenerateSignal)
	}
	for i := range out {
		out[i] /= peak
	}
	return out, nil
}

func peakAbs(x []float64) float64 {
	var p float64
	for _, v := range x {
		if a := math.Abs(v); a > p {
			p = a
		}
	}
	return p
}
