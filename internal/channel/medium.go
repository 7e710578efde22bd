package channel

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownMedium is returned for a medium name outside the supported set.
var ErrUnknownMedium = errors.New("unknown medium")

// Medium selects the absorption and ambient noise model.
type Medium int

const (
	None Medium = iota
	Saltwater
	Freshwater
	Coastal
	Arctic
)

var mediumNames = [...]string{
	None:       "none",
	Saltwater:  "saltwater",
	Freshwater: "freshwater",
	Coastal:    "coastal",
	Arctic:     "arctic",
}

// String returns the lowercase medium name.
func (m Medium) String() string {
	if m < 0 || int(m) >= len(mediumNames) {
		return fmt.Sprintf("Medium(%d)", int(m))
	}
	return mediumNames[m]
}

// ParseMedium maps a case-insensitive name to a Medium.
func ParseMedium(name string) (Medium, error) {
	for i, n := range mediumNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return Medium(i), nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownMedium, name)
}

// MarshalText implements encoding.TextMarshaler.
func (m Medium) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(mediumNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMedium, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Medium) UnmarshalText(text []byte) error {
	parsed, err := ParseMedium(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// SoundSpeed estimates the speed of sound in m/s from temperature (°C),
// salinity (ppt) and depth (m) with the Mackenzie (1981) nine-term equation.
func SoundSpeed(temp, salinity, depth float64) float64 {
	t, s, d := temp, salinity-35, depth
	return 1448.96 +
		4.591*t -
		5.304e-2*t*t +
		2.374e-4*t*t*t +
		1.340*s +
		1.630e-2*d +
		1.675e-7*d*d -
		1.025e-2*t*s -
		7.139e-13*t*d*d*d
}

// Absorption returns the absorption coefficient in dB/km at freq Hz.
//
//	saltwater   Thorp (1967)
//	freshwater  Francois-Garrison pure-water viscous term
//	coastal     Ainslie-McColm, pH 7.7
//	arctic      Ainslie-McColm, pH 8.1
//
// None and unknown media absorb nothing.
func Absorption(m Medium, freq, temp, salinity, depth float64) float64 {
	f := freq / 1000
	switch m {
	case Saltwater:
		f2 := f * f
		return 1.0936 * (0.1*f2/(1+f2) + 40*f2/(4100+f2))
	case Freshwater:
		return pureWater(f, temp, depth)
	case Coastal:
		return ainslieMcColm(f, temp, salinity, depth, 7.7)
	case Arctic:
		return ainslieMcColm(f, temp, salinity, depth, 8.1)
	default:
		return 0
	}
}

func pureWater(f, t, depth float64) float64 {
	var a3 float64
	if t <= 20 {
		a3 = 4.937e-4 - 2.59e-5*t + 9.11e-7*t*t - 1.50e-8*t*t*t
	} else {
		a3 = 3.964e-4 - 1.146e-5*t + 1.45e-7*t*t - 6.5e-10*t*t*t
	}
	p3 := 1 - 3.83e-5*depth + 4.9e-10*depth*depth
	return a3 * p3 * f * f
}

func ainslieMcColm(f, t, s, depth, ph float64) float64 {
	z := depth / 1000
	f2 := f * f
	f1 := 0.78 * math.Sqrt(s/35) * math.Exp(t/26)
	fmg := 42 * math.Exp(t/17)

	boric := 0.106 * f1 * f2 / (f1*f1 + f2) * math.Exp((ph-8)/0.56)
	magnesium := 0.52 * (1 + t/43) * (s / 35) * fmg * f2 / (fmg*fmg + f2) * math.Exp(-z/6)
	water := 0.00049 * f2 * math.Exp(-(t/27 + z/17))
	return boric + magnesium + water
}

// NoiseLevel is the ambient noise standard deviation relative to a unit
// peak signal, from a Wenz-curve approximation at freq Hz.
func NoiseLevel(m Medium, freq float64) float64 {
	switch m {
	case Saltwater, Freshwater, Coastal:
		if freq <= 0 {
			return 0
		}
		return 5e-4 * math.Pow(freq/1000, -1.5)
	case Arctic:
		return 1e-4
	default:
		return 0
	}
}
