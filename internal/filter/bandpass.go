// Package filter designs and applies the receive-side bandpass filter.
package filter

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

// ErrInvalidBand is returned when the cutoffs violate 0 < low < high < Nyquist.
var ErrInvalidBand = errors.New("invalid filter band")

// Section is a second-order IIR stage:
// H(z) = (B0 + B1 z^-1 + B2 z^-2) / (1 + A1 z^-1 + A2 z^-2).
type Section struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Spec is a designed Butterworth bandpass filter.
type Spec struct {
	Low        float64
	High       float64
	SampleRate float64
	Order      int
	Sections   []Section
}

// Design builds a digital Butterworth bandpass of the given order.
// The result is a cascade of Order second-order sections normalized to
// unity gain at the band centre.
func Design(low, high, sampleRate float64, order int) (Spec, error) {
	if sampleRate <= 0 || low <= 0 || low >= high || high >= sampleRate/2 {
		return Spec{}, fmt.Errorf("%w: low=%g high=%g nyquist=%g", ErrInvalidBand, low, high, sampleRate/2)
	}
	if order < 1 {
		return Spec{}, fmt.Errorf("%w: order %d", ErrInvalidBand, order)
	}

	// Prewarped analog band edges for the bilinear transform.
	fs2 := 2 * sampleRate
	wl := fs2 * math.Tan(math.Pi*low/sampleRate)
	wh := fs2 * math.Tan(math.Pi*high/sampleRate)
	bw := wh - wl
	w0 := math.Sqrt(wl * wh)

	var upper, onAxis []complex128
	for k := 0; k < order; k++ {
		theta := math.Pi * float64(2*k+order+1) / float64(2*order)
		p := cmplx.Exp(complex(0, theta)) * complex(bw, 0)
		disc := cmplx.Sqrt(p*p - complex(4*w0*w0, 0))
		for _, s := range [2]complex128{(p + disc) / 2, (p - disc) / 2} {
			z := (complex(fs2, 0) + s) / (complex(fs2, 0) - s)
			switch {
			case imag(z) > 1e-12:
				upper = append(upper, z)
			case imag(z) < -1e-12:
				// conjugate of a pole kept in upper
			default:
				onAxis = append(onAxis, complex(real(z), 0))
			}
		}
	}

	sections := make([]Section, 0, order)
	for _, z := range upper {
		sections = append(sections, Section{
			B0: 1, B1: 0, B2: -1,
			A1: -2 * real(z),
			A2: real(z)*real(z) + imag(z)*imag(z),
		})
	}
	for i := 0; i+1 < len(onAxis); i += 2 {
		r0, r1 := real(onAxis[i]), real(onAxis[i+1])
		sections = append(sections, Section{
			B0: 1, B1: 0, B2: -1,
			A1: -(r0 + r1),
			A2: r0 * r1,
		})
	}

	// Unity gain at the digital image of the analog centre frequency.
	center := 2 * math.Atan(w0/fs2)
	for i := range sections {
		g := sections[i].response(center)
		if g > 0 {
			sections[i].B0 /= g
			sections[i].B2 /= g
		}
	}

	return Spec{
		Low:        low,
		High:       high,
		SampleRate: sampleRate,
		Order:      order,
		Sections:   sections,
	}, nil
}

// ForTones designs the receive band [min(f0,f1)-guard, max(f0,f1)+guard].
func ForTones(freq0, freq1, guard, sampleRate float64, order int) (Spec, error) {
	low := math.Min(freq0, freq1) - guard
	high := math.Max(freq0, freq1) + guard
	return Design(low, high, sampleRate, order)
}

// Apply runs the signal through the filter cascade. The filter is causal and
// starts from rest, and the output has the same length as the input.
func Apply(signal []float64, spec Spec) []float64 {
	out := make([]float64, len(signal))
	copy(out, signal)
	for _, sec := range spec.Sections {
		var s1, s2 float64
		for i, x := range out {
			y := sec.B0*x + s1
			s1 = sec.B1*x - sec.A1*y + s2
			s2 = sec.B2*x - sec.A2*y
			out[i] = y
		}
	}
	return out
}

// Response returns the filter's magnitude response at freq Hz.
func Response(spec Spec, freq float64) float64 {
	w := 2 * math.Pi * freq / spec.SampleRate
	mag := 1.0
	for _, sec := range spec.Sections {
		mag *= sec.response(w)
	}
	return mag
}

func (s Section) response(w float64) float64 {
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	num := complex(s.B0, 0) + complex(s.B1, 0)*z1 + complex(s.B2, 0)*z2
	den := 1 + complex(s.A1, 0)*z1 + complex(s.A2, 0)*z2
	return cmplx.Abs(num / den)
}
