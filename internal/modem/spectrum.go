package modem

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// magnitudeSpectrum applies win to chunk and returns |X[k]| for k = 0..n/2.
func magnitudeSpectrum(chunk, win []float64) []float64 {
	buf := make([]float64, len(chunk))
	for i, v := range chunk {
		buf[i] = v * win[i]
	}
	spec := fft.FFTReal(buf)
	mags := make([]float64, len(spec)/2+1)
	for k := range mags {
		mags[k] = cmplx.Abs(spec[k])
	}
	return mags
}

// crossCorrelate returns the full cross-correlation of signal against
// template: out[j] = sum_n signal[n+j-(M-1)] * template[n] for
// j = 0..N+M-2, matching every relative offset including partial overlap.
func crossCorrelate(signal, template []float64) []float64 {
	n, m := len(signal), len(template)
	if n == 0 || m == 0 {
		return nil
	}
	size := n + m - 1
	nfft := nextPow2(size)

	x := make([]complex128, nfft)
	for i, v := range signal {
		x[i] = complex(v, 0)
	}
	y := make([]complex128, nfft)
	for i, v := range template {
		y[i] = complex(v, 0)
	}

	xf := fft.FFT(x)
	yf := fft.FFT(y)
	for i := range xf {
		xf[i] *= cmplx.Conj(yf[i])
	}
	circ := fft.IFFT(xf)

	out := make([]float64, size)
	for j := range out {
		lag := j - (m - 1)
		out[j] = real(circ[(lag+nfft)%nfft])
	}
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func energy(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

// prefixEnergy returns cumulative sums of x^2 with a leading zero.
func prefixEnergy(x []float64) []float64 {
	out := make([]float64, len(x)+1)
	for i, v := range x {
		out[i+1] = out[i] + v*v
	}
	return out
}

func peakAbs(x []float64) float64 {
	maxAbs := 0.0
	for _, s := range x {
		if abs := math.Abs(s); abs > maxAbs {
			maxAbs = abs
		}
	}
	return maxAbs
}
