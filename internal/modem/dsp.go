package modem

// SamplesToFloat32 converts float64 samples to float32 for audio output.
func SamplesToFloat32(samples []float64) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s)
	}
	return out
}

// Float32ToSamples converts float32 audio input to float64 for processing.
func Float32ToSamples(samples []float32) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s)
	}
	return out
}

// Normalize scales samples in place so the peak magnitude equals level.
// Silent input is left untouched.
func Normalize(samples []float64, level float64) {
	maxAbs := peakAbs(samples)
	if maxAbs > 0 {
		scale := level / maxAbs
		for i := range samples {
			samples[i] *= scale
		}
	}
}

// PeakLevel returns the largest absolute sample value.
func PeakLevel(samples []float64) float64 {
	return peakAbs(samples)
}

// ApplyDCRemoval subtracts a slowly tracking mean from captured samples so
// microphone offset does not leak into the tone bins.
func ApplyDCRemoval(samples []float64) []float64 {
	out := make([]float64, len(samples))
	if len(samples) == 0 {
		return out
	}
	const alpha = 0.999
	mean := samples[0]
	for i, s := range samples {
		mean = alpha*mean + (1-alpha)*s
		out[i] = s - mean
	}
	return out
}
