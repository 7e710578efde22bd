package modem

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"negative bit rate", func(c *Config) { c.BitRate = -1 }},
		{"identical tones", func(c *Config) { c.Freq1 = c.Freq0 }},
		{"bit rate above sample rate", func(c *Config) { c.BitRate = 3 * c.SampleRate }},
		{"negative neighbors", func(c *Config) { c.NeighborBins = -1 }},
		{"non-binary preamble", func(c *Config) { c.Preamble = []byte{1, 2} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

			_, err := Modulate([]byte{1}, cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			_, err = Demodulate(make([]float64, 1000), 0, cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
	require.NoError(t, DefaultConfig().Validate())
}

func TestSamplesPerBit(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 441, cfg.SamplesPerBit())
	cfg.BitRate = 200
	assert.Equal(t, 221, cfg.SamplesPerBit())
	assert.Equal(t, 1000.0, DefaultConfig().CenterFrequency())
}

func TestModulate_Length(t *testing.T) {
	cfg := DefaultConfig()
	out, err := Modulate([]byte{0, 1, 1}, cfg)
	require.NoError(t, err)
	assert.Len(t, out, 3*441)

	out, err = Modulate(nil, cfg)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestModulate_SymbolShape(t *testing.T) {
	cfg := DefaultConfig()
	out, err := Modulate([]byte{1, 0}, cfg)
	require.NoError(t, err)

	dt := 1 / cfg.BitRate / float64(cfg.SamplesPerBit())
	for i := 0; i < 441; i++ {
		assert.InDelta(t, math.Sin(2*math.Pi*cfg.Freq1*float64(i)*dt), out[i], 1e-12)
		assert.InDelta(t, math.Sin(2*math.Pi*cfg.Freq0*float64(i)*dt), out[441+i], 1e-12)
	}
	assert.LessOrEqual(t, PeakLevel(out), 1.0)
}

func TestModulate_RejectsNonBinary(t *testing.T) {
	_, err := Modulate([]byte{0, 1, 7}, DefaultConfig())
	assert.Error(t, err)
}

func TestModulate_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	a, err := Modulate(letterH, cfg)
	require.NoError(t, err)
	b, err := Modulate(letterH, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTone(t *testing.T) {
	tone := Tone(1000, 0.5, 0.3, 44100)
	assert.Len(t, tone, 22050)
	assert.InDelta(t, 0.3, PeakLevel(tone), 1e-3)
	assert.Empty(t, Tone(1000, -1, 1, 44100))
}

func TestNormalize(t *testing.T) {
	x := []float64{0.1, -0.4, 0.2}
	Normalize(x, 0.8)
	assert.InDeltaSlice(t, []float64{0.2, -0.8, 0.4}, x, 1e-12)

	silent := []float64{0, 0}
	Normalize(silent, 1)
	assert.Equal(t, []float64{0, 0}, silent)
}

func TestFloat32Conversion(t *testing.T) {
	in := []float64{0.5, -0.25, 1}
	assert.Equal(t, in, Float32ToSamples(SamplesToFloat32(in)))
}

func TestApplyDCRemoval(t *testing.T) {
	in := make([]float64, 20000)
	for i := range in {
		in[i] = 0.5 + 0.1*math.Sin(float64(i))
	}
	out := ApplyDCRemoval(in)
	require.Len(t, out, len(in))

	var mean float64
	for _, v := range out[10000:] {
		mean += v
	}
	mean /= 10000
	assert.InDelta(t, 0, mean, 0.01)
	assert.Empty(t, ApplyDCRemoval(nil))
}
