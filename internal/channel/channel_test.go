package channel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, freq, sampleRate float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/sampleRate)
	}
	return out
}

func TestParametersValidate(t *testing.T) {
	p := DefaultParameters()
	require.NoError(t, p.Validate())

	p.Distance = -1
	assert.Error(t, p.Validate())

	p = DefaultParameters()
	p.Medium = Medium(17)
	assert.ErrorIs(t, p.Validate(), ErrUnknownMedium)

	_, err := New(DefaultParameters(), 0, 1000)
	assert.Error(t, err)
}

func TestTransmissionLoss(t *testing.T) {
	p := DefaultParameters()
	p.Distance = 100
	assert.InDelta(t, 20+0.06535*0.1, TransmissionLoss(p, 1000), 1e-5)

	p.Distance = 0.5
	assert.InDelta(t, 10*math.Log10(0.5)+0.06535*0.0005, TransmissionLoss(p, 1000), 1e-7)

	p.Distance = 0
	assert.Zero(t, TransmissionLoss(p, 1000))

	p.Medium = None
	p.Distance = 1e6
	assert.Zero(t, TransmissionLoss(p, 1000))
}

func TestEmulator_Derived(t *testing.T) {
	p := DefaultParameters()
	p.Distance = 1000
	e, err := New(p, 44100, 1000)
	require.NoError(t, err)

	assert.InDelta(t, math.Pow(10, -TransmissionLoss(p, 1000)/20), e.Gain(), 1e-12)
	assert.Equal(t, int(math.Round(1000/SoundSpeed(10, 35, 100)*44100)), e.EchoDelay())
	assert.InDelta(t, 5e-4, e.NoiseLevel(), 1e-12)

	p.SpeedOfSound = 1500
	e, err = New(p, 44100, 1000)
	require.NoError(t, err)
	assert.Equal(t, 29400, e.EchoDelay())
}

func TestApply_Degenerate(t *testing.T) {
	e, err := New(DefaultParameters(), 44100, 1000)
	require.NoError(t, err)

	_, err = e.Apply(nil)
	assert.ErrorIs(t, err, ErrDegenerateSignal)
	_, err = e.Apply(make([]float64, 64))
	assert.ErrorIs(t, err, ErrDegenerateSignal)
}

func TestApply_Echo(t *testing.T) {
	p := Parameters{Medium: None, Distance: 5, SpeedOfSound: 1000, EchoGain: 0.4}
	e, err := New(p, 1000, 100)
	require.NoError(t, err)

	impulse := make([]float64, 10)
	impulse[0] = 2
	out, err := e.Apply(impulse)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0, 0, 0, 0, 0.4, 0, 0, 0, 0}, out, 1e-12)
	assert.Equal(t, 2.0, impulse[0])
}

func TestApply_EchoKeepsLevelWithDistance(t *testing.T) {
	for _, distance := range []float64{100, 1000} {
		p := DefaultParameters()
		p.Distance = distance
		p.SpeedOfSound = 1000
		p.Seed = 3
		e, err := New(p, 10, 1000)
		require.NoError(t, err)
		delay := e.EchoDelay()
		require.Equal(t, int(distance/100), delay)

		impulse := make([]float64, 2*delay+1)
		impulse[0] = 3
		out, err := e.Apply(impulse)
		require.NoError(t, err)

		assert.InDelta(t, 1, out[delay], 1e-12, "echo should be the loudest arrival at %g m", distance)
		assert.InEpsilon(t, p.EchoGain/e.Gain(), out[delay]/out[0], 0.1, "distance %g m", distance)
	}
}

func TestApply_EchoBeyondSignal(t *testing.T) {
	p := Parameters{Medium: None, Distance: 100, SpeedOfSound: 1000, EchoGain: 0.4}
	e, err := New(p, 1000, 100)
	require.NoError(t, err)

	in := sine(50, 100, 1000)
	out, err := e.Apply(in)
	require.NoError(t, err)
	peak := peakAbs(in)
	for i := range in {
		assert.InDelta(t, in[i]/peak, out[i], 1e-12)
	}
}

func TestApply_UnitPeakAndSeeded(t *testing.T) {
	p := DefaultParameters()
	p.Distance = 200
	p.Seed = 99
	in := sine(4410, 1000, 44100)

	a, err := New(p, 44100, 1000)
	require.NoError(t, err)
	b, err := New(p, 44100, 1000)
	require.NoError(t, err)

	outA, err := a.Apply(in)
	require.NoError(t, err)
	outB, err := b.Apply(in)
	require.NoError(t, err)

	assert.Equal(t, outA, outB)
	assert.InDelta(t, 1, peakAbs(outA), 1e-12)
	assert.Len(t, outA, len(in))

	p.Seed = 100
	c, err := New(p, 44100, 1000)
	require.NoError(t, err)
	outC, err := c.Apply(in)
	require.NoError(t, err)
	assert.NotEqual(t, outA, outC)
}

func TestApply_FarFieldIsNoise(t *testing.T) {
	in := sine(8820, 1000, 44100)

	correlation := func(distance float64) float64 {
		p := DefaultParameters()
		p.Distance = distance
		p.EchoGain = 0
		p.Seed = 5
		e, err := New(p, 44100, 1000)
		require.NoError(t, err)
		out, err := e.Apply(in)
		require.NoError(t, err)

		var dot, ein, eout float64
		for i := range in {
			dot += in[i] * out[i]
			ein += in[i] * in[i]
			eout += out[i] * out[i]
		}
		return math.Abs(dot) / math.Sqrt(ein*eout)
	}

	assert.Greater(t, correlation(10), 0.99)
	assert.Less(t, correlation(1e7), 0.1)
}
