package modem

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDemodulate_PreambleAndLetter(t *testing.T) {
	cfg := DefaultConfig()
	signal, err := Transmit(letterH, cfg)
	require.NoError(t, err)
	require.Len(t, signal, 16*441)

	bits, err := Demodulate(signal, 0, cfg)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 1, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 0}, bits)
	assert.Equal(t, "H", BitsToText(bits[8:]))
}

func TestDemodulate_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := DefaultConfig()
		cfg.BitRate = rapid.SampledFrom([]float64{50, 100}).Draw(t, "bitRate")
		bits := rapid.SliceOfN(rapid.ByteRange(0, 1), 0, 48).Draw(t, "bits")

		signal, err := Modulate(bits, cfg)
		require.NoError(t, err)
		got, err := Demodulate(signal, 0, cfg)
		require.NoError(t, err)
		assert.Equal(t, bits, got)
	})
}

func TestDemodulate_Idempotent(t *testing.T) {
	cfg := DefaultConfig()
	signal := addNoise(paddedFrame(t, cfg, letterH, 100, 0), 0.2, 7)

	a, err := Demodulate(signal, 100, cfg)
	require.NoError(t, err)
	b, err := Demodulate(signal, 100, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDemodulate_ShortSignal(t *testing.T) {
	bits, err := Demodulate(make([]float64, 440), 0, DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, bits)
	assert.Empty(t, bits)

	bits, err = Demodulate(make([]float64, 1000), 900, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, bits)
}

func TestDemodulate_DropsPartialWindow(t *testing.T) {
	cfg := DefaultConfig()
	signal, err := Modulate([]byte{1, 0, 1}, cfg)
	require.NoError(t, err)

	bits, err := Demodulate(signal[:len(signal)-1], 0, cfg)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0}, bits)
}

func TestDemodulate_NoisyChannel(t *testing.T) {
	cfg := DefaultConfig()
	payload := BytesToBits([]byte("Hi!"))
	signal, err := Modulate(payload, cfg)
	require.NoError(t, err)

	bits, err := Demodulate(addNoise(signal, 0.3, 42), 0, cfg)
	require.NoError(t, err)
	assert.Equal(t, payload, bits)
}

func TestDecide_TieIsZero(t *testing.T) {
	d, err := NewDemodulator(DefaultConfig())
	require.NoError(t, err)

	decisions := d.Decode(make([]float64, 3*441), 0, 0)
	require.Len(t, decisions, 3)
	for _, dec := range decisions {
		assert.Equal(t, byte(0), dec.Bit)
		assert.Zero(t, dec.Confidence)
	}
}

func TestDecisions_Confidence(t *testing.T) {
	cfg := DefaultConfig()
	d, err := NewDemodulator(cfg)
	require.NoError(t, err)
	signal, err := Modulate([]byte{0, 1}, cfg)
	require.NoError(t, err)

	decisions := d.Decode(signal, 0, 0)
	require.Len(t, decisions, 2)
	assert.Greater(t, decisions[0].Energy0, decisions[0].Energy1)
	assert.Greater(t, decisions[1].Energy1, decisions[1].Energy0)
	for _, dec := range decisions {
		assert.Greater(t, dec.Confidence, 0.9)
		assert.LessOrEqual(t, dec.Confidence, 1.0)
	}
}

func TestBits_Restartable(t *testing.T) {
	cfg := DefaultConfig()
	d, err := NewDemodulator(cfg)
	require.NoError(t, err)
	signal, err := Modulate(letterH, cfg)
	require.NoError(t, err)

	seq := d.Bits(signal, 0)
	assert.Equal(t, letterH, slices.Collect(seq))
	assert.Equal(t, letterH, slices.Collect(seq))

	var first []byte
	for b := range seq {
		first = append(first, b)
		if len(first) == 3 {
			break
		}
	}
	assert.Equal(t, letterH[:3], first)
	assert.Len(t, d.Decode(signal, 0, 5), 5)
}
