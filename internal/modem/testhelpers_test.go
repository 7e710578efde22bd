package modem

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

var letterH = []byte{0, 1, 0, 0, 1, 0, 0, 0}

func frameConfig() Config {
	cfg := DefaultConfig()
	cfg.PayloadBits = 8
	return cfg
}

// paddedFrame returns lead zeros, the modulated preamble+payload, then trail zeros.
func paddedFrame(t testing.TB, cfg Config, payload []byte, lead, trail int) []float64 {
	t.Helper()
	tx, err := Transmit(payload, cfg)
	require.NoError(t, err)
	out := make([]float64, 0, lead+len(tx)+trail)
	out = append(out, make([]float64, lead)...)
	out = append(out, tx...)
	out = append(out, make([]float64, trail)...)
	return out
}

func addNoise(signal []float64, sigma float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, len(signal))
	for i, v := range signal {
		out[i] = v + sigma*rng.NormFloat64()
	}
	return out
}
