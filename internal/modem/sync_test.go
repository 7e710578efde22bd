package modem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeongseonghan/acoustic-modem/internal/channel"
)

func TestFindPreamble(t *testing.T) {
	pre := DefaultPreamble
	tests := []struct {
		name string
		bits []byte
		want int
		ok   bool
	}{
		{"at start", append(append([]byte{}, pre...), 1, 1), 0, true},
		{"offset", append([]byte{0, 0, 0}, pre...), 3, true},
		{"absent", []byte{1, 1, 1, 1, 1, 1, 1, 1, 1}, -1, false},
		{"shorter than preamble", []byte{1, 0, 1}, -1, false},
		{"first of two", append(append([]byte{1}, pre...), pre...), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok := FindPreamble(tt.bits, pre)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, idx)
		})
	}
}

func TestBitFinder(t *testing.T) {
	f := BitFinder{Preamble: DefaultPreamble}
	m, err := f.Find(append([]byte{0, 0}, DefaultPreamble...))
	require.NoError(t, err)
	assert.Equal(t, Match{Preamble: 2, Payload: 10, Score: 1}, m)

	_, err = f.Find([]byte{0, 0, 0})
	assert.ErrorIs(t, err, ErrPreambleNotFound)
}

func TestFindPreambleInSignal(t *testing.T) {
	cfg := DefaultConfig()
	signal := paddedFrame(t, cfg, letterH, 882, 882)

	idx, err := FindPreambleInSignal(signal, cfg.Preamble, cfg)
	require.NoError(t, err)
	assert.Equal(t, 882+8*441, idx)
}

func TestSignalFinder_Noisy(t *testing.T) {
	cfg := DefaultConfig()
	finder, err := NewSignalFinder(cfg)
	require.NoError(t, err)

	signal := addNoise(paddedFrame(t, cfg, letterH, 1500, 500), 0.5, 3)
	m, err := finder.Find(signal)
	require.NoError(t, err)
	assert.InDelta(t, 1500, m.Preamble, 2)
	assert.Equal(t, m.Preamble+len(finder.Template()), m.Payload)
	assert.Greater(t, m.Score, 0.5)
}

func TestFindPreambleInSignal_IgnoresThreshold(t *testing.T) {
	cfg := DefaultConfig()
	signal := addNoise(paddedFrame(t, cfg, letterH, 1500, 500), 2, 11)

	finder, err := NewSignalFinder(cfg)
	require.NoError(t, err)
	_, err = finder.Find(signal)
	require.ErrorIs(t, err, ErrPreambleNotFound)

	idx, err := FindPreambleInSignal(signal, cfg.Preamble, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 1500+8*441, idx, 100)
}

func TestSignalFinder_PrefersEarliestPeak(t *testing.T) {
	cfg := DefaultConfig()
	finder, err := NewSignalFinder(cfg)
	require.NoError(t, err)

	// The first preamble is within PeakTolerance of a louder repeat.
	signal := paddedFrame(t, cfg, nil, 1000, 0)
	repeat := paddedFrame(t, cfg, nil, 2000, 1000)
	for i, v := range repeat {
		repeat[i] = 1.1 * v
	}
	signal = append(signal, repeat...)

	m, err := finder.Find(signal)
	require.NoError(t, err)
	assert.Equal(t, 1000, m.Preamble)
}

// Payload bits that repeat the sync word used to outscore the real
// preamble once the surface echo blurred both.
func TestReceive_PayloadRepeatsPreambleOverEcho(t *testing.T) {
	pre := DefaultPreamble
	payload := make([]byte, 0, 64)
	for _, head := range [][]byte{
		{0, 1, 1, 0, 0, 1, 1, 1},
		{0, 1, 1, 1, 0, 0, 0, 1},
		{1, 1, 0, 0, 1, 1, 1, 0},
		{0, 0, 1, 1, 0, 1, 1, 0},
	} {
		payload = append(payload, head...)
		payload = append(payload, pre...)
	}

	cfg := DefaultConfig()
	cfg.PayloadBits = len(payload)
	signal := paddedFrame(t, cfg, payload, 2000, 2000)

	params := channel.DefaultParameters()
	params.Distance = 10
	params.Seed = 1
	emu, err := channel.New(params, cfg.SampleRate, cfg.CenterFrequency())
	require.NoError(t, err)
	rx, err := emu.Apply(signal)
	require.NoError(t, err)

	frame, _, err := Receive(rx, cfg)
	require.NoError(t, err)
	assert.Equal(t, payload, frame.Bits)
	assert.Less(t, frame.Offset, 2000+len(pre)*cfg.SamplesPerBit()+cfg.SamplesPerBit())
}

func TestSignalFinder_TooShort(t *testing.T) {
	finder, err := NewSignalFinder(DefaultConfig())
	require.NoError(t, err)

	_, err = finder.Find(make([]float64, 100))
	assert.ErrorIs(t, err, ErrPreambleNotFound)
}

func TestSignalFinder_Silence(t *testing.T) {
	finder, err := NewSignalFinder(DefaultConfig())
	require.NoError(t, err)

	_, err = finder.Find(make([]float64, 10000))
	assert.ErrorIs(t, err, ErrPreambleNotFound)
}

func TestSignalFinder_EmptyPreamble(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Preamble = nil
	finder, err := NewSignalFinder(cfg)
	require.NoError(t, err)

	m, err := finder.Find([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Payload)
}

func TestReceive_ThroughFilter(t *testing.T) {
	cfg := frameConfig()
	signal := paddedFrame(t, cfg, letterH, 882, 882)

	frame, filtered, err := Receive(signal, cfg)
	require.NoError(t, err)
	assert.Len(t, filtered, len(signal))
	assert.Equal(t, letterH, frame.Bits)
	assert.Len(t, frame.Decisions, 8)
	assert.Greater(t, frame.Score, 0.7)
	// Filter group delay shifts the match by a fraction of a symbol.
	assert.InDelta(t, 882+8*441, frame.Offset, 100)
}

func TestReceive_NoPreamble(t *testing.T) {
	_, _, err := Receive(make([]float64, 20000), frameConfig())
	assert.ErrorIs(t, err, ErrPreambleNotFound)
}
