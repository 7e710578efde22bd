package modem

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiverConfig() Config {
	cfg := frameConfig()
	cfg.Squelch = 0.05
	return cfg
}

func blocks(signal []float64, size int) [][]float64 {
	var out [][]float64
	for off := 0; off < len(signal); off += size {
		out = append(out, signal[off:min(off+size, len(signal))])
	}
	return out
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "IDLE", PhaseIdle.String())
	assert.Equal(t, "DECODING", PhaseDecoding.String())
	assert.Equal(t, "UNKNOWN", Phase(42).String())
}

func TestNewMachine_RequiresPayloadLength(t *testing.T) {
	_, err := NewMachine(DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStep_SquelchKeepsIdle(t *testing.T) {
	st, frames, err := Step(receiverConfig(), RxState{}, make([]float64, 1024))
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Empty(t, st.Buffer)
	assert.Empty(t, frames)
}

func TestStep_AccumulatesPartialFrame(t *testing.T) {
	cfg := receiverConfig()
	signal := paddedFrame(t, cfg, letterH, 0, 0)

	m, err := NewMachine(cfg)
	require.NoError(t, err)
	out, err := m.Step(RxState{}, signal[:2000])
	require.NoError(t, err)
	assert.Equal(t, PhaseAccumulating, out.State.Phase)
	assert.Len(t, out.State.Buffer, 2000)
	assert.Equal(t, []Phase{PhaseAccumulating}, out.Path)
}

func TestStep_WholeFrameInOneBlock(t *testing.T) {
	cfg := receiverConfig()
	signal := paddedFrame(t, cfg, letterH, 2000, 4000)

	m, err := NewMachine(cfg)
	require.NoError(t, err)
	out, err := m.Step(RxState{}, signal)
	require.NoError(t, err)
	require.Len(t, out.Frames, 1)
	assert.Equal(t, letterH, out.Frames[0].Bits)
	assert.Equal(t, []Phase{
		PhaseAccumulating, PhaseSynchronizing, PhaseDecoding, PhaseAccumulating, PhaseIdle,
	}, out.Path)
	assert.Equal(t, PhaseIdle, out.State.Phase)
	assert.Empty(t, out.State.Buffer)
}

func TestStep_DoesNotModifyInputState(t *testing.T) {
	cfg := receiverConfig()
	signal := paddedFrame(t, cfg, letterH, 0, 0)

	first, _, err := Step(cfg, RxState{}, signal[:3000])
	require.NoError(t, err)
	saved := append([]float64(nil), first.Buffer...)

	_, _, err = Step(cfg, first, signal[3000:])
	require.NoError(t, err)
	assert.Equal(t, saved, first.Buffer)
}

func TestReceiver_StreamedBlocks(t *testing.T) {
	cfg := receiverConfig()
	signal := paddedFrame(t, cfg, letterH, 2000, 5000)
	rx, err := NewReceiver(cfg)
	require.NoError(t, err)

	var frames []Frame
	for _, b := range blocks(signal, 1000) {
		got, err := rx.Push(b)
		require.NoError(t, err)
		frames = append(frames, got...)
	}
	require.Len(t, frames, 1)
	assert.Equal(t, "H", BitsToText(frames[0].Bits))
	assert.Equal(t, PhaseIdle, rx.Phase())
	assert.Zero(t, rx.Buffered())
}

func TestReceiver_TwoFrames(t *testing.T) {
	cfg := receiverConfig()
	var signal []float64
	signal = append(signal, paddedFrame(t, cfg, BytesToBits([]byte("A")), 1500, 3000)...)
	signal = append(signal, paddedFrame(t, cfg, BytesToBits([]byte("Z")), 0, 3000)...)
	rx, err := NewReceiver(cfg)
	require.NoError(t, err)

	var text string
	for _, b := range blocks(signal, 2048) {
		frames, err := rx.Push(b)
		require.NoError(t, err)
		for _, f := range frames {
			text += BitsToText(f.Bits)
		}
	}
	assert.Equal(t, "AZ", text)
}

func TestStep_NoPreambleTrimsToFrame(t *testing.T) {
	cfg := frameConfig()
	m, err := NewMachine(cfg)
	require.NoError(t, err)

	noise := addNoise(make([]float64, 3*cfg.FrameSamples()), 0.5, 11)
	out, err := m.Step(RxState{}, noise)
	require.NoError(t, err)
	assert.Empty(t, out.Frames)
	assert.Equal(t, PhaseAccumulating, out.State.Phase)
	assert.Len(t, out.State.Buffer, cfg.FrameSamples())
	assert.Equal(t, noise[len(noise)-cfg.FrameSamples():], out.State.Buffer)
}

func TestReceiver_BufferBounded(t *testing.T) {
	cfg := frameConfig()
	rx, err := NewReceiver(cfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		block := make([]float64, 5000)
		for j := range block {
			block[j] = rng.Float64()*2 - 1
		}
		frames, err := rx.Push(block)
		require.NoError(t, err)
		assert.Empty(t, frames)
		assert.LessOrEqual(t, rx.Buffered(), 4*cfg.FrameSamples())
	}

	rx.Reset()
	assert.Equal(t, PhaseIdle, rx.Phase())
	assert.Zero(t, rx.Buffered())
}

func TestReceiver_Run(t *testing.T) {
	cfg := receiverConfig()
	signal := paddedFrame(t, cfg, letterH, 3000, 3000)
	rx, err := NewReceiver(cfg)
	require.NoError(t, err)

	in := make(chan []float64)
	out := make(chan Frame, 4)
	done := make(chan error, 1)
	go func() { done <- rx.Run(context.Background(), in, out) }()

	for _, b := range blocks(signal, 512) {
		in <- b
	}
	close(in)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("receiver did not stop after input closed")
	}
	require.Len(t, out, 1)
	assert.Equal(t, letterH, (<-out).Bits)
}

func TestReceiver_RunCancelled(t *testing.T) {
	rx, err := NewReceiver(receiverConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = rx.Run(ctx, make(chan []float64), make(chan Frame))
	assert.ErrorIs(t, err, context.Canceled)
}
