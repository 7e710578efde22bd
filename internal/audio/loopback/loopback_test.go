package loopback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopback_BlocksAndGap(t *testing.T) {
	lb := New(4, nil, 2)
	ctx := context.Background()
	require.NoError(t, lb.Play(ctx, []float64{1, 2, 3, 4, 5}))
	assert.Equal(t, 3, lb.Pending())

	out := make(chan []float64, 8)
	ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	err := lb.Capture(ctx, out)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.Len(t, out, 3)
	assert.Equal(t, []float64{0, 0, 1, 2}, <-out)
	assert.Equal(t, []float64{3, 4, 5, 0}, <-out)
	assert.Equal(t, []float64{0, 0, 0, 0}, <-out)
}

func TestLoopback_Channel(t *testing.T) {
	double := func(x []float64) ([]float64, error) {
		out := make([]float64, len(x))
		for i, v := range x {
			out[i] = 2 * v
		}
		return out, nil
	}
	lb := New(2, double, 0)
	require.NoError(t, lb.Play(context.Background(), []float64{1, 2}))

	out := make(chan []float64, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = lb.Capture(ctx, out)
	assert.Equal(t, []float64{2, 4}, <-out)
}

func TestLoopback_ChannelSeesGap(t *testing.T) {
	// A one-sample echo lands in the trailing silence.
	echo := func(x []float64) ([]float64, error) {
		out := make([]float64, len(x))
		copy(out, x)
		for i := 1; i < len(x); i++ {
			out[i] += 0.5 * x[i-1]
		}
		return out, nil
	}
	lb := New(4, echo, 1)
	require.NoError(t, lb.Play(context.Background(), []float64{1, 1}))

	out := make(chan []float64, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = lb.Capture(ctx, out)
	assert.Equal(t, []float64{0, 1, 1.5, 0.5}, <-out)
}

func TestLoopback_CancelledPlay(t *testing.T) {
	lb := New(1, nil, 0)
	lb.blocks = make(chan []float64)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, lb.Play(ctx, []float64{1}), context.Canceled)
}
