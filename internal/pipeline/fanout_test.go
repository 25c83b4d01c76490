package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFanOut_RunsEveryIndex(t *testing.T) {
	out := make([]int, 6)
	ran := fanOut(context.Background(), len(out), 3, func(_ context.Context, i int) {
		out[i] = i * i
	})

	assert.Equal(t, []int{0, 1, 4, 9, 16, 25}, out)
	for i, ok := range ran {
		assert.True(t, ok, "index %d", i)
	}
}

func TestFanOut_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	fanOut(context.Background(), 8, 2, func(_ context.Context, _ int) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
	})

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFanOut_CanceledSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := fanOut(ctx, 5, 1, func(_ context.Context, i int) {
		if i == 1 {
			cancel()
		}
	})

	assert.Equal(t, []bool{true, true, false, false, false}, ran)
}

func TestFanOut_ZeroWorkers(t *testing.T) {
	ran := fanOut(context.Background(), 2, 0, func(context.Context, int) {})
	assert.Equal(t, []bool{true, true}, ran)
}
