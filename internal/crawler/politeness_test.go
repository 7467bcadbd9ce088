package crawler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerPauserHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := TimerPauser{}.Pause(ctx, 5*time.Second)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
}

func TestTimerPauserWaits(t *testing.T) {
	start := time.Now()
	require.NoError(t, TimerPauser{}.Pause(context.Background(), 20*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestCounterIsMonotonicUnderConcurrency(t *testing.T) {
	c := NewCounter(0)
	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup := seen.LoadOrStore(c.Next(), struct{}{})
			require.False(t, dup)
		}()
	}
	wg.Wait()
	require.Equal(t, int64(51), c.Next())
}
