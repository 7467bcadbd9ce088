package crawler

import (
	"context"
	"sync/atomic"
	"time"
)

// TimerPauser sleeps on a timer and returns early when ctx is done.
type TimerPauser struct{}

// Pause waits for delay. It returns ctx.Err() if the wait was interrupted.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Counter is a process-lifetime Sequence. Callers own the instance.
type Counter struct {
	n atomic.Int64
}

// NewCounter returns a counter whose first Next call yields start+1.
func NewCounter(start int64) *Counter {
	c := &Counter{}
	c.n.Store(start)
	return c
}

// Next returns the next number in the sequence.
func (c *Counter) Next() int64 {
	return c.n.Add(1)
}
