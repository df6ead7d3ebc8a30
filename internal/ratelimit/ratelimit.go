// Package ratelimit provides the process-wide limiters shared by job
// bodies and source adapters. Two shapes cover every upstream: a
// sliding window ("at most N requests in any D interval") and a
// minimum gap between consecutive requests.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SlidingWindow admits at most limit requests within any window
// interval. A mutex guards the deque of recent admission timestamps;
// all workers of a job share one instance.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	recent []time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewSlidingWindow builds a window limiter.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{limit: limit, window: window, now: time.Now}
}

// Wait blocks until a slot is free or ctx is done. The admission
// timestamp is recorded before returning.
func (w *SlidingWindow) Wait(ctx context.Context) error {
	for {
		wait := w.tryAdmit()
		if wait == 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAdmit records an admission if a slot is free, otherwise returns
// how long until the oldest in-window entry expires.
func (w *SlidingWindow) tryAdmit() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.recent) && !w.recent[i].After(cutoff) {
		i++
	}
	w.recent = w.recent[i:]

	if len(w.recent) < w.limit {
		w.recent = append(w.recent, now)
		return 0
	}
	return w.recent[0].Sub(cutoff)
}

// Pending reports how many admissions are currently inside the window.
func (w *SlidingWindow) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.window)
	n := 0
	for _, t := range w.recent {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// MinGap enforces a minimum spacing between consecutive requests,
// shared across workers.
type MinGap struct {
	limiter *rate.Limiter
}

// NewMinGap builds a spacing limiter.
func NewMinGap(gap time.Duration) *MinGap {
	return &MinGap{limiter: rate.NewLimiter(rate.Every(gap), 1)}
}

// Wait blocks until the gap has elapsed or ctx is done.
func (g *MinGap) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}
