package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSlidingWindowAdmitsUpToLimit(t *testing.T) {
	w := NewSlidingWindow(3, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := w.Wait(ctx); err != nil {
			t.Fatalf("admission %d failed: %v", i, err)
		}
	}
	if w.Pending() != 3 {
		t.Fatalf("Pending = %d, want 3", w.Pending())
	}
}

func TestSlidingWindowBlocksWhenFull(t *testing.T) {
	w := NewSlidingWindow(1, time.Minute)
	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("first admission failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Wait(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded while window full, got %v", err)
	}
}

func TestSlidingWindowExpiry(t *testing.T) {
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewSlidingWindow(1, time.Minute)
	w.now = func() time.Time { return current }

	if wait := w.tryAdmit(); wait != 0 {
		t.Fatalf("first admit should be immediate, got %v", wait)
	}
	if wait := w.tryAdmit(); wait != time.Minute {
		t.Fatalf("second admit should wait a full window, got %v", wait)
	}

	current = current.Add(61 * time.Second)
	if wait := w.tryAdmit(); wait != 0 {
		t.Fatalf("admit after expiry should be immediate, got %v", wait)
	}
}

func TestSlidingWindowConcurrentAdmissions(t *testing.T) {
	w := NewSlidingWindow(100, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Wait(context.Background()); err != nil {
				t.Errorf("Wait failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if w.Pending() != 100 {
		t.Fatalf("Pending = %d, want 100", w.Pending())
	}
}

func TestMinGapSpacing(t *testing.T) {
	g := NewMinGap(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := g.Wait(ctx); err != nil {
			t.Fatalf("Wait %d failed: %v", i, err)
		}
	}
	// First admission is immediate, the next two each wait a gap.
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Fatalf("three admissions took %v, want >= 60ms spacing", elapsed)
	}
}

func TestMinGapCancellation(t *testing.T) {
	g := NewMinGap(time.Minute)
	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := g.Wait(ctx); err == nil {
		t.Fatal("expected context error while gap pending")
	}
}
