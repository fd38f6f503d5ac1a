package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fail(context.Context) (int, error) { return 0, errors.New("down") }
func ok(context.Context) (int, error)   { return 1, nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("jina", 2, time.Minute)
	ctx := context.Background()

	for range 2 {
		if _, err := Guard(ctx, b, fail); err == nil {
			t.Fatal("expected failure")
		}
	}
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	_, err := Guard(ctx, b, func(context.Context) (int, error) {
		called = true
		return 0, nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}
	if called {
		t.Error("collaborator must not be called while open")
	}
}

func TestBreaker_HalfOpenTrialCall(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("firecrawl", 1, 10*time.Second)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = Guard(ctx, b, fail)
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	now = now.Add(11 * time.Second)
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}

	// A failed trial call reopens.
	_, _ = Guard(ctx, b, fail)
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open after failed trial call", b.State())
	}

	now = now.Add(11 * time.Second)
	if v, err := Guard(ctx, b, ok); err != nil || v != 1 {
		t.Fatalf("trial call: v=%d err=%v", v, err)
	}
	if b.State() != BreakerClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker("x", 2, time.Minute)
	ctx := context.Background()
	_, _ = Guard(ctx, b, fail)
	_, _ = Guard(ctx, b, ok)
	_, _ = Guard(ctx, b, fail)
	if b.State() != BreakerClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	b := NewBreaker("x", 1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = Guard(ctx, b, func(ctx context.Context) (int, error) { return 0, ctx.Err() })
	if b.State() != BreakerClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestGuard_NilBreaker(t *testing.T) {
	v, err := Guard(context.Background(), nil, ok)
	if err != nil || v != 1 {
		t.Fatalf("v=%d err=%v", v, err)
	}
}
