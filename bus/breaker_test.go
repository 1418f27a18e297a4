package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	cb := NewCircuitBreaker(
		WithBreakerThreshold(3),
		WithBreakerResetTimeout(100*time.Millisecond),
		WithBreakerClock(clock),
	)

	if cb.State() != BreakerClosed {
		t.Fatal("expected closed")
	}
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	if cb.State() != BreakerOpen {
		t.Fatal("expected open after 3 failures")
	}
	if cb.Allow() {
		t.Fatal("should not allow when open")
	}

	now = now.Add(200 * time.Millisecond)
	if cb.State() != BreakerHalfOpen {
		t.Fatal("expected half-open after reset timeout")
	}
	cb.RecordSuccess()
	cb.RecordSuccess()
	if cb.State() != BreakerClosed {
		t.Fatalf("expected closed after 2 half-open successes, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	cb := NewCircuitBreaker(
		WithBreakerThreshold(1),
		WithBreakerResetTimeout(50*time.Millisecond),
		WithBreakerClock(clock),
	)

	cb.RecordFailure()
	now = now.Add(100 * time.Millisecond)
	if cb.State() != BreakerHalfOpen {
		t.Fatal("expected half-open")
	}
	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatal("expected re-open after failure in half-open")
	}
}

func TestWithBreaker_RejectsWhileOpen(t *testing.T) {
	mem := NewMemoryBus()
	defer mem.Close()
	mem.SetPublishError(ErrNotConnected)

	cb := NewCircuitBreaker(WithBreakerThreshold(2), WithBreakerResetTimeout(time.Hour))
	b := WithBreaker(mem, cb)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := b.Publish(ctx, "t", []byte("x")); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("publish %d: err = %v, want ErrNotConnected", i, err)
		}
	}

	mem.SetPublishError(nil)
	if err := b.Publish(ctx, "t", []byte("x")); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if n := len(mem.Published()); n != 0 {
		t.Fatalf("inner bus saw %d publishes while open", n)
	}
}
