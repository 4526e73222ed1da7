package providerutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrierDoSucceedsWithoutRetry(t *testing.T) {
	r := NewRetrier(3, time.Millisecond)
	calls := 0
	err := r.Do(context.Background(), func(error) bool { return true }, func(int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetrierDoRetriesRetryableErrorsUntilSuccess(t *testing.T) {
	r := NewRetrier(3, time.Millisecond)
	calls := 0
	transient := errors.New("rate limited")
	err := r.Do(context.Background(), func(error) bool { return true }, func(attempt int) error {
		calls++
		if attempt < 2 {
			return transient
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetrierDoStopsImmediatelyOnNonRetryableError(t *testing.T) {
	r := NewRetrier(3, time.Millisecond)
	calls := 0
	permanent := errors.New("invalid api key")
	err := r.Do(context.Background(), func(error) bool { return false }, func(int) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetrierDoGivesUpAfterMaxRetries(t *testing.T) {
	r := NewRetrier(2, time.Millisecond)
	calls := 0
	transient := errors.New("503")
	err := r.Do(context.Background(), func(error) bool { return true }, func(int) error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("expected transient error after exhausting retries, got %v", err)
	}
	if calls != 3 { // initial attempt + 2 retries
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetrierDoStopsOnContextCancellation(t *testing.T) {
	r := NewRetrier(5, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, func(error) bool { return true }, func(int) error {
		calls++
		cancel()
		return errors.New("still failing")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected loop to stop after cancellation, got %d calls", calls)
	}
}

func TestNewLimiterAllowsImmediatelyWhenDisabled(t *testing.T) {
	l := NewLimiter(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("expected disabled limiter to admit immediately, got %v", err)
	}
}

func TestNewLimiterThrottlesBurstRequests(t *testing.T) {
	l := NewLimiter(60, 1) // 1 request/sec, burst 1
	ctx := context.Background()
	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := l.Wait(waitCtx); err == nil {
		t.Fatalf("expected second immediate request to be throttled past 50ms, took %v", time.Since(start))
	}
}
