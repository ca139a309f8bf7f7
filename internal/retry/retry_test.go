package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSucceedsAfterTransientFailures(t *testing.T) {
	p := Policy{MaxRetries: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("rate limited"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestFatalPropagatesImmediately(t *testing.T) {
	p := Policy{MaxRetries: 5, BaseDelay: time.Millisecond}

	fatal := errors.New("bad credentials")
	calls := 0
	err := p.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("fatal error must not be retried, got %d attempts", calls)
	}
}

func TestExhaustionPromotesToFatal(t *testing.T) {
	p := Policy{MaxRetries: 3, BaseDelay: time.Millisecond}

	calls := 0
	underlying := errors.New("timeout")
	err := p.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return Transient(underlying)
	})
	if !IsExhausted(err) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected exactly max_retries=3 attempts, got %d", calls)
	}
	if !errors.Is(err, underlying) {
		t.Errorf("exhausted error must wrap the last failure")
	}

	var ee *ExhaustedError
	if !errors.As(err, &ee) || ee.Attempts != 3 {
		t.Errorf("exhausted error should report attempts, got %+v", ee)
	}
}

func TestContextCancelStopsRetrying(t *testing.T) {
	p := Policy{MaxRetries: 10, BaseDelay: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, "test", func(ctx context.Context) error {
		calls++
		return Transient(errors.New("flaky"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls > 2 {
		t.Errorf("retries should stop on cancel, got %d attempts", calls)
	}
}

func TestDeadlineExceededIsTransient(t *testing.T) {
	if !IsTransient(context.DeadlineExceeded) {
		t.Error("deadline exceeded should classify as transient")
	}
	if IsTransient(errors.New("validation failed")) {
		t.Error("unmarked errors should classify as fatal")
	}
	if IsTransient(context.Canceled) {
		t.Error("cancellation must never be retried")
	}
}

func TestZeroRetriesStillRunsOnce(t *testing.T) {
	p := Policy{MaxRetries: 0, BaseDelay: 0}

	calls := 0
	err := p.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("expected one successful attempt, err=%v calls=%d", err, calls)
	}
}
