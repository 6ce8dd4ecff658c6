package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecoverableError(t *testing.T) {
	err := NewRecoverableError(errors.New("test error"))
	if !IsRecoverable(err) {
		t.Error("wrapped error should be recoverable")
	}
	if IsRecoverable(errors.New("test error")) {
		t.Error("plain error should not be recoverable")
	}
	if NewRecoverableError(nil) != nil {
		t.Error("wrapping nil should stay nil")
	}
	if err.Error() != "test error" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestDoRetriesRecoverable(t *testing.T) {
	count := 0
	err := Do(context.Background(), func() error {
		count++
		return NewRecoverableError(errors.New("flaky"))
	}, WithMaxRetries(3), WithBaseWait(time.Millisecond))

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if count != 3 {
		t.Errorf("fn ran %d times, want 3", count)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	count := 0
	permanent := errors.New("bad request")
	err := Do(context.Background(), func() error {
		count++
		return permanent
	}, WithMaxRetries(3), WithBaseWait(time.Millisecond))

	if !errors.Is(err, permanent) {
		t.Errorf("got %v", err)
	}
	if count != 1 {
		t.Errorf("fn ran %d times, want 1", count)
	}
}

func TestDoSucceedsAfterFailure(t *testing.T) {
	count := 0
	err := Do(context.Background(), func() error {
		count++
		if count < 2 {
			return NewRecoverableError(errors.New("flaky"))
		}
		return nil
	}, WithMaxRetries(3), WithBaseWait(time.Millisecond))

	if err != nil {
		t.Errorf("got %v, want nil", err)
	}
	if count != 2 {
		t.Errorf("fn ran %d times, want 2", count)
	}
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func() error {
		return NewRecoverableError(errors.New("flaky"))
	}, WithMaxRetries(3), WithBaseWait(time.Second))

	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
