package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/corpusworks/ingest/pkg/pipeerr"
)

func TestRetryTransient_SucceedsAfterRetry(t *testing.T) {
	attempts := 0
	err := retryTransient(context.Background(), slog.Default(), func() error {
		attempts++
		if attempts < 2 {
			return pipeerr.Transient("503 from provider", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRetryTransient_PermanentReturnsImmediately(t *testing.T) {
	attempts := 0
	want := pipeerr.Permanent("corrupt document", nil)
	err := retryTransient(context.Background(), slog.Default(), func() error {
		attempts++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
	if attempts != 1 {
		t.Errorf("permanent error retried %d times", attempts)
	}
}

func TestRetryTransient_GivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := retryTransient(context.Background(), slog.Default(), func() error {
		attempts++
		return pipeerr.Transient("still down", nil)
	})
	if !pipeerr.IsTransient(err) {
		t.Fatalf("err = %v", err)
	}
	if attempts != retryMaxAttempts {
		t.Errorf("attempts = %d, want %d", attempts, retryMaxAttempts)
	}
}

func TestRetryTransient_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retryTransient(ctx, slog.Default(), func() error {
		t.Error("op must not run after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
