package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/emmett/whispering/internal/apperr"
)

func fastConfig(retries int) RetryConfig {
	return RetryConfig{MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return apperr.Device("open device", errors.New("busy"))
		}
		return nil
	})

	if err != nil {
		t.Errorf("Retry() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsRetries(t *testing.T) {
	calls := 0
	failure := errors.New("connection reset")

	err := Retry(context.Background(), fastConfig(2), func() error {
		calls++
		return failure
	})

	if !errors.Is(err, failure) {
		t.Errorf("Retry() = %v, want %v", err, failure)
	}
	if calls != 3 { // initial + 2 retries
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	notFound := errors.New("404 Not Found")

	err := Retry(context.Background(), fastConfig(5), func() error {
		calls++
		return Permanent(notFound)
	})

	if !errors.Is(err, notFound) {
		t.Errorf("Retry() = %v, want %v", err, notFound)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Retry(ctx, RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Second}, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("eof"), true},
		{"permanent", Permanent(errors.New("bad")), false},
		{"cancelled", context.Canceled, false},
		{"unavailable", status.Error(codes.Unavailable, "x"), true},
		{"invalid argument", status.Error(codes.InvalidArgument, "x"), false},
		{"device error", apperr.Device("reconnect", errors.New("gone")), true},
		{"config error", apperr.Config("load", errors.New("bad yaml")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, JitterFactor: 0.2}

	for attempt, base := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second} {
		got := backoffDelay(cfg, attempt)
		lo := time.Duration(float64(base) * 0.9)
		hi := time.Duration(float64(base) * 1.1)
		if got < lo || got > hi {
			t.Errorf("backoffDelay(%d) = %v, want within [%v, %v]", attempt, got, lo, hi)
		}
	}
}
