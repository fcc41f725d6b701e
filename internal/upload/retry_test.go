package upload

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"callingest/internal/services"
)

func TestRetryPolicySchedule(t *testing.T) {
	policy := DefaultRetryPolicy()
	if policy.MaxAttempts() != 6 {
		t.Fatalf("MaxAttempts = %d, want 6", policy.MaxAttempts())
	}
	want := []time.Duration{0, 3 * time.Second, 5 * time.Second, 10 * time.Second, 20 * time.Second}
	for i, d := range want {
		got, ok := policy.Next(i + 1)
		if !ok || got != d {
			t.Fatalf("Next(%d) = %v,%v want %v,true", i+1, got, ok, d)
		}
	}
	if _, ok := policy.Next(6); ok {
		t.Fatal("sixth failure must exhaust the schedule")
	}
	if _, ok := policy.Next(0); ok {
		t.Fatal("Next(0) should not yield a delay")
	}
}

func TestDefaultRetryPolicyCopiesDelays(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.Delays[1] = time.Hour
	if DefaultRetryDelays[1] != 3*time.Second {
		t.Fatal("DefaultRetryPolicy must not alias DefaultRetryDelays")
	}
}

func TestSleepWithContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepWithContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := SleepWithContext(context.Background(), 0); err != nil {
		t.Fatalf("zero sleep: %v", err)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", &statusError{StatusCode: http.StatusInternalServerError}, true},
		{"bad gateway", &statusError{StatusCode: http.StatusBadGateway}, true},
		{"conflict", &statusError{StatusCode: http.StatusConflict}, true},
		{"locked", &statusError{StatusCode: http.StatusLocked}, true},
		{"rate limited", &statusError{StatusCode: http.StatusTooManyRequests}, true},
		{"bad request", &statusError{StatusCode: http.StatusBadRequest}, false},
		{"unauthorized", &statusError{StatusCode: http.StatusUnauthorized}, false},
		{"not found", &statusError{StatusCode: http.StatusNotFound}, false},
		{"net timeout", fmt.Errorf("patch: %w", timeoutErr{}), true},
		{"transport", fmt.Errorf("%w: reset", errTransport), true},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Fatalf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	if err := classify("op", "", &statusError{StatusCode: http.StatusForbidden}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("403 should be configuration error, got %v", err)
	}
	if err := classify("op", "", &statusError{StatusCode: http.StatusUnprocessableEntity}); !errors.Is(err, services.ErrFatalUpload) {
		t.Fatalf("422 should be fatal, got %v", err)
	}
	if err := classify("op", "", context.Canceled); !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("cancel should map to ErrCancelled, got %v", err)
	}
}
