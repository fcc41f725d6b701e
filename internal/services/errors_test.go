package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"callingest/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTranscode, "compression", "exec", "ffmpeg exited", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTranscode) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"compression", "exec", "ffmpeg exited"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("expected network marker by default, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestKindMapping(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrConfiguration, "upload", "credential", "missing token", nil), "configuration"},
		{services.Wrap(services.ErrRuntimeLoad, "compression", "load", "", nil), "runtime_load"},
		{services.Wrap(services.ErrTranscode, "compression", "exec", "", nil), "transcode"},
		{services.Wrap(services.ErrCancelled, "compression", "exec", "", nil), "cancellation"},
		{fmt.Errorf("wrapped: %w", context.Canceled), "cancellation"},
		{services.Wrap(services.ErrFatalUpload, "upload", "patch", "", nil), "fatal_upload"},
		{services.Wrap(services.ErrNetwork, "upload", "patch", "", nil), "network"},
		{errors.New("plain"), "internal"},
	}
	for _, tt := range tests {
		if got := services.Kind(tt.err); got != tt.want {
			t.Fatalf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestIsCancellation(t *testing.T) {
	if services.IsCancellation(nil) {
		t.Fatal("nil must not be a cancellation")
	}
	if services.IsCancellation(services.Wrap(services.ErrTranscode, "", "", "", nil)) {
		t.Fatal("transcode failure must not be a cancellation")
	}
	if !services.IsCancellation(services.Wrap(services.ErrCancelled, "compression", "", "", context.Canceled)) {
		t.Fatal("expected cancellation")
	}
}
