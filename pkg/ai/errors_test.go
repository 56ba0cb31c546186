package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"classified", NewError("op", KindMalformed, errors.New("x")), KindMalformed},
		{"wrapped classified", fmt.Errorf("wrap: %w", NewError("op", KindFatal, nil)), KindFatal},
		{"blocked sentinel", fmt.Errorf("wrap: %w", ErrContentBlocked), KindBlocked},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"canceled", context.Canceled, KindFatal},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, KindFatal},
		{"unknown", errors.New("boom"), KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestBlockedMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("summarize: %w", NewError("summary", KindBlocked, errors.New("SAFETY")))
	if !errors.Is(err, ErrContentBlocked) {
		t.Fatalf("expected errors.Is to match ErrContentBlocked")
	}
	if errors.Is(NewError("summary", KindTransient, nil), ErrContentBlocked) {
		t.Fatalf("transient error must not match ErrContentBlocked")
	}
}

func TestKindForStatus(t *testing.T) {
	tests := map[int]ErrorKind{
		401: KindFatal,
		403: KindFatal,
		400: KindFatal,
		408: KindTimeout,
		429: KindTransient,
		500: KindTransient,
		503: KindTransient,
	}
	for status, want := range tests {
		if got := KindForStatus(status); got != want {
			t.Fatalf("status %d: expected %s, got %s", status, want, got)
		}
	}
}
