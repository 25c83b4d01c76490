package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestKindFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{413, KindInputTooLarge},
		{429, KindRateLimited},
		{408, KindTimeout},
		{504, KindTimeout},
		{500, KindUnavailable},
		{502, KindUnavailable},
		{503, KindUnavailable},
		{400, KindUnknown},
		{404, KindUnknown},
	}
	for _, tt := range tests {
		if got := KindFromStatus(tt.status); got != tt.want {
			t.Errorf("KindFromStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"classified", NewError(KindModelLoading, errors.New("warming up")), KindModelLoading},
		{"wrapped classified", fmt.Errorf("call: %w", NewStatusError(429, errors.New("slow down"))), KindRateLimited},
		{"canceled", context.Canceled, KindCanceled},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), KindTimeout},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), KindUnavailable},
		{"plain", errors.New("bad request"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNewStatusError(t *testing.T) {
	err := NewStatusError(413, errors.New("too long"))
	if err.Kind != KindInputTooLarge || err.StatusCode != 413 {
		t.Errorf("unexpected error: %+v", err)
	}
	if err.Error() != "input_too_large: too long" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, err.Err) {
		t.Error("expected Unwrap to expose cause")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unavailable", NewError(KindUnavailable, errors.New("503")), true},
		{"loading", NewError(KindModelLoading, errors.New("503")), true},
		{"malformed", NewError(KindMalformed, errors.New("empty")), true},
		{"auth", NewError(KindAuth, errors.New("401")), false},
		{"rate limited", NewError(KindRateLimited, errors.New("429")), false},
		{"connection reset", syscall.ECONNRESET, true},
		{"net timeout", timeoutErr{}, true},
		{"string pattern", errors.New("read tcp: i/o timeout"), true},
		{"regular", errors.New("permanent"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	if KindInputTooLarge.String() != "input_too_large" {
		t.Errorf("unexpected %q", KindInputTooLarge.String())
	}
	if Kind(99).String() != "unknown" {
		t.Errorf("unexpected %q", Kind(99).String())
	}
}
