package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kind classifies a remote inference failure.
type Kind int

const (
	// KindUnknown is any failure the taxonomy does not name.
	KindUnknown Kind = iota
	// KindAuth means credentials were rejected.
	KindAuth
	// KindModelLoading means the model is warming up on the provider side.
	KindModelLoading
	// KindUnavailable means the service or model is temporarily unavailable.
	KindUnavailable
	// KindInputTooLarge means the input exceeded the model's context.
	KindInputTooLarge
	// KindRateLimited means the provider throttled the caller.
	KindRateLimited
	// KindMalformed means the response was empty or could not be decoded.
	KindMalformed
	// KindTimeout means the call or the network timed out.
	KindTimeout
	// KindUnsupported means the backend cannot serve the task.
	KindUnsupported
	// KindCanceled means the caller's context was canceled.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindModelLoading:
		return "model_loading"
	case KindUnavailable:
		return "unavailable"
	case KindInputTooLarge:
		return "input_too_large"
	case KindRateLimited:
		return "rate_limited"
	case KindMalformed:
		return "malformed"
	case KindTimeout:
		return "timeout"
	case KindUnsupported:
		return "unsupported"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is a classified inference failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError classifies err as kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// NewStatusError classifies err by its HTTP status code.
func NewStatusError(statusCode int, err error) *Error {
	return &Error{Kind: KindFromStatus(statusCode), StatusCode: statusCode, Err: err}
}

// KindFromStatus maps an HTTP status code onto the taxonomy. Model warm-up
// shares 503 with plain unavailability, so backends that can tell the two
// apart must construct KindModelLoading themselves.
func KindFromStatus(statusCode int) Kind {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusRequestEntityTooLarge:
		return KindInputTooLarge
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return KindUnavailable
	default:
		return KindUnknown
	}
}

// KindOf returns the classification of err. Unclassified network failures
// count as unavailability.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, ErrCircuitOpen) {
		return KindUnavailable
	}
	if IsTransient(err) {
		return KindUnavailable
	}
	return KindUnknown
}

// IsTransient returns true if the error (or any error in its chain) is a
// retryable classified error, or if it matches common transient network
// patterns (timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindModelLoading, KindUnavailable, KindTimeout, KindMalformed:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped errors from HTTP clients lose their types.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
