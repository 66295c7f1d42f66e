package inference

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrServiceExhausted is the single terminal error callers are expected to
// branch on: every retry and every fallback target has been tried. The
// finer-grained classes below are for logging and remedy selection only.
var ErrServiceExhausted = errors.New("inference service exhausted")

// errEmptyResponse marks a nominally successful call that returned no text.
var errEmptyResponse = errors.New("empty response from inference service")

// ErrorClass groups remote-service failures by the remedy they require. The
// remote service's own taxonomy is untyped text and status codes, so
// classification is heuristic and injectable.
type ErrorClass string

const (
	ClassTransientNetwork ErrorClass = "transient_network"
	ClassServerOverload   ErrorClass = "server_overload"
	ClassRateLimited      ErrorClass = "rate_limited"
	ClassQuotaExhausted   ErrorClass = "quota_exhausted"
	ClassFatal            ErrorClass = "fatal"
	ClassEmptyResponse    ErrorClass = "empty_response"
)

// Classifier maps a backend error onto an ErrorClass.
type Classifier func(err error) ErrorClass

// DefaultClassifier is a substring and type heuristic over provider error
// text. It is deliberately conservative: anything unrecognized is Fatal so
// the client never retries an error it does not understand.
func DefaultClassifier(err error) ErrorClass {
	if err == nil {
		return ClassFatal
	}

	if errors.Is(err, errEmptyResponse) {
		return ClassEmptyResponse
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return ClassTransientNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota exceeded"),
		strings.Contains(msg, "limit: 0"),
		strings.Contains(msg, "quota"):
		return ClassQuotaExhausted
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "resource exhausted"):
		return ClassRateLimited
	case strings.Contains(msg, "503"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "overload"),
		strings.Contains(msg, "unavailable"):
		return ClassServerOverload
	case strings.Contains(msg, "connection"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "tls"),
		strings.Contains(msg, "reset by peer"):
		return ClassTransientNetwork
	default:
		return ClassFatal
	}
}
