package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	apperrors "github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
)

// FailureClass categorizes an operation failure for retry decisions
type FailureClass int

const (
	// ClassRetryable - transient failure, worth retrying
	ClassRetryable FailureClass = iota
	// ClassFatal - permanent failure, retrying will not help
	ClassFatal
	// ClassBreakerOpen - blocked by an open circuit breaker
	ClassBreakerOpen
)

func (c FailureClass) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassFatal:
		return "fatal"
	case ClassBreakerOpen:
		return "breaker_open"
	default:
		return "unknown"
	}
}

// retryablePatterns are message fragments that mark an otherwise
// unclassified error as transient. Matched case-insensitively.
var retryablePatterns = []string{
	"connection",
	"timeout",
	"network",
	"temporary",
	"unavailable",
	"overloaded",
	"rate limit",
	"database",
	"service",
	"500",
	"502",
	"503",
	"504",
	"429",
}

// Classify maps an error to a failure class. Typed checks run before
// the message scan so a not-found error mentioning "database" stays
// fatal.
func Classify(err error) FailureClass {
	if err == nil {
		return ClassFatal
	}

	var cbErr *CircuitBreakerError
	if errors.As(err, &cbErr) {
		return ClassBreakerOpen
	}

	if errors.Is(err, context.Canceled) {
		return ClassFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassRetryable
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return ClassRetryable
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case apperrors.ErrorTypeTimeout,
			apperrors.ErrorTypeExternal,
			apperrors.ErrorTypeUnavailable,
			apperrors.ErrorTypeRateLimit:
			return ClassRetryable
		case apperrors.ErrorTypeValidation,
			apperrors.ErrorTypeAuthentication,
			apperrors.ErrorTypeAuthorization,
			apperrors.ErrorTypeNotFound,
			apperrors.ErrorTypeConflict:
			return ClassFatal
		}
	}

	message := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(message, pattern) {
			return ClassRetryable
		}
	}

	return ClassFatal
}

// IsRetryable reports whether the error is worth retrying.
func IsRetryable(err error) bool {
	return Classify(err) == ClassRetryable
}
