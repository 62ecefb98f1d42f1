package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a platform operation failure. The retry policy only ever
// retries RateLimited and Transient; everything else is terminal.
type Kind string

const (
	KindValidationFailed Kind = "validation_failed"
	KindAuthRequired     Kind = "auth_required"
	KindRateLimited      Kind = "rate_limited"
	KindTransient        Kind = "transient"
	KindFatal            Kind = "fatal"
	KindNotListed        Kind = "not_listed"
	KindCancelled        Kind = "cancelled"
)

// Error a classified platform operation failure
type Error struct {
	Platform   string
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

// Error implement error interface
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (%s, status %d)", e.Platform, e.Message, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Platform, e.Message, e.Kind)
}

// Unwrap implement errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified platform error.
func NewError(platform string, kind Kind, message string) *Error {
	return &Error{Platform: platform, Kind: kind, Message: message}
}

// StatusError creates an error classified from an HTTP status code.
func StatusError(platform string, status int, message string) *Error {
	return &Error{
		Platform:   platform,
		Kind:       KindFromStatus(status),
		StatusCode: status,
		Message:    message,
	}
}

// WrapError classifies an arbitrary adapter error. Context cancellation maps
// to Cancelled, network failures to Transient, anything unrecognized to Fatal
// with the original message preserved.
func WrapError(platform string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	kind := KindFatal
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindCancelled
	case isNetworkError(err):
		kind = KindTransient
	}
	return &Error{Platform: platform, Kind: kind, Message: err.Error(), Err: err}
}

// KindFromStatus maps an HTTP status to a failure kind. 429 is RateLimited,
// 401/403 need re-authentication, other 4xx are Fatal, 5xx are Transient.
func KindFromStatus(status int) Kind {
	switch {
	case status == 429:
		return KindRateLimited
	case status == 401 || status == 403:
		return KindAuthRequired
	case status == 400 || status == 422:
		return KindValidationFailed
	case status >= 400 && status < 500:
		return KindFatal
	case status >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}

// KindOf extracts the failure kind from an error, defaulting to Fatal.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	if isNetworkError(err) {
		return KindTransient
	}
	return KindFatal
}

// DefaultRetryStatuses HTTP statuses retried when a platform configures no
// allow-list of its own.
var DefaultRetryStatuses = []int{429, 500, 502, 503, 504}

// RetryableStatuses builds a retry classifier from a status allow-list. An
// error carrying a status code is retried only when the status is listed, so
// a 501 stays terminal under the defaults. Errors without a status code fall
// back to kind-based classification.
func RetryableStatuses(statuses []int) func(error) bool {
	if len(statuses) == 0 {
		statuses = DefaultRetryStatuses
	}
	allowed := make(map[int]struct{}, len(statuses))
	for _, status := range statuses {
		allowed[status] = struct{}{}
	}
	return func(err error) bool {
		var pe *Error
		if errors.As(err, &pe) && pe.StatusCode != 0 {
			_, ok := allowed[pe.StatusCode]
			return ok
		}
		return IsRetryable(err)
	}
}

// IsRetryable reports whether the error may be retried safely.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTransient:
		return true
	default:
		return false
	}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
