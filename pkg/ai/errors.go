package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies failures of external model calls.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindTransient ErrorKind = "transient"
	KindMalformed ErrorKind = "malformed"
	KindBlocked   ErrorKind = "blocked"
	KindFatal     ErrorKind = "fatal"
)

// ErrContentBlocked is matched by every ExternalServiceError of kind blocked.
var ErrContentBlocked = errors.New("content blocked by provider")

// ExternalServiceError is returned by adapters and by Query.
type ExternalServiceError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func NewError(op string, kind ErrorKind, err error) *ExternalServiceError {
	return &ExternalServiceError{Op: op, Kind: kind, Err: err}
}

func (e *ExternalServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrContentBlocked && e.Kind == KindBlocked
}

// KindOf reports the kind of err. Errors that were never classified count as
// transient, except context and network failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ese *ExternalServiceError
	if errors.As(err, &ese) {
		return ese.Kind
	}
	if errors.Is(err, ErrContentBlocked) {
		return KindBlocked
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindFatal
	}
	return KindTransient
}

// Classify wraps err into an ExternalServiceError unless it already is one.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ese *ExternalServiceError
	if errors.As(err, &ese) {
		return err
	}
	return NewError(op, KindOf(err), err)
}

// IsRetryable is true for timeouts, transient and malformed failures.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindTransient, KindMalformed:
		return true
	default:
		return false
	}
}

// KindForStatus maps an HTTP status returned by a provider to an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status == http.StatusTooManyRequests, status >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}
