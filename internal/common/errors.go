package common

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for server-rejected sends. These are terminal: retrying
// the same message cannot change the outcome.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotRoomMember   = errors.New("not a member of room")
	ErrInvalidMessage  = errors.New("invalid message")
)

// FailureReason classifies a send failure for the outbox retry decision.
type FailureReason string

const (
	// FailureTransient covers timeouts, resets and DNS failures: retry
	// under backoff.
	FailureTransient FailureReason = "transient"
	// FailureRejected covers validation/authorization rejections: abandon
	// immediately, surface to the user.
	FailureRejected FailureReason = "rejected"
)

// SendError wraps a failed reliable-channel send with its classification.
type SendError struct {
	Reason     FailureReason
	StatusCode int // HTTP status when the server answered, 0 otherwise
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("send failed (%s, status %d): %v", e.Reason, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("send failed (%s): %v", e.Reason, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// NewTransientError marks err as retryable under the standard backoff.
func NewTransientError(err error) *SendError {
	return &SendError{Reason: FailureTransient, Err: err}
}

// NewRejectedError marks err as a server rejection, never retried.
func NewRejectedError(statusCode int, err error) *SendError {
	return &SendError{Reason: FailureRejected, StatusCode: statusCode, Err: err}
}

// Classify decides the failure reason for an arbitrary send error.
// Unknown failure shapes default to transient so they stay bounded by
// maxRetries rather than being dropped on the floor.
func Classify(err error) FailureReason {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Reason
	}
	if errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrNotRoomMember) || errors.Is(err, ErrInvalidMessage) {
		return FailureRejected
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}
	return FailureTransient
}

// Retryable reports whether the outbox processor should keep retrying.
func Retryable(err error) bool {
	return Classify(err) == FailureTransient
}
