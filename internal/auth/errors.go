package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Reasons reported on ProtocolError when the server did not supply one.
const (
	ReasonMalformedResponse  = "malformed_response"
	ReasonMissingAccessToken = "missing_access_token"
	ReasonUnexpectedStatus   = "unexpected_status"
)

// PreconditionError reports a flow step attempted without the state it needs,
// such as a token exchange with no persisted verifier.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

// CryptoError reports a failure of the random source or the hash.
// It indicates a broken execution environment and is not retryable.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto failure during %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// NetworkError reports a transport-level failure talking to an endpoint.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError reports a call that exceeded its deadline.
type TimeoutError struct {
	Endpoint string
	Timeout  time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s calling %s", e.Timeout, e.Endpoint)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ProtocolError reports a non-success status or an unusable response body.
// Reason carries the OAuth "error" code when the server sent one.
type ProtocolError struct {
	Endpoint    string
	StatusCode  int
	Reason      string
	Description string
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s responded with %s", e.Endpoint, e.Reason)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

// AuthExpiredError reports an access token the resource server refused.
// The caller should start a fresh authorization attempt.
type AuthExpiredError struct {
	Endpoint   string
	StatusCode int
	Reason     string
}

func (e *AuthExpiredError) Error() string {
	msg := fmt.Sprintf("access token rejected by %s (status %d)", e.Endpoint, e.StatusCode)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// StateMismatchError reports a callback whose state does not belong to the
// pending attempt: a forged request or a callback for a superseded attempt.
type StateMismatchError struct {
	AttemptID string
}

func (e *StateMismatchError) Error() string {
	if e.AttemptID == "" {
		return "callback state does not match any pending attempt"
	}
	return fmt.Sprintf("callback state does not match pending attempt %s", e.AttemptID)
}

// AttemptConflictError reports a new attempt refused because another one is
// still pending.
type AttemptConflictError struct {
	AttemptID string
	Age       time.Duration
}

func (e *AttemptConflictError) Error() string {
	return fmt.Sprintf("authorization attempt %s is still pending (started %s ago)",
		e.AttemptID, e.Age.Round(time.Second))
}

// Retryable reports whether err is a transient transport failure. Nothing in
// this package retries automatically; an authorization code is single-use, so
// a retry means starting a new attempt.
func Retryable(err error) bool {
	var netErr *NetworkError
	var timeoutErr *TimeoutError
	return errors.As(err, &netErr) || errors.As(err, &timeoutErr)
}

// RequiresReauthorization reports whether err is a flow failure whose only
// recovery is a new attempt from Begin. Errors from outside the flow, such as
// a cancelled context, return false.
func RequiresReauthorization(err error) bool {
	switch outcome(err) {
	case "success", "canceled", "error":
		return false
	}
	return true
}

// transportError classifies a failed HTTP round trip.
func transportError(endpoint string, timeout time.Duration, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("request to %s cancelled: %w", endpoint, err)
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &TimeoutError{Endpoint: endpoint, Timeout: timeout, Err: err}
	}
	return &NetworkError{Endpoint: endpoint, Err: err}
}

// outcome labels err for metrics.
func outcome(err error) string {
	var (
		precondition *PreconditionError
		crypto       *CryptoError
		network      *NetworkError
		timeout      *TimeoutError
		protocol     *ProtocolError
		expired      *AuthExpiredError
		mismatch     *StateMismatchError
		conflict     *AttemptConflictError
	)
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &precondition):
		return "precondition"
	case errors.As(err, &crypto):
		return "crypto"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &network):
		return "network"
	case errors.As(err, &protocol):
		return "protocol"
	case errors.As(err, &expired):
		return "auth_expired"
	case errors.As(err, &mismatch):
		return "state_mismatch"
	case errors.As(err, &conflict):
		return "attempt_conflict"
	default:
		return "error"
	}
}
