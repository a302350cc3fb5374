package goAdmin

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goAdmin/internal/renewal"
	"github.com/MrEthical07/goAdmin/internal/transport"
)

var (
	// ErrNetworkFailure matches requests that never received a response.
	ErrNetworkFailure = errors.New("network failure")
	// ErrAuthFailure matches an authorization-failure status. Issue never returns it
	// for requests that go through renewal; it is surfaced only by requests sent with
	// NoRenew.
	ErrAuthFailure = errors.New("authorization failure")
	// ErrRenewalFailure matches every request released by a failed session renewal.
	ErrRenewalFailure = errors.New("session renewal failed")
	// ErrReplayFailure matches a replayed request that failed authorization again.
	ErrReplayFailure = errors.New("request rejected after session renewal")
	// ErrStatusFailure matches any other error status (>= 400) and bodies over
	// Transport.MaxResponseBytes.
	ErrStatusFailure = errors.New("request failed with error status")
	// ErrQueueFull matches requests refused because the renewal queue was at capacity.
	ErrQueueFull = errors.New("renewal queue full")
	// ErrRequestCanceled matches requests whose context ended while waiting on a renewal.
	ErrRequestCanceled = errors.New("request canceled while waiting for renewal")

	// ErrRenewalTimeout is the renewal cause when the renewer did not settle in time.
	ErrRenewalTimeout = renewal.ErrTimeout
	// ErrNoRenewer is the renewal cause when no renewer was registered.
	ErrNoRenewer = renewal.ErrNoRenewer
	// ErrResponseTooLarge is the cause of a status failure whose body exceeded
	// Transport.MaxResponseBytes.
	ErrResponseTooLarge = transport.ErrResponseTooLarge

	// ErrInvalidCredentials is returned by Login when the server refuses the credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRequest is returned for requests without a method or path.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrClientClosed is returned after Close.
	ErrClientClosed = errors.New("client closed")
	// ErrClientNotReady is returned by a nil or unbuilt client.
	ErrClientNotReady = errors.New("client not initialized")
)

// FailureKind classifies a failed request.
type FailureKind int

const (
	FailureNetwork FailureKind = iota + 1
	FailureAuth
	FailureStatus
	FailureRenewal
	FailureReplay
	FailureQueueFull
	FailureCanceled
)

func (k FailureKind) String() string {
	switch k {
	case FailureNetwork:
		return "network"
	case FailureAuth:
		return "auth"
	case FailureStatus:
		return "status"
	case FailureRenewal:
		return "renewal"
	case FailureReplay:
		return "replay"
	case FailureQueueFull:
		return "queue_full"
	case FailureCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func (k FailureKind) sentinel() error {
	switch k {
	case FailureNetwork:
		return ErrNetworkFailure
	case FailureAuth:
		return ErrAuthFailure
	case FailureStatus:
		return ErrStatusFailure
	case FailureRenewal:
		return ErrRenewalFailure
	case FailureReplay:
		return ErrReplayFailure
	case FailureQueueFull:
		return ErrQueueFull
	case FailureCanceled:
		return ErrRequestCanceled
	default:
		return nil
	}
}

// RequestError is returned by Issue for every failed request.
//
// errors.Is matches the sentinel of its Kind (ErrNetworkFailure, ErrRenewalFailure,
// ...) and, through Unwrap, the underlying cause.
type RequestError struct {
	Kind      FailureKind
	RequestID string
	Method    string
	Path      string
	Status    int
	Body      []byte
	Err       error
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Kind.sentinel())
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf reports the failure kind of err, or 0 when err is not a *RequestError.
func KindOf(err error) FailureKind {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}
