package goAdmin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRequestErrorMatchesKindSentinel(t *testing.T) {
	kinds := map[FailureKind]error{
		FailureNetwork:   ErrNetworkFailure,
		FailureAuth:      ErrAuthFailure,
		FailureStatus:    ErrStatusFailure,
		FailureRenewal:   ErrRenewalFailure,
		FailureReplay:    ErrReplayFailure,
		FailureQueueFull: ErrQueueFull,
		FailureCanceled:  ErrRequestCanceled,
	}

	for kind, sentinel := range kinds {
		err := fmt.Errorf("wrapped: %w", &RequestError{Kind: kind, Method: "GET", Path: "/x"})
		if !errors.Is(err, sentinel) {
			t.Fatalf("%s: expected match on its sentinel", kind)
		}
		for other, s := range kinds {
			if other != kind && errors.Is(err, s) {
				t.Fatalf("%s: unexpected match on %s sentinel", kind, other)
			}
		}
		if KindOf(err) != kind {
			t.Fatalf("KindOf = %s, want %s", KindOf(err), kind)
		}
	}
}

func TestRequestErrorUnwrapsCause(t *testing.T) {
	err := &RequestError{Kind: FailureRenewal, Method: "POST", Path: "/products", Err: ErrRenewalTimeout}
	if !errors.Is(err, ErrRenewalTimeout) {
		t.Fatal("expected cause to be reachable")
	}

	canceled := &RequestError{Kind: FailureCanceled, Err: context.Canceled}
	if !errors.Is(canceled, context.Canceled) {
		t.Fatal("expected context.Canceled to be reachable")
	}
}

func TestRequestErrorMessage(t *testing.T) {
	err := &RequestError{Kind: FailureStatus, Method: "GET", Path: "/status/500", Status: 500}
	msg := err.Error()
	for _, want := range []string{"GET", "/status/500", "status 500"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

func TestKindOfNonRequestError(t *testing.T) {
	if KindOf(errors.New("plain")) != 0 {
		t.Fatal("expected zero kind for plain error")
	}
	if KindOf(nil) != 0 {
		t.Fatal("expected zero kind for nil")
	}
}
