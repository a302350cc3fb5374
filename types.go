package goAdmin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// Request describes one call to the admin API. Body is sent as-is; use the JSON
// helpers to marshal values.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	// NoRenew sends the request without session renewal: an authorization
	// failure is returned as ErrAuthFailure. Used for login and logout.
	NoRenew bool
}

// Response is a successful (2xx/3xx) server reply.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
	// Replayed is true when the response came from a replay after session renewal.
	Replayed bool
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 || v == nil {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// SetupStatus is the answer of the setup check endpoint.
type SetupStatus struct {
	SuperAdminExists bool `json:"exists"`
}

// Renewer re-establishes a valid session. It is invoked at most once per renewal
// window no matter how many requests failed.
type Renewer interface {
	Renew(ctx context.Context) error
}

// LogoutHook is invoked exactly once per failed renewal, with the renewal error.
type LogoutHook interface {
	ForceLogout(ctx context.Context, cause error)
}

// RenewFunc adapts a function to Renewer.
type RenewFunc func(ctx context.Context) error

func (f RenewFunc) Renew(ctx context.Context) error { return f(ctx) }

// LogoutFunc adapts a function to LogoutHook.
type LogoutFunc func(ctx context.Context, cause error)

func (f LogoutFunc) ForceLogout(ctx context.Context, cause error) { f(ctx, cause) }
