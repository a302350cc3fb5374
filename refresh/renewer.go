package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goAdmin/jwt"
)

var (
	// ErrRefreshRejected means the server no longer accepts the session credentials.
	ErrRefreshRejected = errors.New("refresh rejected")
	// ErrRefreshFailed covers every other non-2xx answer of the refresh endpoint.
	ErrRefreshFailed = errors.New("refresh failed")
	ErrInvalidConfig = errors.New("invalid refresh config")
)

// Config describes the refresh endpoint.
type Config struct {
	// URL is the absolute refresh endpoint.
	URL string
	// Method defaults to POST.
	Method string
	// AccessCookie names the cookie carrying the access token; its expiry is read
	// after every renewal. Defaults to "access_token".
	AccessCookie string
	UserAgent    string
}

// Renewer renews the cookie session by calling the refresh endpoint directly
// through the client's HTTP client, so the new cookies land in the shared jar.
type Renewer struct {
	cfg    Config
	client *http.Client

	calls      atomic.Uint64
	lastExpiry atomic.Int64 // unix millis, 0 when unknown
}

// NewRenewer returns a Renewer. client must carry the session cookie jar.
func NewRenewer(cfg Config, client *http.Client) (*Renewer, error) {
	if cfg.URL == "" || client == nil {
		return nil, ErrInvalidConfig
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.AccessCookie == "" {
		cfg.AccessCookie = "access_token"
	}
	return &Renewer{cfg: cfg, client: client}, nil
}

// Renew performs one refresh call.
func (r *Renewer) Renew(ctx context.Context) error {
	r.calls.Add(1)

	req, err := http.NewRequestWithContext(ctx, r.cfg.Method, r.cfg.URL, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)
	}

	r.recordExpiry(resp.Cookies())
	return nil
}

func (r *Renewer) recordExpiry(cookies []*http.Cookie) {
	for _, c := range cookies {
		if c.Name != r.cfg.AccessCookie {
			continue
		}
		exp, err := jwt.PeekExpiry(c.Value)
		if err != nil {
			r.lastExpiry.Store(0)
			return
		}
		r.lastExpiry.Store(exp.UnixMilli())
		return
	}
}

// Calls reports how many refresh calls were made.
func (r *Renewer) Calls() uint64 {
	return r.calls.Load()
}

// AccessExpiry returns the expiry of the access token received by the last
// successful renewal, when it was a readable JWT.
func (r *Renewer) AccessExpiry() (time.Time, bool) {
	ms := r.lastExpiry.Load()
	if ms == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
