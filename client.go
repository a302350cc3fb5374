package goAdmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goAdmin/internal/hooks"
	"github.com/MrEthical07/goAdmin/internal/renewal"
	"github.com/MrEthical07/goAdmin/internal/transport"
	"github.com/MrEthical07/goAdmin/refresh"
	"github.com/MrEthical07/goAdmin/session"
)

// Client is the authenticated admin API client shared by every screen.
//
// All methods are safe for concurrent use. A Client owns exactly one session and
// one renewal coordinator: however many calls fail authorization at once, the
// session is renewed at most once and every held call is replayed once.
type Client struct {
	config      Config
	transport   *transport.Transport
	jar         *session.Jar
	store       *session.Store
	hooks       *hooks.Registry
	coordinator *renewal.Coordinator
	metrics     *Metrics
	audit       *auditDispatcher
	log         *slog.Logger

	defaultRenewer *refresh.Renewer

	// lifecycle orders the closed check against calls.Add so Close never
	// waits on a group that can still grow.
	lifecycle sync.RWMutex
	calls     sync.WaitGroup
	closed    atomic.Bool
}

/*
====================================
DISPATCH
====================================
*/

// Issue sends req and returns the server's reply.
//
// An authorization failure is never returned: the call is held until the
// session is renewed and then replayed once. If the renewal fails, the call
// fails with ErrRenewalFailure and the logout hook runs once for that renewal;
// it may issue calls of its own through this client. Every other
// failure is a *RequestError matching one of ErrNetworkFailure,
// ErrStatusFailure, ErrReplayFailure, ErrQueueFull or ErrRequestCanceled.
func (c *Client) Issue(ctx context.Context, req Request) (*Response, error) {
	if c == nil || c.transport == nil {
		return nil, ErrClientNotReady
	}
	if !c.enter() {
		return nil, ErrClientClosed
	}
	defer c.calls.Done()

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" || strings.TrimSpace(req.Path) == "" {
		return nil, ErrInvalidRequest
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d := &transport.Descriptor{
		ID:     requestIDFromContext(ctx),
		Method: method,
		Path:   req.Path,
		Query:  req.Query,
		Header: req.Header,
		Body:   req.Body,
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	c.metricInc(MetricRequestIssued)

	resp, err := c.transport.Send(ctx, d)
	replayed := false
	if err != nil && transport.KindOf(err) == transport.FailureAuth {
		c.metricInc(MetricAuthFailure)
		if req.NoRenew {
			return nil, c.requestError(ctx, d, err)
		}
		resp, err = c.coordinator.Recover(ctx, d)
		replayed = true
	}
	if err != nil {
		return nil, c.requestError(ctx, d, err)
	}

	c.metricInc(MetricRequestSucceeded)
	return &Response{
		Status:    resp.Status,
		Header:    resp.Header,
		Body:      resp.Body,
		RequestID: d.ID,
		Replayed:  replayed,
	}, nil
}

func (c *Client) requestError(ctx context.Context, d *transport.Descriptor, err error) *RequestError {
	re := &RequestError{
		RequestID: d.ID,
		Method:    d.Method,
		Path:      d.Path,
		Err:       err,
	}

	var rf *renewal.Failure
	var tf *transport.Failure
	switch {
	case errors.As(err, &rf):
		re.Status = rf.Status
		re.Err = rf.Err
		switch rf.Kind {
		case renewal.FailureReplay:
			re.Kind = FailureReplay
		case renewal.FailureQueueFull:
			re.Kind = FailureQueueFull
		default:
			re.Kind = FailureRenewal
		}
	case errors.As(err, &tf):
		re.Status = tf.Status
		re.Body = tf.Body
		re.Err = tf.Err
		switch tf.Kind {
		case transport.FailureAuth:
			re.Kind = FailureAuth
		case transport.FailureStatus:
			re.Kind = FailureStatus
		default:
			re.Kind = FailureNetwork
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		re.Kind = FailureCanceled
	default:
		re.Kind = FailureNetwork
	}

	// A transport error caused by the caller's own context is a cancellation.
	if re.Kind == FailureNetwork && ctx.Err() != nil {
		re.Kind = FailureCanceled
	}

	switch re.Kind {
	case FailureNetwork:
		c.metricInc(MetricNetworkFailure)
	case FailureStatus:
		c.metricInc(MetricStatusFailure)
	}
	c.log.Debug("request failed",
		"request_id", re.RequestID,
		"method", re.Method,
		"path", re.Path,
		"kind", re.Kind.String(),
		"status", re.Status,
	)
	return re
}

/*
====================================
JSON HELPERS
====================================
*/

// GetJSON issues GET path and decodes the reply into out (which may be nil).
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.doJSON(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, nil, out)
}

// PostJSON marshals in, issues POST path and decodes the reply into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, Request{Method: http.MethodPost, Path: path}, in, out)
}

// PutJSON marshals in, issues PUT path and decodes the reply into out.
func (c *Client) PutJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, Request{Method: http.MethodPut, Path: path}, in, out)
}

// Delete issues DELETE path.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, Request{Method: http.MethodDelete, Path: path}, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, req Request, in, out any) error {
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encode body: %v", ErrInvalidRequest, err)
		}
		req.Body = body
	}
	resp, err := c.Issue(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.Path, err)
	}
	return nil
}

// CheckSetup asks the server whether a super-admin account exists yet. The
// first-run wizard is shown when it does not.
func (c *Client) CheckSetup(ctx context.Context) (SetupStatus, error) {
	var st SetupStatus
	if c == nil {
		return st, ErrClientNotReady
	}
	err := c.GetJSON(ctx, c.config.Endpoints.SetupCheck, nil, &st)
	return st, err
}

/*
====================================
SESSION
====================================
*/

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login opens a cookie session. Refused credentials return ErrInvalidCredentials;
// no renewal is attempted for the login call itself.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if c == nil || c.transport == nil {
		return ErrClientNotReady
	}
	if !c.enter() {
		return ErrClientClosed
	}
	defer c.calls.Done()

	body, err := json.Marshal(credentials{Username: username, Password: password})
	if err != nil {
		return err
	}

	_, err = c.Issue(ctx, Request{
		Method:  http.MethodPost,
		Path:    c.config.Endpoints.Login,
		Body:    body,
		NoRenew: true,
	})
	if err != nil {
		c.emitAudit(ctx, AuditEvent{EventType: AuditLogin, Error: err.Error()})
		if KindOf(err) == FailureAuth {
			return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return err
	}

	c.metricInc(MetricLogin)
	c.emitAudit(ctx, AuditEvent{EventType: AuditLogin, Success: true})
	c.log.Info("logged in", "username", username)
	c.persistSession(ctx)
	return nil
}

// Logout ends the session on the server and drops local session state. Local
// state is dropped even when the server call fails; that error is returned.
func (c *Client) Logout(ctx context.Context) error {
	if c == nil || c.transport == nil {
		return ErrClientNotReady
	}
	if !c.enter() {
		return ErrClientClosed
	}
	defer c.calls.Done()

	_, err := c.Issue(ctx, Request{
		Method:  http.MethodPost,
		Path:    c.config.Endpoints.Logout,
		NoRenew: true,
	})

	c.dropSession(ctx)
	c.metricInc(MetricLogout)
	c.emitAudit(ctx, AuditEvent{EventType: AuditLogout, Success: err == nil, Error: errString(err)})
	c.log.Info("logged out")
	return err
}

// SetRenewHook replaces the renew hook. The next renewal uses it; a renewal
// already in flight keeps the hook it started with. nil leaves no renewer, so
// the next authorization failure fails with ErrNoRenewer.
func (c *Client) SetRenewHook(r Renewer) {
	if c == nil {
		return
	}
	c.hooks.SetRenewer(r)
}

// SetLogoutHook replaces the logout hook. nil clears it.
func (c *Client) SetLogoutHook(h LogoutHook) {
	if c == nil {
		return
	}
	c.hooks.SetLogoutHook(h)
}

// RestoreSession loads the tenant's stored session into the cookie jar. It
// reports whether any cookie was restored. Without persistence it does nothing.
func (c *Client) RestoreSession(ctx context.Context) (bool, error) {
	if c == nil || c.store == nil {
		return false, nil
	}
	snap, err := c.store.Load(ctx, c.config.Session.TenantID)
	if err != nil {
		return false, err
	}
	if snap.BaseURL != "" && snap.BaseURL != c.transport.BaseURL().String() {
		return false, fmt.Errorf("stored session belongs to %s", snap.BaseURL)
	}
	n := c.jar.Load(snap)
	c.log.Info("session restored", "cookies", n, "saved_at", snap.SavedAt)
	return n > 0, nil
}

// SaveSession stores the current cookies for the tenant. Without persistence it
// does nothing.
func (c *Client) SaveSession(ctx context.Context) error {
	if c == nil || c.store == nil {
		return nil
	}
	snap := c.jar.Snapshot(c.config.Session.TenantID)
	if exp, ok := c.AccessExpiry(); ok {
		snap.AccessExpiresAt = exp
	}
	err := c.store.Save(ctx, snap, c.config.Session.PersistTTL)
	if errors.Is(err, session.ErrSnapshotStale) {
		return nil
	}
	return err
}

func (c *Client) persistSession(ctx context.Context) {
	if c.store == nil {
		return
	}
	if err := c.SaveSession(context.WithoutCancel(ctx)); err != nil {
		c.log.Warn("session not persisted", "error", err)
	}
}

func (c *Client) dropSession(ctx context.Context) {
	c.jar.Reset()
	if c.store != nil {
		c.store.LogoutHook(c.config.Session.TenantID).ForceLogout(context.WithoutCancel(ctx), nil)
	}
}

// LoggedIn reports whether the jar currently holds session cookies. It says
// nothing about whether the server still accepts them.
func (c *Client) LoggedIn() bool {
	return c != nil && c.jar != nil && c.jar.Len() > 0
}

// AccessExpiry returns the expiry of the access token obtained by the last
// renewal of the default renewer.
func (c *Client) AccessExpiry() (time.Time, bool) {
	if c == nil || c.defaultRenewer == nil {
		return time.Time{}, false
	}
	return c.defaultRenewer.AccessExpiry()
}

/*
====================================
STATE & LIFECYCLE
====================================
*/

// RenewalState is the externally visible phase of session renewal.
type RenewalState string

const (
	RenewalIdle     RenewalState = "idle"
	RenewalRenewing RenewalState = "renewing"
	RenewalDraining RenewalState = "draining"
)

// RenewalState reports the current renewal phase.
func (c *Client) RenewalState() RenewalState {
	if c == nil || c.coordinator == nil {
		return RenewalIdle
	}
	return RenewalState(c.coordinator.State().String())
}

// PendingRenewals reports how many calls are held behind the in-flight renewal,
// not counting the call that started it.
func (c *Client) PendingRenewals() int {
	if c == nil || c.coordinator == nil {
		return 0
	}
	return c.coordinator.Pending()
}

// Close rejects new calls, waits for calls already in flight (and the renewal
// they may be waiting on) to finish, then flushes the audit buffer. It must not
// be called from a logout hook.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.lifecycle.Lock()
	if c.closed.Load() {
		c.lifecycle.Unlock()
		return
	}
	c.closed.Store(true)
	c.lifecycle.Unlock()

	c.calls.Wait()
	if c.coordinator != nil {
		c.coordinator.Wait()
	}
	if c.audit != nil {
		c.audit.Close()
	}
}

// enter registers one public call unless the client is closed. A true result
// must be paired with c.calls.Done.
func (c *Client) enter() bool {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	if c.closed.Load() {
		return false
	}
	c.calls.Add(1)
	return true
}

// AuditDropped reports how many audit events were dropped under backpressure.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// MetricsSnapshot copies the client counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// Config returns a copy of the configuration the client was built with.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
