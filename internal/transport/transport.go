package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FailureKind classifies transport failures for root-level mapping.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureNetwork
	FailureAuth
	FailureStatus
)

func (k FailureKind) String() string {
	switch k {
	case FailureNetwork:
		return "network"
	case FailureAuth:
		return "auth"
	case FailureStatus:
		return "status"
	default:
		return "none"
	}
}

// Failure is returned by Send for every call that did not produce a usable response.
type Failure struct {
	Kind       FailureKind
	Descriptor *Descriptor
	Status     int
	Body       []byte
	Err        error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case FailureNetwork:
		return fmt.Sprintf("%s %s: network failure: %v", f.Descriptor.Method, f.Descriptor.Path, f.Err)
	default:
		if f.Err != nil {
			return fmt.Sprintf("%s %s: %s failure: status %d: %v", f.Descriptor.Method, f.Descriptor.Path, f.Kind, f.Status, f.Err)
		}
		return fmt.Sprintf("%s %s: %s failure: status %d", f.Descriptor.Method, f.Descriptor.Path, f.Kind, f.Status)
	}
}

func (f *Failure) Unwrap() error { return f.Err }

var (
	ErrBaseURL    = errors.New("transport: base URL must be absolute http(s)")
	ErrNilRequest = errors.New("transport: nil descriptor")

	// ErrResponseTooLarge is the cause of a status failure whose body exceeded
	// MaxResponseBytes. The body is never handed out truncated as a success.
	ErrResponseTooLarge = errors.New("transport: response body too large")
)

// Config controls how calls are built and classified.
type Config struct {
	BaseURL             string
	Timeout             time.Duration
	UserAgent           string
	MaxResponseBytes    int64
	AuthFailureStatuses []int
	FollowRedirects     bool
}

// Transport sends descriptors against one base URL with a shared cookie jar.
// It is safe for concurrent use.
type Transport struct {
	base       *url.URL
	client     *http.Client
	userAgent  string
	maxBody    int64
	authStatus map[int]struct{}
}

// New builds a Transport. jar may be nil (no cookies); rt may be nil
// (http.DefaultTransport).
func New(cfg Config, jar http.CookieJar, rt http.RoundTripper) (*Transport, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, ErrBaseURL
	}
	if rt == nil {
		rt = http.DefaultTransport
	}
	client := &http.Client{
		Transport: rt,
		Jar:       jar,
		Timeout:   cfg.Timeout,
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	statuses := cfg.AuthFailureStatuses
	if len(statuses) == 0 {
		statuses = []int{http.StatusUnauthorized}
	}
	authStatus := make(map[int]struct{}, len(statuses))
	for _, s := range statuses {
		authStatus[s] = struct{}{}
	}

	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = 5 << 20
	}

	return &Transport{
		base:       base,
		client:     client,
		userAgent:  cfg.UserAgent,
		maxBody:    maxBody,
		authStatus: authStatus,
	}, nil
}

// HTTPClient exposes the underlying client so collaborators (the default
// renewer) share the cookie jar without going through classification.
func (t *Transport) HTTPClient() *http.Client {
	return t.client
}

// BaseURL returns a copy of the configured base URL.
func (t *Transport) BaseURL() *url.URL {
	u := *t.base
	return &u
}

// Resolve joins path and query onto the base URL.
func (t *Transport) Resolve(path string, query url.Values) string {
	u := *t.base
	u.Path = strings.TrimRight(t.base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Send issues exactly one call for d.
func (t *Transport) Send(ctx context.Context, d *Descriptor) (*Response, error) {
	if d == nil {
		return nil, ErrNilRequest
	}

	var body io.Reader
	if len(d.Body) > 0 {
		body = bytes.NewReader(d.Body)
	}
	req, err := http.NewRequestWithContext(ctx, d.Method, t.Resolve(d.Path, d.Query), body)
	if err != nil {
		return nil, &Failure{Kind: FailureNetwork, Descriptor: d, Err: fmt.Errorf("build request: %w", err)}
	}
	for k, values := range d.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if d.ID != "" {
		req.Header.Set("X-Request-ID", d.ID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &Failure{Kind: FailureNetwork, Descriptor: d, Err: err}
	}
	defer resp.Body.Close()

	// One byte past the cap tells an oversized body from one that fits exactly.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, &Failure{Kind: FailureNetwork, Descriptor: d, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	oversized := int64(len(raw)) > t.maxBody
	if oversized {
		raw = raw[:t.maxBody]
	}

	if _, ok := t.authStatus[resp.StatusCode]; ok {
		return nil, &Failure{Kind: FailureAuth, Descriptor: d, Status: resp.StatusCode, Body: raw}
	}
	if oversized {
		return nil, &Failure{
			Kind:       FailureStatus,
			Descriptor: d,
			Status:     resp.StatusCode,
			Body:       raw,
			Err:        fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, t.maxBody),
		}
	}
	if resp.StatusCode >= 400 {
		return nil, &Failure{Kind: FailureStatus, Descriptor: d, Status: resp.StatusCode, Body: raw}
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   raw,
	}, nil
}

// KindOf reports the failure kind carried by err, or FailureNone.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailureNone
}
