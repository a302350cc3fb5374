package goAdmin

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config is the full client configuration. Start from DefaultConfig, adjust,
// and hand it to Builder.WithConfig; Build copies it, so later edits to the
// caller's value have no effect on a built Client.
type Config struct {
	Transport TransportConfig
	Endpoints EndpointsConfig
	Renewal   RenewalConfig
	Session   SessionConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Logging   LoggingConfig
}

/*
====================================
TRANSPORT CONFIG
====================================
*/

// TransportConfig controls the outbound HTTP boundary.
type TransportConfig struct {
	BaseURL             string
	Timeout             time.Duration
	UserAgent           string
	MaxResponseBytes    int64
	AuthFailureStatuses []int // statuses that start session renewal; default [401]
	FollowRedirects     bool
}

// EndpointsConfig names the server paths the client itself calls.
type EndpointsConfig struct {
	Login      string
	Logout     string
	Refresh    string
	SetupCheck string
}

/*
====================================
RENEWAL CONFIG
====================================
*/

// RenewalConfig controls the session renewal coordinator.
type RenewalConfig struct {
	Timeout    time.Duration
	MaxWaiters int // 0 = unbounded
	// RefreshMethod is the HTTP method of the default renewer.
	RefreshMethod string
	// DisableDefaultRenewer leaves the renew hook empty until SetRenewHook is called.
	DisableDefaultRenewer bool
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls cookie persistence.
type SessionConfig struct {
	TenantID    string
	Persist     bool // requires a redis client
	RedisPrefix string
	PersistTTL  time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher. With DropIfFull a
// full buffer drops the event (counted by Client.AuditDropped); otherwise Emit
// blocks until there is room.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig turns the in-process counters and the renewal latency
// histogram on. Both are off by default.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// LoggingConfig is consumed by the command line tools when they build the slog handler.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Transport: TransportConfig{
			BaseURL:             "http://localhost:8080/api",
			Timeout:             30 * time.Second,
			UserAgent:           "goAdmin/1",
			MaxResponseBytes:    5 << 20,
			AuthFailureStatuses: []int{401},
		},
		Endpoints: EndpointsConfig{
			Login:      "/auth/login",
			Logout:     "/auth/logout",
			Refresh:    "/auth/refresh",
			SetupCheck: "/setup/check",
		},
		Renewal: RenewalConfig{
			Timeout:       15 * time.Second,
			MaxWaiters:    0,
			RefreshMethod: "POST",
		},
		Session: SessionConfig{
			TenantID:    "0",
			Persist:     false,
			RedisPrefix: "ga",
			PersistTTL:  7 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Transport.AuthFailureStatuses = append([]int(nil), cfg.Transport.AuthFailureStatuses...)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate returns an error naming the first setting a Client cannot run with,
// checking sections in declaration order. Endpoints must be absolute paths and
// the renewal timeout must be positive; persistence settings are only checked
// when Session.Persist is set. Build calls it on its own copy.
func (c *Config) Validate() error {
	// Transport
	base, err := url.Parse(strings.TrimSpace(c.Transport.BaseURL))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return errors.New("Transport BaseURL must be an absolute http(s) URL")
	}
	if c.Transport.Timeout < 0 {
		return errors.New("Transport Timeout must be >= 0")
	}
	if c.Transport.MaxResponseBytes < 0 {
		return errors.New("Transport MaxResponseBytes must be >= 0")
	}
	for _, s := range c.Transport.AuthFailureStatuses {
		if s < 400 || s > 599 {
			return errors.New("Transport AuthFailureStatuses must be 4xx/5xx codes")
		}
	}

	// Endpoints
	for _, p := range []string{c.Endpoints.Login, c.Endpoints.Logout, c.Endpoints.Refresh, c.Endpoints.SetupCheck} {
		if !strings.HasPrefix(p, "/") {
			return errors.New("Endpoints must be absolute paths")
		}
	}

	// Renewal
	if c.Renewal.Timeout <= 0 {
		return errors.New("Renewal Timeout must be > 0")
	}
	if c.Renewal.MaxWaiters < 0 {
		return errors.New("Renewal MaxWaiters must be >= 0")
	}
	switch strings.ToUpper(c.Renewal.RefreshMethod) {
	case "POST", "PUT", "GET":
	default:
		return errors.New("Renewal RefreshMethod must be POST, PUT or GET")
	}

	// Session
	if strings.TrimSpace(c.Session.TenantID) == "" {
		return errors.New("Session TenantID must not be empty")
	}
	if c.Session.Persist {
		if strings.TrimSpace(c.Session.RedisPrefix) == "" {
			return errors.New("Session RedisPrefix required when Persist is true")
		}
		if c.Session.PersistTTL <= 0 {
			return errors.New("Session PersistTTL must be > 0 when Persist is true")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.New("Logging Level must be debug, info, warn or error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return errors.New("Logging Format must be text or json")
	}

	return nil
}
