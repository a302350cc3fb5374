package goAdmin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/MrEthical07/goAdmin/internal/hooks"
	"github.com/MrEthical07/goAdmin/internal/renewal"
	"github.com/MrEthical07/goAdmin/internal/transport"
	"github.com/MrEthical07/goAdmin/refresh"
	"github.com/MrEthical07/goAdmin/session"
	"github.com/redis/go-redis/v9"
)

// restoreTimeout bounds the session restore Build performs when persistence is on.
const restoreTimeout = 3 * time.Second

// Builder assembles a Client. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	renewer   Renewer
	logout    LogoutHook
	logger    *slog.Logger
	auditSink AuditSink
	rt        http.RoundTripper

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL sets Transport.BaseURL.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.Transport.BaseURL = baseURL
	return b
}

// WithRedis enables session persistence backed by client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	if client != nil {
		b.config.Session.Persist = true
	}
	return b
}

// WithRenewer sets the initial renew hook, replacing the default refresh-endpoint renewer.
func (b *Builder) WithRenewer(r Renewer) *Builder {
	b.renewer = r
	return b
}

// WithLogoutHook sets the initial logout hook.
func (b *Builder) WithLogoutHook(h LogoutHook) *Builder {
	b.logout = h
	return b
}

// WithLogger sets the structured logger. slog.Default is used otherwise.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the sink and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithRoundTripper overrides the HTTP transport, mainly for tests.
func (b *Builder) WithRoundTripper(rt http.RoundTripper) *Builder {
	b.rt = rt
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Client.
//
// When persistence is enabled, Build restores the tenant's stored session. A
// missing or unreadable snapshot is logged and leaves the client logged out.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Session.Persist && b.redis == nil {
		return nil, errors.New("Session Persist requires redis client")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "goadmin", "tenant_id", cfg.Session.TenantID)

	// -------- TRANSPORT --------
	base, err := url.Parse(cfg.Transport.BaseURL)
	if err != nil {
		return nil, err
	}
	jar := session.NewJar(base)
	tr, err := transport.New(transport.Config{
		BaseURL:             cfg.Transport.BaseURL,
		Timeout:             cfg.Transport.Timeout,
		UserAgent:           cfg.Transport.UserAgent,
		MaxResponseBytes:    cfg.Transport.MaxResponseBytes,
		AuthFailureStatuses: cfg.Transport.AuthFailureStatuses,
		FollowRedirects:     cfg.Transport.FollowRedirects,
	}, jar, b.rt)
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:    cfg,
		transport: tr,
		jar:       jar,
		hooks:     &hooks.Registry{},
		metrics:   NewMetrics(cfg.Metrics),
		audit:     newAuditDispatcher(cfg.Audit, cfg.Session.TenantID, b.auditSink),
		log:       logger,
	}

	// -------- SESSION STORE --------
	if cfg.Session.Persist {
		c.store = session.NewStore(b.redis, cfg.Session.RedisPrefix)
	}

	// -------- HOOKS --------
	switch {
	case b.renewer != nil:
		c.hooks.SetRenewer(b.renewer)
	case !cfg.Renewal.DisableDefaultRenewer:
		r, err := refresh.NewRenewer(refresh.Config{
			URL:       tr.Resolve(cfg.Endpoints.Refresh, nil),
			Method:    cfg.Renewal.RefreshMethod,
			UserAgent: cfg.Transport.UserAgent,
		}, tr.HTTPClient())
		if err != nil {
			return nil, err
		}
		c.defaultRenewer = r
		c.hooks.SetRenewer(r)
	}
	if b.logout != nil {
		c.hooks.SetLogoutHook(b.logout)
	}

	// -------- RENEWAL COORDINATOR --------
	c.coordinator = renewal.New(renewal.Config{
		Timeout:    cfg.Renewal.Timeout,
		MaxWaiters: cfg.Renewal.MaxWaiters,
	}, renewal.Deps{
		Sender: tr,
		Hooks:  c.hooks,
		Logger: logger,
		Events: c.renewalEvents(),
	})

	if c.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
		if _, err := c.RestoreSession(ctx); err != nil && !errors.Is(err, session.ErrSnapshotNotFound) {
			logger.Warn("stored session not restored", "error", err)
		}
		cancel()
	}

	b.built = true
	return c, nil
}
