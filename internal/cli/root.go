// Package cli implements the goadmin command: a thin shell over goAdmin.Client
// for checking a deployment, logging in and issuing authenticated reads.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	goAdmin "github.com/MrEthical07/goAdmin"
	"github.com/MrEthical07/goAdmin/internal/logging"
)

type app struct {
	v *viper.Viper
}

// NewRootCommand returns the goadmin command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: newViper()}

	root := &cobra.Command{
		Use:   "goadmin",
		Short: "Admin API client with single-flight session renewal",
		Long: `goadmin talks to the admin API over a cookie session. Calls that hit an
expired session are held while the session is renewed once, then replayed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return readConfigFile(a.v)
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is ./goadmin.yaml or $HOME/.config/goadmin/goadmin.yaml)")
	flags.String("base-url", "", "admin API base URL")
	flags.Duration("timeout", 0, "per-call HTTP timeout")
	flags.Duration("renewal-timeout", 0, "upper bound for one session renewal")
	flags.String("tenant", "", "tenant the stored session belongs to")
	flags.String("redis-addr", "", "redis address for session persistence (disabled when empty)")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "text or json")

	bind := map[string]string{
		keyConfigFile:     "config",
		keyBaseURL:        "base-url",
		keyTimeout:        "timeout",
		keyRenewalTimeout: "renewal-timeout",
		keyTenant:         "tenant",
		keyRedisAddr:      "redis-addr",
		keyLogLevel:       "log-level",
		keyLogFormat:      "log-format",
	}
	for key, flag := range bind {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		a.setupCheckCommand(),
		a.loginCommand(),
		a.logoutCommand(),
		a.getCommand(),
	)
	return root
}

// Execute runs the goadmin command.
func Execute() error {
	return NewRootCommand().Execute()
}

// client builds a goAdmin.Client from the resolved settings. The returned
// cleanup closes the client and the redis connection.
func (a *app) client(cmd *cobra.Command) (*goAdmin.Client, Settings, func(), error) {
	s, err := loadSettings(a.v)
	if err != nil {
		return nil, Settings{}, nil, err
	}

	logger := logging.New(cmd.ErrOrStderr(), s.Config.Logging.Level, s.Config.Logging.Format)
	b := goAdmin.New().
		WithConfig(s.Config).
		WithLogger(logger).
		WithMetricsEnabled(true).
		WithLogoutHook(goAdmin.LogoutFunc(func(_ context.Context, cause error) {
			logger.Warn("session ended; log in again", "cause", cause)
		}))

	var rdb *redis.Client
	if s.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		b.WithRedis(rdb)
	}

	c, err := b.Build()
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, Settings{}, nil, err
	}

	cleanup := func() {
		c.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
	}
	return c, s, cleanup, nil
}

// ensureSession logs in with the configured credentials unless a session was
// restored from redis.
func ensureSession(ctx context.Context, c *goAdmin.Client, s Settings, log *slog.Logger) error {
	if c.LoggedIn() || s.Username == "" {
		return nil
	}
	if err := c.Login(ctx, s.Username, s.Password); err != nil {
		return fmt.Errorf("login as %s: %w", s.Username, err)
	}
	log.Debug("logged in with configured credentials", "username", s.Username)
	return nil
}
