package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	goAdmin "github.com/MrEthical07/goAdmin"
)

// Settings is what the CLI reads besides the client Config.
type Settings struct {
	Config    goAdmin.Config
	RedisAddr string
	Username  string
	Password  string
}

// Config keys. Nested keys map to GOADMIN_* env vars with dots replaced by
// underscores, e.g. GOADMIN_RENEWAL_TIMEOUT for renewal.timeout.
const (
	keyConfigFile     = "config"
	keyBaseURL        = "base_url"
	keyTimeout        = "timeout"
	keyUserAgent      = "user_agent"
	keyRenewalTimeout = "renewal.timeout"
	keyMaxWaiters     = "renewal.max_waiters"
	keyTenant         = "session.tenant"
	keyRedisAddr      = "session.redis_addr"
	keyRedisPrefix    = "session.redis_prefix"
	keyPersistTTL     = "session.ttl"
	keyLogLevel       = "log.level"
	keyLogFormat      = "log.format"
	keyUsername       = "username"
	keyPassword       = "password"
)

func setDefaults(v *viper.Viper) {
	d := goAdmin.DefaultConfig()
	v.SetDefault(keyBaseURL, d.Transport.BaseURL)
	v.SetDefault(keyTimeout, d.Transport.Timeout)
	v.SetDefault(keyUserAgent, d.Transport.UserAgent)
	v.SetDefault(keyRenewalTimeout, d.Renewal.Timeout)
	v.SetDefault(keyMaxWaiters, d.Renewal.MaxWaiters)
	v.SetDefault(keyTenant, d.Session.TenantID)
	v.SetDefault(keyRedisAddr, "")
	v.SetDefault(keyRedisPrefix, d.Session.RedisPrefix)
	v.SetDefault(keyPersistTTL, d.Session.PersistTTL)
	v.SetDefault(keyLogLevel, d.Logging.Level)
	v.SetDefault(keyLogFormat, d.Logging.Format)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GOADMIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// readConfigFile loads the file named by --config, or goadmin.yaml from the
// working directory and $HOME/.config/goadmin when present.
func readConfigFile(v *viper.Viper) error {
	if file := v.GetString(keyConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
		return nil
	}

	v.SetConfigName("goadmin")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/goadmin")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// loadSettings resolves defaults, file, env and flags into Settings and
// validates the client configuration.
func loadSettings(v *viper.Viper) (Settings, error) {
	cfg := goAdmin.DefaultConfig()
	cfg.Transport.BaseURL = v.GetString(keyBaseURL)
	cfg.Transport.Timeout = v.GetDuration(keyTimeout)
	cfg.Transport.UserAgent = v.GetString(keyUserAgent)
	cfg.Renewal.Timeout = v.GetDuration(keyRenewalTimeout)
	cfg.Renewal.MaxWaiters = v.GetInt(keyMaxWaiters)
	cfg.Session.TenantID = v.GetString(keyTenant)
	cfg.Session.RedisPrefix = v.GetString(keyRedisPrefix)
	cfg.Session.PersistTTL = v.GetDuration(keyPersistTTL)
	cfg.Logging.Level = v.GetString(keyLogLevel)
	cfg.Logging.Format = v.GetString(keyLogFormat)

	s := Settings{
		RedisAddr: v.GetString(keyRedisAddr),
		Username:  v.GetString(keyUsername),
		Password:  v.GetString(keyPassword),
	}
	cfg.Session.Persist = s.RedisAddr != ""
	s.Config = cfg

	if err := cfg.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}
