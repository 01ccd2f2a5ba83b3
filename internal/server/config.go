package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/permission"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "CLINICAUTH_"

// Config is the process configuration: listeners, storage, rate limiting,
// mail delivery and the engine tunables.
type Config struct {
	App struct {
		// dev | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		// dev (console) | prod (JSON)
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
	} `yaml:"log"`

	HTTP struct {
		Addr              string        `yaml:"addr"`
		MetricsAddr       string        `yaml:"metrics_addr"`
		ReadTimeout       time.Duration `yaml:"read_timeout"`
		WriteTimeout      time.Duration `yaml:"write_timeout"`
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
		TrustProxyHeaders bool          `yaml:"trust_proxy_headers"`
		// ExposeTokens echoes reset and verification tokens in responses.
		// Forced off when app.env is prod.
		ExposeTokens bool `yaml:"expose_tokens"`
	} `yaml:"http"`

	JWT struct {
		AccessSecret         string        `yaml:"access_secret"`
		RefreshSecret        string        `yaml:"refresh_secret"`
		Issuer               string        `yaml:"issuer"`
		AccessTTL            time.Duration `yaml:"access_ttl"`
		RefreshTTL           time.Duration `yaml:"refresh_ttl"`
		RememberMeRefreshTTL time.Duration `yaml:"remember_me_refresh_ttl"`
	} `yaml:"jwt"`

	Lockout struct {
		Threshold int           `yaml:"threshold"`
		Duration  time.Duration `yaml:"duration"`
	} `yaml:"lockout"`

	Tokens struct {
		ResetTTL  time.Duration `yaml:"reset_ttl"`
		VerifyTTL time.Duration `yaml:"verify_ttl"`
	} `yaml:"tokens"`

	Account struct {
		SelfRegisterRoles    []string `yaml:"self_register_roles"`
		RequireVerifiedEmail bool     `yaml:"require_verified_email"`
		RequireSymbol        bool     `yaml:"require_symbol"`
	} `yaml:"account"`

	Storage struct {
		// memory | postgres
		Driver          string        `yaml:"driver"`
		DSN             string        `yaml:"dsn"`
		MaxConns        int32         `yaml:"max_conns"`
		MinConns        int32         `yaml:"min_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
		MigrateOnStart  bool          `yaml:"migrate_on_start"`
	} `yaml:"storage"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		// memory | redis
		Backend string        `yaml:"backend"`
		Limit   int           `yaml:"limit"`
		Window  time.Duration `yaml:"window"`
		Redis   struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"rate"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"` // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
		// BaseURL prefixes the links placed in reset and verification mail.
		BaseURL string `yaml:"base_url"`
	} `yaml:"smtp"`

	Audit struct {
		Enabled    bool `yaml:"enabled"`
		BufferSize int  `yaml:"buffer_size"`
	} `yaml:"audit"`
}

// DefaultConfig mirrors clinicauth.DefaultConfig for the engine section.
func DefaultConfig() Config {
	eng := clinicauth.DefaultConfig()

	var c Config
	c.App.Env = "dev"
	c.Log.Env = "dev"
	c.Log.Level = "info"
	c.HTTP.Addr = ":8080"
	c.HTTP.MetricsAddr = ":9090"
	c.HTTP.ReadTimeout = 10 * time.Second
	c.HTTP.WriteTimeout = 30 * time.Second
	c.HTTP.ShutdownTimeout = 15 * time.Second
	c.JWT.Issuer = eng.JWT.Issuer
	c.JWT.AccessTTL = eng.JWT.AccessTTL
	c.JWT.RefreshTTL = eng.JWT.RefreshTTL
	c.JWT.RememberMeRefreshTTL = eng.JWT.RememberMeRefreshTTL
	c.Lockout.Threshold = eng.Lockout.Threshold
	c.Lockout.Duration = eng.Lockout.Duration
	c.Tokens.ResetTTL = eng.Tokens.ResetTTL
	c.Tokens.VerifyTTL = eng.Tokens.VerifyTTL
	c.Account.SelfRegisterRoles = []string{string(permission.Staff)}
	c.Storage.Driver = "memory"
	c.Storage.MaxConns = 10
	c.Storage.ConnMaxLifetime = time.Hour
	c.Storage.ConnMaxIdleTime = 30 * time.Minute
	c.Rate.Enabled = true
	c.Rate.Backend = "memory"
	c.Rate.Limit = 100
	c.Rate.Window = time.Minute
	c.SMTP.Port = 587
	c.SMTP.TLS = "auto"
	c.Audit.Enabled = true
	c.Audit.BufferSize = eng.Audit.BufferSize
	return c
}

// Load reads path over DefaultConfig, applies environment overrides and
// validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if strings.EqualFold(c.App.Env, "prod") {
		c.HTTP.ExposeTokens = false
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the process settings and the derived engine config.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	if c.Rate.Enabled {
		switch c.Rate.Backend {
		case "memory":
		case "redis":
			if c.Rate.Redis.Addr == "" {
				return errors.New("rate.redis.addr is required for the redis backend")
			}
		default:
			return fmt.Errorf("unknown rate.backend %q", c.Rate.Backend)
		}
		if c.Rate.Limit <= 0 || c.Rate.Window <= 0 {
			return errors.New("rate.limit and rate.window must be > 0")
		}
	}

	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}

	eng, err := c.EngineConfig()
	if err != nil {
		return err
	}
	return eng.Validate()
}

// EngineConfig converts the engine sections into a clinicauth.Config.
func (c *Config) EngineConfig() (clinicauth.Config, error) {
	eng := clinicauth.DefaultConfig()
	eng.JWT.AccessSecret = []byte(c.JWT.AccessSecret)
	eng.JWT.RefreshSecret = []byte(c.JWT.RefreshSecret)
	eng.JWT.Issuer = c.JWT.Issuer
	eng.JWT.AccessTTL = c.JWT.AccessTTL
	eng.JWT.RefreshTTL = c.JWT.RefreshTTL
	eng.JWT.RememberMeRefreshTTL = c.JWT.RememberMeRefreshTTL
	eng.Lockout.Threshold = c.Lockout.Threshold
	eng.Lockout.Duration = c.Lockout.Duration
	eng.Tokens.ResetTTL = c.Tokens.ResetTTL
	eng.Tokens.VerifyTTL = c.Tokens.VerifyTTL
	eng.Account.RequireVerifiedEmail = c.Account.RequireVerifiedEmail
	eng.Password.Policy.RequireSymbol = c.Account.RequireSymbol
	eng.Audit.Enabled = c.Audit.Enabled
	if c.Audit.BufferSize > 0 {
		eng.Audit.BufferSize = c.Audit.BufferSize
	}

	roles := make([]permission.Role, 0, len(c.Account.SelfRegisterRoles))
	for _, raw := range c.Account.SelfRegisterRoles {
		r, ok := permission.ParseRole(raw)
		if !ok {
			return eng, fmt.Errorf("account.self_register_roles: unknown role %q", raw)
		}
		roles = append(roles, r)
	}
	if len(roles) > 0 {
		eng.Account.SelfRegisterRoles = roles
		eng.Account.DefaultRole = roles[0]
	}
	return eng, nil
}

/*
====================================
ENVIRONMENT
====================================
*/

func (c *Config) applyEnvOverrides() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("APP_ENV", &c.App.Env)
	str("LOG_ENV", &c.Log.Env)
	str("LOG_LEVEL", &c.Log.Level)

	str("HTTP_ADDR", &c.HTTP.Addr)
	str("METRICS_ADDR", &c.HTTP.MetricsAddr)
	flag("TRUST_PROXY_HEADERS", &c.HTTP.TrustProxyHeaders)
	flag("EXPOSE_TOKENS", &c.HTTP.ExposeTokens)

	// The bare JWT_* names are accepted for deployments that share secrets
	// with other services.
	if v := os.Getenv("JWT_ACCESS_SECRET"); v != "" {
		c.JWT.AccessSecret = v
	}
	if v := os.Getenv("JWT_REFRESH_SECRET"); v != "" {
		c.JWT.RefreshSecret = v
	}
	str("JWT_ACCESS_SECRET", &c.JWT.AccessSecret)
	str("JWT_REFRESH_SECRET", &c.JWT.RefreshSecret)
	str("JWT_ISSUER", &c.JWT.Issuer)
	dur("JWT_ACCESS_TTL", &c.JWT.AccessTTL)
	dur("JWT_REFRESH_TTL", &c.JWT.RefreshTTL)

	num("LOCKOUT_THRESHOLD", &c.Lockout.Threshold)
	dur("LOCKOUT_DURATION", &c.Lockout.Duration)

	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("STORAGE_DSN", &c.Storage.DSN)
	flag("STORAGE_MIGRATE_ON_START", &c.Storage.MigrateOnStart)

	flag("RATE_ENABLED", &c.Rate.Enabled)
	str("RATE_BACKEND", &c.Rate.Backend)
	num("RATE_LIMIT", &c.Rate.Limit)
	dur("RATE_WINDOW", &c.Rate.Window)
	str("REDIS_ADDR", &c.Rate.Redis.Addr)
	str("REDIS_PASSWORD", &c.Rate.Redis.Password)
	num("REDIS_DB", &c.Rate.Redis.DB)

	str("SMTP_HOST", &c.SMTP.Host)
	num("SMTP_PORT", &c.SMTP.Port)
	str("SMTP_USERNAME", &c.SMTP.Username)
	str("SMTP_PASSWORD", &c.SMTP.Password)
	str("SMTP_FROM", &c.SMTP.From)
	str("SMTP_TLS", &c.SMTP.TLS)
	str("SMTP_BASE_URL", &c.SMTP.BaseURL)

	return errors.Join(errs...)
}
