package clinicauth

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/clinicauth/jwt"
	"github.com/MrEthical07/clinicauth/password"
	"github.com/MrEthical07/clinicauth/permission"
)

// Config holds every tunable of the engine. Obtain one from [DefaultConfig],
// adjust, and hand it to [Builder.WithConfig].
type Config struct {
	JWT      JWTConfig
	Lockout  LockoutConfig
	Tokens   SecretTokenConfig
	Password PasswordConfig
	Account  AccountConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access and refresh tokens. The two secrets must be at
// least 32 bytes and differ.
type JWTConfig struct {
	AccessSecret         []byte
	RefreshSecret        []byte
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	RememberMeRefreshTTL time.Duration
	Issuer               string
	Leeway               time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
SECRET TOKEN CONFIG
====================================
*/

type SecretTokenConfig struct {
	ResetTTL  time.Duration
	VerifyTTL time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries argon2id cost and the strength policy.
type PasswordConfig struct {
	Hash   password.Config
	Policy password.Policy
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig governs registration and login gating.
type AccountConfig struct {
	// SelfRegisterRoles lists the roles Register accepts. SUPER_ADMIN is
	// never accepted.
	SelfRegisterRoles []permission.Role
	// DefaultRole is used when a registration names no role.
	DefaultRole permission.Role
	// RequireVerifiedEmail makes Login reject unverified accounts.
	RequireVerifiedEmail bool
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the documented defaults. Secrets are empty and must
// be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:            24 * time.Hour,
			RefreshTTL:           24 * time.Hour,
			RememberMeRefreshTTL: 30 * 24 * time.Hour,
			Issuer:               "clinicauth",
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  2 * time.Hour,
		},
		Tokens: SecretTokenConfig{
			ResetTTL:  10 * time.Minute,
			VerifyTTL: 24 * time.Hour,
		},
		Password: PasswordConfig{
			Hash:   password.DefaultConfig(),
			Policy: password.DefaultPolicy(),
		},
		Account: AccountConfig{
			SelfRegisterRoles: []permission.Role{permission.Staff},
			DefaultRole:       permission.Staff,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.Account.SelfRegisterRoles = append([]permission.Role(nil), cfg.Account.SelfRegisterRoles...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) < jwt.MinSecretBytes {
		return fmt.Errorf("JWT AccessSecret must be at least %d bytes", jwt.MinSecretBytes)
	}
	if len(c.JWT.RefreshSecret) < jwt.MinSecretBytes {
		return fmt.Errorf("JWT RefreshSecret must be at least %d bytes", jwt.MinSecretBytes)
	}
	if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RememberMeRefreshTTL < c.JWT.RefreshTTL {
		return errors.New("JWT RememberMeRefreshTTL must be >= RefreshTTL")
	}

	// Lockout
	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Tokens
	if c.Tokens.ResetTTL <= 0 {
		return errors.New("Tokens ResetTTL must be > 0")
	}
	if c.Tokens.VerifyTTL <= 0 {
		return errors.New("Tokens VerifyTTL must be > 0")
	}

	// Password
	if c.Password.Policy.MinLength < 1 {
		return errors.New("Password Policy MinLength must be >= 1")
	}
	if c.Password.Policy.MaxLength > 0 && c.Password.Policy.MaxLength < c.Password.Policy.MinLength {
		return errors.New("Password Policy MaxLength must be >= MinLength")
	}

	// Account
	if !c.Account.DefaultRole.Valid() {
		return errors.New("Account DefaultRole is not a system role")
	}
	for _, r := range c.Account.SelfRegisterRoles {
		if !r.Valid() {
			return fmt.Errorf("Account SelfRegisterRoles contains unknown role %q", r)
		}
		if r == permission.SuperAdmin {
			return errors.New("Account SelfRegisterRoles must not contain superadmin")
		}
	}
	if !c.selfRegisterAllowed(c.Account.DefaultRole) {
		return errors.New("Account DefaultRole must be listed in SelfRegisterRoles")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func (c *Config) selfRegisterAllowed(r permission.Role) bool {
	for _, allowed := range c.Account.SelfRegisterRoles {
		if allowed == r {
			return true
		}
	}
	return false
}
