// Package security summarizes the effective security posture of a
// configuration, for operators checking a deployment before it goes live.
package security

import (
	"time"

	"github.com/MrEthical07/clinicauth/internal/server"
)

// PasswordReport mirrors the argon2id parameters new hashes are written with.
type PasswordReport struct {
	Memory      uint32 `yaml:"memory_kib"`
	Time        uint32 `yaml:"iterations"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length"`
	MinLength   int    `yaml:"policy_min_length"`
	Symbol      bool   `yaml:"policy_require_symbol"`
}

type Report struct {
	ProductionMode       bool           `yaml:"production_mode"`
	SigningAlgorithm     string         `yaml:"signing_algorithm"`
	AccessTTL            time.Duration  `yaml:"access_ttl"`
	RefreshTTL           time.Duration  `yaml:"refresh_ttl"`
	RememberMeRefreshTTL time.Duration  `yaml:"remember_me_refresh_ttl"`
	RefreshRotation      bool           `yaml:"refresh_rotation"`
	Argon2               PasswordReport `yaml:"argon2"`
	LockoutThreshold     int            `yaml:"lockout_threshold"`
	LockoutDuration      time.Duration  `yaml:"lockout_duration"`
	ResetTokenTTL        time.Duration  `yaml:"reset_token_ttl"`
	VerifyTokenTTL       time.Duration  `yaml:"verify_token_ttl"`
	RequireVerifiedEmail bool           `yaml:"require_verified_email"`
	RateLimitingActive   bool           `yaml:"rate_limiting_active"`
	RateLimitBackend     string         `yaml:"rate_limit_backend,omitempty"`
	MailDeliveryActive   bool           `yaml:"mail_delivery_active"`
	TokensExposed        bool           `yaml:"tokens_exposed"`
	AuditActive          bool           `yaml:"audit_active"`
	Warnings             []string       `yaml:"warnings,omitempty"`
}

// BuildReport reads a validated server config. Warnings flag settings that
// are legal but weak for production.
func BuildReport(cfg *server.Config) (Report, error) {
	eng, err := cfg.EngineConfig()
	if err != nil {
		return Report{}, err
	}

	prod := cfg.App.Env == "prod"
	rateLimiting := cfg.Rate.Enabled && cfg.Rate.Limit > 0 && cfg.Rate.Window > 0

	r := Report{
		ProductionMode:       prod,
		SigningAlgorithm:     "HS256",
		AccessTTL:            eng.JWT.AccessTTL,
		RefreshTTL:           eng.JWT.RefreshTTL,
		RememberMeRefreshTTL: eng.JWT.RememberMeRefreshTTL,
		RefreshRotation:      true,
		Argon2: PasswordReport{
			Memory:      eng.Password.Hash.Memory,
			Time:        eng.Password.Hash.Time,
			Parallelism: eng.Password.Hash.Parallelism,
			SaltLength:  eng.Password.Hash.SaltLength,
			KeyLength:   eng.Password.Hash.KeyLength,
			MinLength:   eng.Password.Policy.MinLength,
			Symbol:      eng.Password.Policy.RequireSymbol,
		},
		LockoutThreshold:     eng.Lockout.Threshold,
		LockoutDuration:      eng.Lockout.Duration,
		ResetTokenTTL:        eng.Tokens.ResetTTL,
		VerifyTokenTTL:       eng.Tokens.VerifyTTL,
		RequireVerifiedEmail: eng.Account.RequireVerifiedEmail,
		RateLimitingActive:   rateLimiting,
		MailDeliveryActive:   cfg.SMTP.Host != "",
		TokensExposed:        cfg.HTTP.ExposeTokens,
		AuditActive:          eng.Audit.Enabled,
	}
	if rateLimiting {
		r.RateLimitBackend = cfg.Rate.Backend
	}

	if prod && !r.RateLimitingActive {
		r.Warnings = append(r.Warnings, "rate limiting is disabled")
	}
	if prod && cfg.Storage.Driver == "memory" {
		r.Warnings = append(r.Warnings, "memory storage loses all accounts on restart")
	}
	if prod && cfg.Rate.Enabled && cfg.Rate.Backend == "memory" {
		r.Warnings = append(r.Warnings, "memory rate limiter is per process")
	}
	if !r.MailDeliveryActive && !r.TokensExposed {
		r.Warnings = append(r.Warnings, "no smtp host: reset and verification tokens cannot reach users")
	}
	if r.AccessTTL > 24*time.Hour {
		r.Warnings = append(r.Warnings, "access tokens live longer than a day")
	}
	return r, nil
}
