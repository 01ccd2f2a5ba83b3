package jwt

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretBytes is the minimum HS256 secret length.
const MinSecretBytes = 32

// Config configures a [Manager].
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Manager signs and verifies access and refresh tokens with HS256. Access and
// refresh tokens use different secrets, so one can never pass as the other.
type Manager struct {
	config Config
}

// AccessClaims is the access-token claim set.
type AccessClaims struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	ClinicID string `json:"clinicId,omitempty"`
	BranchID string `json:"branchId,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh-token claim set. The registered jti keeps two
// tokens minted in the same second distinct.
type RefreshClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Window returns exp - iat, the validity window the token was minted with.
func (c *RefreshClaims) Window() time.Duration {
	if c.ExpiresAt == nil || c.IssuedAt == nil {
		return 0
	}
	return c.ExpiresAt.Sub(c.IssuedAt.Time)
}

// AccessInput is the subject data embedded in an access token.
type AccessInput struct {
	UserID   string
	Email    string
	Username string
	Role     string
	ClinicID string
	BranchID string
}

// NewManager validates cfg and returns a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if len(cfg.AccessSecret) < MinSecretBytes {
		return nil, fmt.Errorf("access secret must be at least %d bytes", MinSecretBytes)
	}
	if len(cfg.RefreshSecret) < MinSecretBytes {
		return nil, fmt.Errorf("refresh secret must be at least %d bytes", MinSecretBytes)
	}
	if subtle.ConstantTimeCompare(cfg.AccessSecret, cfg.RefreshSecret) == 1 {
		return nil, errors.New("access and refresh secrets must differ")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// CreateAccess signs an access token valid for AccessTTL.
func (j *Manager) CreateAccess(in AccessInput) (string, error) {
	now := j.config.Now()
	claims := AccessClaims{
		UserID:   in.UserID,
		Email:    in.Email,
		Username: in.Username,
		Role:     in.Role,
		ClinicID: in.ClinicID,
		BranchID: in.BranchID,
		RegisteredClaims: j.registered(now, j.config.AccessTTL, ""),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.config.AccessSecret)
}

// CreateRefresh signs a refresh token valid for ttl and returns it with its
// jti.
func (j *Manager) CreateRefresh(userID string, ttl time.Duration) (string, *RefreshClaims, error) {
	if ttl <= 0 {
		return "", nil, errors.New("invalid refresh TTL")
	}
	now := j.config.Now()
	claims := &RefreshClaims{
		UserID:           userID,
		RegisteredClaims: j.registered(now, ttl, uuid.NewString()),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.config.RefreshSecret)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// ParseAccess verifies signature, algorithm, expiry and issuer of an access
// token.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, j.config.AccessSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// ParseRefresh is ParseAccess for refresh tokens.
func (j *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, j.config.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (j *Manager) registered(now time.Time, ttl time.Duration, id string) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    j.config.Issuer,
		ID:        id,
	}
	if j.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	return rc
}

type timedClaims interface {
	jwt.Claims
	issuedAt() *jwt.NumericDate
}

func (c *AccessClaims) issuedAt() *jwt.NumericDate  { return c.IssuedAt }
func (c *RefreshClaims) issuedAt() *jwt.NumericDate { return c.IssuedAt }

func (j *Manager) parse(tokenStr string, claims timedClaims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.config.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}
	if iat := claims.issuedAt(); iat != nil && j.config.MaxFutureIAT > 0 {
		maxAllowed := j.config.Now().Add(j.config.MaxFutureIAT)
		if iat.Time.After(maxAllowed) {
			return errors.New("token iat too far in the future")
		}
	}
	return nil
}
