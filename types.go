package clinicauth

import (
	"context"
	"time"

	"github.com/MrEthical07/clinicauth/authz"
	"github.com/MrEthical07/clinicauth/jwt"
	"github.com/MrEthical07/clinicauth/permission"
)

// UserStatus is the lifecycle state of an account.
type UserStatus string

const (
	StatusActive    UserStatus = "active"
	StatusInactive  UserStatus = "inactive"
	StatusSuspended UserStatus = "suspended"
	StatusPending   UserStatus = "pending"
)

// Valid reports whether s is a known status.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusPending:
		return true
	}
	return false
}

// UserRecord is the persisted user: identity, tenant placement, and security
// state.
type UserRecord struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        string

	Role     permission.Role
	Status   UserStatus
	ClinicID string
	BranchID string

	EmailVerified bool
	// Permissions are explicit grants on top of the role defaults.
	Permissions  []permission.Permission
	CustomRoleID string

	RefreshTokenHash   string
	ResetTokenHash     string
	ResetTokenExpires  *time.Time
	VerifyTokenHash    string
	VerifyTokenExpires *time.Time

	LoginAttempts int
	LockUntil     *time.Time
	LastLogin     *time.Time

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLocked reports LockUntil != nil && LockUntil > now.
func (u *UserRecord) IsLocked(now time.Time) bool {
	return u != nil && u.LockUntil != nil && u.LockUntil.After(now)
}

// Clone returns a deep copy.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	c := *u
	c.Permissions = append([]permission.Permission(nil), u.Permissions...)
	c.ResetTokenExpires = cloneTime(u.ResetTokenExpires)
	c.VerifyTokenExpires = cloneTime(u.VerifyTokenExpires)
	c.LockUntil = cloneTime(u.LockUntil)
	c.LastLogin = cloneTime(u.LastLogin)
	return &c
}

// RoleRecord is a system or clinic custom role.
type RoleRecord struct {
	ID          string
	Name        string
	DisplayName string
	Permissions []permission.Permission
	IsSystem    bool
	ClinicID    string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a deep copy.
func (r *RoleRecord) Clone() *RoleRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Permissions = append([]permission.Permission(nil), r.Permissions...)
	return &c
}

// TokenPair is returned by Login, Register and Refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the refresh validity window in seconds.
	ExpiresIn int64
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	User   *UserRecord
	Claims *jwt.AccessClaims
	// Grants holds explicit and custom-role permissions.
	Grants permission.Set
}

// Subject converts the principal into the authorization view.
func (p *Principal) Subject() authz.Subject {
	if p == nil || p.User == nil {
		return authz.Subject{}
	}
	return authz.Subject{
		ID:       p.User.ID,
		Role:     p.User.Role,
		ClinicID: p.User.ClinicID,
		BranchID: p.User.BranchID,
		Grants:   p.Grants,
	}
}

// Can resolves a permission for the principal.
func (p *Principal) Can(perm permission.Permission) bool {
	return authz.HasPermission(p.Subject(), perm)
}

/*
====================================
STORE BOUNDARY
====================================
*/

// SecretTokenKind selects the reset or verify slot of a user.
type SecretTokenKind uint8

const (
	TokenReset SecretTokenKind = iota + 1
	TokenVerify
)

func (k SecretTokenKind) String() string {
	switch k {
	case TokenReset:
		return "reset"
	case TokenVerify:
		return "verify"
	default:
		return "unknown"
	}
}

// TokenEffect is applied in the same write that consumes a secret token.
type TokenEffect struct {
	// PasswordHash, when set, replaces the stored hash.
	PasswordHash string
	// MarkEmailVerified sets EmailVerified.
	MarkEmailVerified bool
	// ClearSecurityState clears the refresh slot, attempts and lock.
	ClearSecurityState bool
}

// LockoutPolicy parameterizes RecordFailedLogin.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// LockoutState is the post-increment view returned by RecordFailedLogin.
type LockoutState struct {
	Attempts  int
	LockUntil *time.Time
}

// ProfileUpdate holds self-service profile fields; nil means unchanged.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Username  *string
}

// Placement is a role plus tenant coordinates.
type Placement struct {
	Role     permission.Role
	ClinicID string
	BranchID string
}

// UserStore persists users. Counter, refresh-slot, and secret-token mutations
// must be atomic per call. Lookups return ErrUserNotFound when absent;
// CreateUser returns ErrDuplicateEmail or ErrDuplicateUsername.
type UserStore interface {
	CreateUser(ctx context.Context, u *UserRecord) error
	GetUserByID(ctx context.Context, id string) (*UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (*UserRecord, error)
	GetUserByUsername(ctx context.Context, username string) (*UserRecord, error)

	UpdateProfile(ctx context.Context, id string, p ProfileUpdate, now time.Time) (*UserRecord, error)
	UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error
	// UpdatePlacement also detaches the custom role when the clinic changes
	// or the new role is superadmin.
	UpdatePlacement(ctx context.Context, id string, p Placement, now time.Time) (*UserRecord, error)
	// UpdateStatus clears the refresh slot in the same write for any status
	// other than active.
	UpdateStatus(ctx context.Context, id string, status UserStatus, now time.Time) (*UserRecord, error)
	SetCustomRole(ctx context.Context, id, roleID string, now time.Time) (*UserRecord, error)

	// RecordFailedLogin increments the counter and returns the new state. It
	// restarts at 1 when a previous lock has expired, sets LockUntil when
	// the new count reaches the threshold and no lock is active, and never
	// extends an active lock.
	RecordFailedLogin(ctx context.Context, id string, now time.Time, policy LockoutPolicy) (LockoutState, error)
	// ResetLoginAttempts clears counter and lock; lastLogin is stamped when non-nil.
	ResetLoginAttempts(ctx context.Context, id string, lastLogin *time.Time) error

	SetRefreshTokenHash(ctx context.Context, id, hash string) error
	// SwapRefreshTokenHash replaces expected with next and reports false when
	// the stored value differs from expected.
	SwapRefreshTokenHash(ctx context.Context, id, expected, next string) (bool, error)

	SetSecretToken(ctx context.Context, id string, kind SecretTokenKind, hash string, expires time.Time) error
	// ConsumeSecretToken finds the user whose kind slot equals hash with an
	// expiry after now, clears the slot, applies effect, and returns the
	// updated user. No match returns ErrTokenInvalidOrExpired.
	ConsumeSecretToken(ctx context.Context, kind SecretTokenKind, hash string, now time.Time, effect TokenEffect) (*UserRecord, error)

	CountUsersWithCustomRole(ctx context.Context, roleID string) (int, error)
}

// RoleStore persists system and custom roles. Lookups return
// ErrRoleNotFound when absent; CreateRole returns ErrRoleNameTaken.
type RoleStore interface {
	CountSystemRoles(ctx context.Context) (int, error)
	CreateRole(ctx context.Context, r *RoleRecord) error
	GetRole(ctx context.Context, id string) (*RoleRecord, error)
	// FindRoleByName searches system roles and the roles of clinicID.
	FindRoleByName(ctx context.Context, clinicID, name string) (*RoleRecord, error)
	// ListRoles returns system roles followed by the roles of clinicID.
	ListRoles(ctx context.Context, clinicID string) ([]RoleRecord, error)
	UpdateRole(ctx context.Context, r *RoleRecord) error
	// DeleteRole refuses with ErrRoleInUse while any user references id.
	// The check and the delete are one atomic step.
	DeleteRole(ctx context.Context, id string) error
}

// Notifier delivers raw secret tokens out of band. Implementations must not
// log the token.
type Notifier interface {
	SendPasswordReset(ctx context.Context, user *UserRecord, rawToken string) error
	SendEmailVerification(ctx context.Context, user *UserRecord, rawToken string) error
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
