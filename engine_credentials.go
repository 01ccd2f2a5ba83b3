package clinicauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/clinicauth/authz"
	"github.com/MrEthical07/clinicauth/password"
	"github.com/MrEthical07/clinicauth/permission"
	"go.uber.org/zap"
)

// LoginInput is the payload of Login. EmailOrUsername is treated as an email
// when it contains '@'.
type LoginInput struct {
	EmailOrUsername string
	Password        string
	RememberMe      bool
}

// AuthResult is returned by Login and Register.
type AuthResult struct {
	User   *UserRecord
	Tokens *TokenPair
}

// Login authenticates a user and issues a token pair. The lock is checked
// before the password, so a locked account never reveals whether the
// password was right. Unknown identifiers and wrong passwords are both
// ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	ident := strings.TrimSpace(in.EmailOrUsername)
	var fields []FieldError
	if ident == "" {
		fields = append(fields, field("emailOrUsername", "is required"))
	}
	if in.Password == "" {
		fields = append(fields, field("password", "is required"))
	}
	if len(fields) > 0 {
		return nil, validationError(fields...)
	}

	kind := "username"
	if strings.Contains(ident, "@") {
		kind = "email"
	}
	meta := func() map[string]string {
		return map[string]string{"identifier_kind": kind}
	}

	user, err := e.lookupIdentifier(ctx, ident)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(auditMeta{ctx: ctx, event: auditEventLoginFailure, err: ErrInvalidCredentials, metadata: meta})
			return nil, ErrInvalidCredentials
		}
		return nil, e.storeErr("lookup_user", err)
	}

	now := e.now()
	if user.IsLocked(now) {
		e.metricInc(MetricLoginLocked)
		locked := lockedError(*user.LockUntil)
		e.emitAudit(auditMeta{ctx: ctx, event: auditEventLoginFailure, userID: user.ID, clinicID: user.ClinicID, err: locked, metadata: meta})
		return nil, locked
	}

	ok, err := e.verifyPassword(ctx, user, in.Password, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(auditMeta{ctx: ctx, event: auditEventLoginFailure, userID: user.ID, clinicID: user.ClinicID, err: ErrInvalidCredentials, metadata: meta})
		if user.IsLocked(now) {
			e.metricInc(MetricAccountLocked)
			e.emitAudit(auditMeta{ctx: ctx, event: auditEventAccountLocked, success: true, userID: user.ID, clinicID: user.ClinicID})
		}
		return nil, ErrInvalidCredentials
	}

	if user.Status != StatusActive {
		e.metricInc(MetricLoginInactive)
		e.emitAudit(auditMeta{ctx: ctx, event: auditEventLoginFailure, userID: user.ID, clinicID: user.ClinicID, err: ErrAccountInactive, metadata: meta})
		return nil, ErrAccountInactive
	}
	if e.config.Account.RequireVerifiedEmail && !user.EmailVerified {
		e.metricInc(MetricLoginInactive)
		e.emitAudit(auditMeta{ctx: ctx, event: auditEventLoginFailure, userID: user.ID, clinicID: user.ClinicID, err: ErrEmailNotVerified, metadata: meta})
		return nil, ErrEmailNotVerified
	}

	if err := e.resetAttempts(ctx, user, now); err != nil {
		return nil, err
	}
	e.upgradeHash(ctx, user, in.Password, now)

	pair, err := e.issueTokenPair(ctx, user, in.RememberMe)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(auditMeta{ctx: ctx, event: auditEventLoginSuccess, success: true, userID: user.ID, clinicID: user.ClinicID, metadata: meta})

	return &AuthResult{User: user, Tokens: pair}, nil
}

func (e *Engine) lookupIdentifier(ctx context.Context, ident string) (*UserRecord, error) {
	if strings.Contains(ident, "@") {
		return e.users.GetUserByEmail(ctx, normalizeEmail(ident))
	}
	return e.users.GetUserByUsername(ctx, ident)
}

// verifyPassword compares candidate against the stored hash. A mismatch is
// recorded at the store in one atomic step and the returned counters are
// reflected on user.
func (e *Engine) verifyPassword(ctx context.Context, user *UserRecord, candidate string, now time.Time) (bool, error) {
	ok, err := e.hasher.Verify(candidate, user.PasswordHash)
	if err != nil {
		if errors.Is(err, password.ErrMalformedHash) {
			e.log.Warn("stored password hash unreadable", zap.String("user_id", user.ID), zap.Error(err))
		}
		ok = false
	}
	if ok {
		return true, nil
	}

	state, err := e.users.RecordFailedLogin(ctx, user.ID, now, LockoutPolicy{
		Threshold: e.config.Lockout.Threshold,
		Duration:  e.config.Lockout.Duration,
	})
	if err != nil {
		return false, e.storeErr("record_failed_login", err)
	}
	user.LoginAttempts = state.Attempts
	user.LockUntil = cloneTime(state.LockUntil)

	return false, nil
}

// resetAttempts clears counter and lock after a verified login and stamps
// LastLogin.
func (e *Engine) resetAttempts(ctx context.Context, user *UserRecord, now time.Time) error {
	last := now.UTC()
	if err := e.users.ResetLoginAttempts(ctx, user.ID, &last); err != nil {
		return e.storeErr("reset_login_attempts", err)
	}
	user.LoginAttempts = 0
	user.LockUntil = nil
	user.LastLogin = &last
	return nil
}

// upgradeHash rehashes with the current cost when the stored hash is weaker.
// Failures are logged and ignored.
func (e *Engine) upgradeHash(ctx context.Context, user *UserRecord, plain string, now time.Time) {
	needs, err := e.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(plain)
	if err != nil {
		e.log.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, hash, now); err != nil {
		e.log.Warn("password rehash not stored", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	user.PasswordHash = hash
}

// UnlockAccount clears the lockout state of userID. The actor needs
// unlock:users and must be allowed to manage the target.
func (e *Engine) UnlockAccount(ctx context.Context, actor *Principal, userID string) (*UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	target, err := e.manageableUser(ctx, actor, userID, permission.UnlockUsers)
	if err != nil {
		return nil, err
	}

	if err := e.users.ResetLoginAttempts(ctx, target.ID, nil); err != nil {
		return nil, e.storeErr("reset_login_attempts", err)
	}
	target.LoginAttempts = 0
	target.LockUntil = nil

	e.metricInc(MetricUserUnlocked)
	e.emitAudit(auditMeta{ctx: ctx, event: auditEventUserUnlocked, success: true, userID: target.ID, actorID: actor.User.ID, clinicID: target.ClinicID})

	return target, nil
}

// manageableUser loads userID and checks that actor holds perm and may
// mutate the target.
func (e *Engine) manageableUser(ctx context.Context, actor *Principal, userID string, perm permission.Permission) (*UserRecord, error) {
	if actor == nil || actor.User == nil {
		return nil, ErrForbidden
	}
	if !actor.Can(perm) {
		e.RecordForbidden(ctx, actor, "permission:"+string(perm))
		return nil, ErrForbidden
	}

	target, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, e.storeErr("get_user", err)
	}

	if !authz.CanManageUser(actor.Subject(), subjectOf(target), true) {
		e.RecordForbidden(ctx, actor, "manage_user")
		return nil, ErrForbidden
	}
	return target, nil
}

func subjectOf(u *UserRecord) authz.Subject {
	return authz.Subject{
		ID:       u.ID,
		Role:     u.Role,
		ClinicID: u.ClinicID,
		BranchID: u.BranchID,
	}
}
