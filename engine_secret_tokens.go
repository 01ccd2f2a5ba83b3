package clinicauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/clinicauth/internal"
)

// issueSecretToken creates a single-use token of kind for user and stores
// its digest. The raw token is returned and never persisted.
func (e *Engine) issueSecretToken(ctx context.Context, user *UserRecord, kind SecretTokenKind) (string, error) {
	raw, err := internal.NewSecretToken()
	if err != nil {
		return "", internalError(err)
	}

	expires := e.now().Add(e.secretTokenTTL(kind)).UTC()

	if err := e.users.SetSecretToken(ctx, user.ID, kind, internal.HashToken(raw), expires); err != nil {
		return "", e.storeErr("set_secret_token", err)
	}
	return raw, nil
}

// consumeSecretToken redeems raw and applies effect in the same store write.
// Wrong, used and expired tokens are indistinguishable.
func (e *Engine) consumeSecretToken(ctx context.Context, kind SecretTokenKind, raw string, effect TokenEffect) (*UserRecord, error) {
	raw = strings.TrimSpace(raw)
	if internal.ValidSecretToken(raw) != nil {
		return nil, ErrTokenInvalidOrExpired
	}

	user, err := e.users.ConsumeSecretToken(ctx, kind, internal.HashToken(raw), e.now(), effect)
	if err != nil {
		if errors.Is(err, ErrTokenInvalidOrExpired) || errors.Is(err, ErrUserNotFound) {
			return nil, ErrTokenInvalidOrExpired
		}
		return nil, e.storeErr("consume_secret_token", err)
	}
	return user, nil
}

/*
====================================
PASSWORD RESET
====================================
*/

// ForgotPassword issues a reset token for email. Unknown emails return
// ("", nil, nil) so callers can respond identically either way.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (string, *UserRecord, error) {
	if err := e.ready(); err != nil {
		return "", nil, err
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return "", nil, validationError(field("email", "must be a valid email address"))
	}

	e.metricInc(MetricPasswordResetRequest)

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(auditMeta{ctx: ctx, event: auditEventPasswordResetRequest, success: true})
			return "", nil, nil
		}
		return "", nil, e.storeErr("get_user_by_email", err)
	}

	raw, err := e.issueSecretToken(ctx, user, TokenReset)
	if err != nil {
		return "", nil, err
	}

	e.emitAudit(auditMeta{ctx: ctx, event: auditEventPasswordResetRequest, success: true, userID: user.ID, clinicID: user.ClinicID})
	return raw, user, nil
}

// ResetPassword redeems a reset token and sets a new password. The same
// write clears the refresh slot and lockout state.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	fields := checkNewPassword(e.config.Password.Policy, "password", newPassword)
	if len(fields) > 0 {
		return validationError(fields...)
	}
	if newPassword != confirmPassword {
		return &Error{Kind: ErrPasswordMismatch, Fields: []FieldError{field("confirmPassword", "passwords do not match")}}
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return internalError(err)
	}

	user, err := e.consumeSecretToken(ctx, TokenReset, token, TokenEffect{
		PasswordHash:       hash,
		ClearSecurityState: true,
	})
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(auditMeta{ctx: ctx, event: auditEventPasswordResetConfirm, err: err})
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(auditMeta{ctx: ctx, event: auditEventPasswordResetConfirm, success: true, userID: user.ID, clinicID: user.ClinicID})
	return nil
}

/*
====================================
EMAIL VERIFICATION
====================================
*/

// RequestEmailVerification issues a verification token for user.
func (e *Engine) RequestEmailVerification(ctx context.Context, user *UserRecord) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}

	raw, err := e.issueSecretToken(ctx, user, TokenVerify)
	if err != nil {
		return "", err
	}

	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(auditMeta{ctx: ctx, event: auditEventEmailVerificationRequest, success: true, userID: user.ID, clinicID: user.ClinicID})
	return raw, nil
}

// VerifyEmail redeems a verification token and marks the address verified.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (*UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	user, err := e.consumeSecretToken(ctx, TokenVerify, token, TokenEffect{MarkEmailVerified: true})
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(auditMeta{ctx: ctx, event: auditEventEmailVerificationConfirm, err: err})
		return nil, err
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(auditMeta{ctx: ctx, event: auditEventEmailVerificationConfirm, success: true, userID: user.ID, clinicID: user.ClinicID})
	return user, nil
}

// ResendVerification issues a fresh verification token. Unknown and
// already-verified addresses return ("", nil, nil).
func (e *Engine) ResendVerification(ctx context.Context, email string) (string, *UserRecord, error) {
	if err := e.ready(); err != nil {
		return "", nil, err
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return "", nil, validationError(field("email", "must be a valid email address"))
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil, nil
		}
		return "", nil, e.storeErr("get_user_by_email", err)
	}
	if user.EmailVerified {
		return "", nil, nil
	}

	raw, err := e.RequestEmailVerification(ctx, user)
	if err != nil {
		return "", nil, err
	}
	return raw, user, nil
}

func (e *Engine) secretTokenTTL(kind SecretTokenKind) time.Duration {
	if kind == TokenVerify {
		return e.config.Tokens.VerifyTTL
	}
	return e.config.Tokens.ResetTTL
}
