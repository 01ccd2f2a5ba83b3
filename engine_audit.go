package clinicauth

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventAccountLocked            = "account_locked"
	auditEventRegister                 = "register"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventLogout                   = "logout"
	auditEventPasswordChange           = "password_change"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventEmailVerificationRequest = "email_verification_request"
	auditEventEmailVerificationConfirm = "email_verification_confirm"
	auditEventProfileUpdate            = "profile_update"
	auditEventUserCreated              = "user_created"
	auditEventUserRoleChanged          = "user_role_changed"
	auditEventUserStatusChanged        = "user_status_changed"
	auditEventUserUnlocked             = "user_unlocked"
	auditEventCustomRoleAssigned       = "custom_role_assigned"
	auditEventRoleCreated              = "role_created"
	auditEventRoleUpdated              = "role_updated"
	auditEventRoleDeleted              = "role_deleted"
	auditEventSystemRolesSeeded        = "system_roles_seeded"
	auditEventAccessDenied             = "access_denied"
	auditEventRateLimitTriggered       = "rate_limit_triggered"
)

// AuditErrorCode is the coarse failure class recorded on audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrRoleInUse          AuditErrorCode = "role_in_use"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInternal           AuditErrorCode = "internal_error"
)

type auditMeta struct {
	ctx      context.Context
	event    string
	success  bool
	userID   string
	actorID  string
	clinicID string
	err      error
	metadata func() map[string]string
}

func (e *Engine) emitAudit(m auditMeta) {
	if e == nil || e.audit == nil {
		return
	}
	ctx := m.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var metadata map[string]string
	if m.metadata != nil {
		metadata = m.metadata()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: m.event,
		UserID:    m.userID,
		ActorID:   m.actorID,
		ClinicID:  m.clinicID,
		IP:        ClientIPFromContext(ctx),
		RequestID: RequestIDFromContext(ctx),
		Success:   m.success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(m.err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInternal):
		return auditErrInternal
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrCurrentPassword):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrEmailNotVerified):
		return auditErrAccountInactive
	case errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrInvalidRefreshToken),
		errors.Is(err, ErrTokenInvalidOrExpired):
		return auditErrInvalidToken
	case errors.Is(err, ErrForbidden),
		errors.Is(err, ErrSystemRoleImmutable):
		return auditErrForbidden
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrPasswordMismatch),
		errors.Is(err, ErrPasswordReuse):
		return auditErrValidation
	case errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, ErrDuplicateUsername),
		errors.Is(err, ErrRoleNameTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrRoleNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrRoleInUse):
		return auditErrRoleInUse
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	default:
		return auditErrInternal
	}
}
