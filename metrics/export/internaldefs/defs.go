package internaldefs

import (
	"github.com/MrEthical07/clinicauth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   clinicauth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   clinicauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for AuditDropped.
const (
	AuditDroppedName = "clinicauth_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// CounterDefs lists every counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: clinicauth.MetricLoginSuccess, Name: "clinicauth_login_success_total", Help: "Successful logins."},
	{ID: clinicauth.MetricLoginFailure, Name: "clinicauth_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: clinicauth.MetricLoginLocked, Name: "clinicauth_login_locked_total", Help: "Logins rejected because the account is locked."},
	{ID: clinicauth.MetricLoginInactive, Name: "clinicauth_login_inactive_total", Help: "Logins rejected because the account is not active."},
	{ID: clinicauth.MetricAccountLocked, Name: "clinicauth_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: clinicauth.MetricRegisterSuccess, Name: "clinicauth_register_success_total", Help: "Successful self registrations."},
	{ID: clinicauth.MetricRegisterDuplicate, Name: "clinicauth_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: clinicauth.MetricRefreshSuccess, Name: "clinicauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: clinicauth.MetricRefreshFailure, Name: "clinicauth_refresh_failure_total", Help: "Rejected refresh rotations."},
	{ID: clinicauth.MetricLogout, Name: "clinicauth_logout_total", Help: "Logouts."},
	{ID: clinicauth.MetricAuthenticateSuccess, Name: "clinicauth_authenticate_success_total", Help: "Accepted access tokens."},
	{ID: clinicauth.MetricAuthenticateFailure, Name: "clinicauth_authenticate_failure_total", Help: "Rejected access tokens."},
	{ID: clinicauth.MetricPasswordChangeSuccess, Name: "clinicauth_password_change_success_total", Help: "Successful password changes."},
	{ID: clinicauth.MetricPasswordChangeInvalidOld, Name: "clinicauth_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: clinicauth.MetricPasswordChangeReuseRejected, Name: "clinicauth_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: clinicauth.MetricPasswordResetRequest, Name: "clinicauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: clinicauth.MetricPasswordResetConfirmSuccess, Name: "clinicauth_password_reset_confirm_success_total", Help: "Redeemed reset tokens."},
	{ID: clinicauth.MetricPasswordResetConfirmFailure, Name: "clinicauth_password_reset_confirm_failure_total", Help: "Rejected reset tokens."},
	{ID: clinicauth.MetricEmailVerificationRequest, Name: "clinicauth_email_verification_request_total", Help: "Issued verification tokens."},
	{ID: clinicauth.MetricEmailVerificationSuccess, Name: "clinicauth_email_verification_success_total", Help: "Redeemed verification tokens."},
	{ID: clinicauth.MetricEmailVerificationFailure, Name: "clinicauth_email_verification_failure_total", Help: "Rejected verification tokens."},
	{ID: clinicauth.MetricUserCreated, Name: "clinicauth_user_created_total", Help: "Users created by an administrator."},
	{ID: clinicauth.MetricUserRoleChanged, Name: "clinicauth_user_role_changed_total", Help: "Role and placement changes."},
	{ID: clinicauth.MetricUserStatusChanged, Name: "clinicauth_user_status_changed_total", Help: "Status changes."},
	{ID: clinicauth.MetricUserUnlocked, Name: "clinicauth_user_unlocked_total", Help: "Manual unlocks."},
	{ID: clinicauth.MetricCustomRoleAssigned, Name: "clinicauth_custom_role_assigned_total", Help: "Custom role assignments."},
	{ID: clinicauth.MetricRoleCreated, Name: "clinicauth_role_created_total", Help: "Custom roles created."},
	{ID: clinicauth.MetricRoleUpdated, Name: "clinicauth_role_updated_total", Help: "Custom roles updated."},
	{ID: clinicauth.MetricRoleDeleted, Name: "clinicauth_role_deleted_total", Help: "Custom roles deleted."},
	{ID: clinicauth.MetricRoleInUseRejected, Name: "clinicauth_role_in_use_rejected_total", Help: "Role deletions rejected while assigned."},
	{ID: clinicauth.MetricSystemRolesSeeded, Name: "clinicauth_system_roles_seeded_total", Help: "System role seeding runs that inserted rows."},
	{ID: clinicauth.MetricForbidden, Name: "clinicauth_forbidden_total", Help: "Requests denied by authorization rules."},
	{ID: clinicauth.MetricRateLimitHit, Name: "clinicauth_rate_limit_hit_total", Help: "Requests rejected by the rate limiter."},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: clinicauth.MetricAuthenticateLatency, Name: "clinicauth_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// HistogramBounds are the upper bounds of the engine buckets, in seconds.
var HistogramBounds = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// HistogramBoundValues mirrors HistogramBounds for exporters that need
// numbers. The last bucket is open.
var HistogramBoundValues = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets copies at most 8 raw buckets into a fixed array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
