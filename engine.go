package clinicauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/clinicauth/jwt"
	"github.com/MrEthical07/clinicauth/password"
	"github.com/MrEthical07/clinicauth/permission"
	"go.uber.org/zap"
)

// Engine runs every authentication and authorization flow. Build one with
// [New] and share it across goroutines.
type Engine struct {
	config     Config
	users      UserStore
	roles      RoleStore
	log        *zap.Logger
	hasher     password.Hasher
	jwtManager *jwt.Manager
	now        func() time.Time
	audit      *auditDispatcher
	metrics    *Metrics
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// PasswordPolicy returns the active strength policy.
func (e *Engine) PasswordPolicy() password.Policy {
	return e.config.Password.Policy
}

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger {
	if e == nil || e.log == nil {
		return zap.NewNop()
	}
	return e.log
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.users == nil || e.roles == nil || e.jwtManager == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	return nil
}

// storeErr passes domain sentinels through and turns anything else into an
// internal error after logging it.
func (e *Engine) storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if StatusOf(err) != http.StatusInternalServerError || errors.Is(err, ErrInternal) {
		return err
	}
	e.log.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return internalError(err)
}

/*
====================================
AUTHENTICATE
====================================
*/

// Authenticate validates an access token and loads the current user. Deleted
// users and bad tokens are ErrInvalidToken; non-active users are
// ErrAccountInactive; locked users carry ErrAccountLocked.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}
	}()

	if accessToken == "" {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrInvalidToken
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrInvalidToken
	}

	user, err := e.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, e.storeErr("get_user", err)
	}

	if user.Status != StatusActive {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrAccountInactive
	}
	if now := e.now(); user.IsLocked(now) {
		e.metricInc(MetricAuthenticateFailure)
		return nil, lockedError(*user.LockUntil)
	}

	grants, err := e.grantsFor(ctx, user)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, err
	}

	e.metricInc(MetricAuthenticateSuccess)
	return &Principal{
		User:   user,
		Claims: claims,
		Grants: grants,
	}, nil
}

// grantsFor unions explicit permissions with those of the user's custom
// role. A dangling or foreign custom role contributes nothing.
func (e *Engine) grantsFor(ctx context.Context, user *UserRecord) (permission.Set, error) {
	grants := permission.NewSet(user.Permissions...)
	if user.CustomRoleID == "" {
		return grants, nil
	}

	role, err := e.roles.GetRole(ctx, user.CustomRoleID)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			e.log.Warn("custom role missing", zap.String("user_id", user.ID), zap.String("role_id", user.CustomRoleID))
			return grants, nil
		}
		return permission.Set{}, e.storeErr("get_role", err)
	}
	if role.IsSystem || role.ClinicID != user.ClinicID {
		return grants, nil
	}

	return grants.Union(permission.NewSet(role.Permissions...)), nil
}

/*
====================================
MIDDLEWARE OUTCOMES
====================================
*/

// RecordForbidden counts and audits an authorization denial. rule names
// the failed check and is never sent to the client.
func (e *Engine) RecordForbidden(ctx context.Context, p *Principal, rule string) {
	if e == nil {
		return
	}
	e.metricInc(MetricForbidden)

	var userID, clinicID string
	if p != nil && p.User != nil {
		userID, clinicID = p.User.ID, p.User.ClinicID
	}
	e.emitAudit(auditMeta{
		ctx:      ctx,
		event:    auditEventAccessDenied,
		userID:   userID,
		clinicID: clinicID,
		err:      ErrForbidden,
		metadata: func() map[string]string {
			return map[string]string{"rule": rule}
		},
	})
}

// RecordRateLimited counts and audits a per-user rate-limit rejection.
func (e *Engine) RecordRateLimited(ctx context.Context, key string) {
	if e == nil {
		return
	}
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(auditMeta{
		ctx:    ctx,
		event:  auditEventRateLimitTriggered,
		userID: key,
		err:    ErrRateLimited,
	})
}
