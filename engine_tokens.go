package clinicauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/clinicauth/internal"
	"github.com/MrEthical07/clinicauth/jwt"
	"go.uber.org/zap"
)

// issueTokenPair mints an access token and a refresh token and stores the
// refresh digest, replacing whatever was there.
func (e *Engine) issueTokenPair(ctx context.Context, user *UserRecord, rememberMe bool) (*TokenPair, error) {
	access, refresh, ttl, err := e.mintPair(user, rememberMe)
	if err != nil {
		return nil, err
	}

	hash := internal.HashToken(refresh)
	if err := e.users.SetRefreshTokenHash(ctx, user.ID, hash); err != nil {
		return nil, e.storeErr("set_refresh_hash", err)
	}
	user.RefreshTokenHash = hash

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(ttl.Seconds()),
	}, nil
}

func (e *Engine) mintPair(user *UserRecord, rememberMe bool) (string, string, time.Duration, error) {
	access, err := e.jwtManager.CreateAccess(jwt.AccessInput{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		Role:     string(user.Role),
		ClinicID: user.ClinicID,
		BranchID: user.BranchID,
	})
	if err != nil {
		e.log.Error("sign access token", zap.Error(err))
		return "", "", 0, internalError(err)
	}

	ttl := e.config.JWT.RefreshTTL
	if rememberMe {
		ttl = e.config.JWT.RememberMeRefreshTTL
	}
	refresh, _, err := e.jwtManager.CreateRefresh(user.ID, ttl)
	if err != nil {
		e.log.Error("sign refresh token", zap.Error(err))
		return "", "", 0, internalError(err)
	}

	return access, refresh, ttl, nil
}

// Refresh rotates a refresh token. The presented token must verify, belong
// to an active user, and match the stored digest. The stored digest is
// swapped with compare-and-swap so a token can be redeemed once even under
// concurrent use. Every failure is ErrInvalidRefreshToken and changes
// nothing.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrInvalidRefreshToken
	}

	fail := func(userID, reason string) (*TokenPair, error) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(auditMeta{
			ctx:    ctx,
			event:  auditEventRefreshInvalid,
			userID: userID,
			err:    ErrInvalidRefreshToken,
			metadata: func() map[string]string {
				return map[string]string{"reason": reason}
			},
		})
		return nil, ErrInvalidRefreshToken
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		return fail("", "parse")
	}

	user, err := e.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fail(claims.UserID, "unknown_user")
		}
		return nil, e.storeErr("get_user", err)
	}
	if user.Status != StatusActive {
		return fail(user.ID, "inactive")
	}

	presented := internal.HashToken(refreshToken)
	if !internal.EqualHash(presented, user.RefreshTokenHash) {
		return fail(user.ID, "hash_mismatch")
	}

	rememberMe := claims.Window() >= e.config.JWT.RememberMeRefreshTTL
	access, refresh, ttl, err := e.mintPair(user, rememberMe)
	if err != nil {
		return nil, err
	}

	next := internal.HashToken(refresh)
	swapped, err := e.users.SwapRefreshTokenHash(ctx, user.ID, presented, next)
	if err != nil {
		return nil, e.storeErr("swap_refresh_hash", err)
	}
	if !swapped {
		return fail(user.ID, "lost_race")
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(auditMeta{ctx: ctx, event: auditEventRefreshSuccess, success: true, userID: user.ID, clinicID: user.ClinicID})

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(ttl.Seconds()),
	}, nil
}

// Logout clears the stored refresh digest. Outstanding access tokens stay
// valid until they expire.
func (e *Engine) Logout(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID == "" {
		return ErrInvalidToken
	}

	if err := e.users.SetRefreshTokenHash(ctx, userID, ""); err != nil {
		return e.storeErr("clear_refresh_hash", err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(auditMeta{ctx: ctx, event: auditEventLogout, success: true, userID: userID})
	return nil
}
