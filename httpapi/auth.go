package httpapi

import (
	"context"
	"net/http"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/internal/httpx"
	"go.uber.org/zap"
)

// Anti-enumeration replies: the same text whether or not the address exists.
const (
	msgResetSent  = "if the email is registered, a reset link has been sent"
	msgVerifySent = "if the email is registered and unverified, a verification link has been sent"
)

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}

	res, err := a.engine.Register(r.Context(), clinicauth.RegisterInput{
		Email:           req.Email,
		Username:        req.Username,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Phone:           req.Phone,
		Role:            req.Role,
		ClinicID:        req.ClinicID,
		BranchID:        req.BranchID,
	})
	if err != nil {
		a.fail(w, err)
		return
	}

	a.notify(r.Context(), "verify", res.User, res.VerificationToken, a.notifierVerify)

	view := authView{User: toUserView(res.User), Tokens: toTokenView(res.Tokens)}
	if a.expose {
		view.VerificationToken = res.VerificationToken
	}
	httpx.WriteData(w, http.StatusCreated, "registration successful", view)
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}

	res, err := a.engine.Login(r.Context(), clinicauth.LoginInput{
		EmailOrUsername: req.EmailOrUsername,
		Password:        req.Password,
		RememberMe:      req.RememberMe,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "login successful", authView{User: toUserView(res.User), Tokens: toTokenView(res.Tokens)})
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}

	pair, err := a.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "token refreshed", toTokenView(pair))
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	if err := a.engine.Logout(r.Context(), p.User.ID); err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "logged out", nil)
}

func (a *api) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}

	raw, user, err := a.engine.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.notify(r.Context(), "reset", user, raw, a.notifierReset)

	var data any
	if a.expose && raw != "" {
		data = map[string]string{"resetToken": raw}
	}
	httpx.WriteData(w, http.StatusOK, msgResetSent, data)
}

func (a *api) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}
	if err := a.engine.ResetPassword(r.Context(), req.Token, req.Password, req.ConfirmPassword); err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "password has been reset", nil)
}

func (a *api) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}

	user, err := a.engine.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "email verified", toUserView(user))
}

func (a *api) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}

	raw, user, err := a.engine.ResendVerification(r.Context(), req.Email)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.notify(r.Context(), "verify", user, raw, a.notifierVerify)

	var data any
	if a.expose && raw != "" {
		data = map[string]string{"verificationToken": raw}
	}
	httpx.WriteData(w, http.StatusOK, msgVerifySent, data)
}

func (a *api) profile(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	user, err := a.engine.Profile(r.Context(), p.User.ID)
	if err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "", toProfileView(user, p.Grants))
}

func (a *api) updateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}

	user, err := a.engine.UpdateProfile(r.Context(), p, clinicauth.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Username:  req.Username,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "profile updated", toUserView(user))
}

func (a *api) changePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}
	if err := a.engine.ChangePassword(r.Context(), p, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "password changed", nil)
}

/*
====================================
NOTIFICATION
====================================
*/

type sendFunc func(ctx context.Context, user *clinicauth.UserRecord, raw string) error

func (a *api) notifierReset(ctx context.Context, user *clinicauth.UserRecord, raw string) error {
	return a.notifier.SendPasswordReset(ctx, user, raw)
}

func (a *api) notifierVerify(ctx context.Context, user *clinicauth.UserRecord, raw string) error {
	return a.notifier.SendEmailVerification(ctx, user, raw)
}

// notify hands a fresh token to the notifier. The response never depends on
// the outcome.
func (a *api) notify(ctx context.Context, kind string, user *clinicauth.UserRecord, raw string, send sendFunc) {
	if a.notifier == nil || user == nil || raw == "" {
		return
	}
	if err := send(ctx, user, raw); err != nil {
		a.log.Warn("token delivery failed",
			zap.String("kind", kind),
			zap.String("user_id", user.ID),
			zap.Error(err))
	}
}
