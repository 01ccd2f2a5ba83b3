package clinicauth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/permission"
)

const newPassword = "Brand-New-Pass-2"

func TestResetTokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, "alice", permission.Staff, "c1", "b1")
	ctx := context.Background()
	refresh := env.login(t, "alice", false).Tokens.RefreshToken

	raw, user, err := env.engine.ForgotPassword(ctx, "Alice@Clinic.test")
	if err != nil {
		t.Fatalf("forgot: %v", err)
	}
	if raw == "" || user == nil || user.ID != u.ID {
		t.Fatal("expected a token for a known email")
	}
	if stored := env.user(t, u.ID); stored.ResetTokenHash == raw || stored.ResetTokenHash == "" {
		t.Fatal("only the digest may be stored")
	}

	if err := env.engine.ResetPassword(ctx, raw, newPassword, newPassword); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := env.engine.ResetPassword(ctx, raw, newPassword, newPassword); !errors.Is(err, clinicauth.ErrTokenInvalidOrExpired) {
		t.Fatalf("second use: expected ErrTokenInvalidOrExpired, got %v", err)
	}

	if _, err := loginWith(env, "alice", testPassword); !errors.Is(err, clinicauth.ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := loginWith(env, "alice", newPassword); err != nil {
		t.Fatalf("new password: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, refresh); !errors.Is(err, clinicauth.ErrInvalidRefreshToken) {
		t.Fatalf("reset must revoke the refresh slot, got %v", err)
	}
}

func TestResetTokenExpiresAfterTenMinutes(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice", permission.Staff, "c1", "b1")
	ctx := context.Background()

	raw, _, err := env.engine.ForgotPassword(ctx, "alice@clinic.test")
	if err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(10*time.Minute + time.Second)

	err = env.engine.ResetPassword(ctx, raw, newPassword, newPassword)
	if !errors.Is(err, clinicauth.ErrTokenInvalidOrExpired) {
		t.Fatalf("expected ErrTokenInvalidOrExpired, got %v", err)
	}
	if clinicauth.StatusOf(err) != 400 {
		t.Fatalf("expected 400, got %d", clinicauth.StatusOf(err))
	}
}

func TestResetTokenFailuresLookAlike(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, token := range []string{"", "short", "zz" + string(make([]byte, 62))} {
		if err := env.engine.ResetPassword(ctx, token, newPassword, newPassword); !errors.Is(err, clinicauth.ErrTokenInvalidOrExpired) {
			t.Fatalf("token %q: expected ErrTokenInvalidOrExpired, got %v", token, err)
		}
	}
}

func TestResetPasswordValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.engine.ResetPassword(ctx, "x", "weak", "weak"); !errors.Is(err, clinicauth.ErrValidation) {
		t.Fatalf("expected ErrValidation for weak password, got %v", err)
	}
	if err := env.engine.ResetPassword(ctx, "x", newPassword, "Other-Pass-3"); !errors.Is(err, clinicauth.ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	raw, user, err := env.engine.ForgotPassword(context.Background(), "ghost@clinic.test")
	if err != nil || raw != "" || user != nil {
		t.Fatalf("unknown email must be silent, got %q %v %v", raw, user, err)
	}
}

func TestVerifyEmailFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.engine.Register(ctx, clinicauth.RegisterInput{
		Email: "dan@clinic.test", Username: "dan", Password: testPassword, ConfirmPassword: testPassword,
		FirstName: "Dan", LastName: "Roe", ClinicID: "c1", BranchID: "b1",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// a resend replaces the first token
	again, _, err := env.engine.ResendVerification(ctx, "dan@clinic.test")
	if err != nil || again == "" {
		t.Fatalf("resend: %q %v", again, err)
	}
	if _, err := env.engine.VerifyEmail(ctx, res.VerificationToken); !errors.Is(err, clinicauth.ErrTokenInvalidOrExpired) {
		t.Fatalf("superseded token: expected ErrTokenInvalidOrExpired, got %v", err)
	}

	u, err := env.engine.VerifyEmail(ctx, again)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !u.EmailVerified {
		t.Fatal("expected verified email")
	}

	raw, user, err := env.engine.ResendVerification(ctx, "dan@clinic.test")
	if err != nil || raw != "" || user != nil {
		t.Fatal("already-verified addresses get no new token")
	}
}

func TestVerifyTokenExpiresAfterADay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.engine.Register(ctx, clinicauth.RegisterInput{
		Email: "eve@clinic.test", Username: "eve", Password: testPassword, ConfirmPassword: testPassword,
		FirstName: "Eve", LastName: "Moe", ClinicID: "c1", BranchID: "b1",
	})
	if err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(24*time.Hour + time.Second)

	if _, err := env.engine.VerifyEmail(ctx, res.VerificationToken); !errors.Is(err, clinicauth.ErrTokenInvalidOrExpired) {
		t.Fatalf("expected ErrTokenInvalidOrExpired, got %v", err)
	}
}
