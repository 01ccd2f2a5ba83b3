package clinicauth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/permission"
)

func registerInput(username string) clinicauth.RegisterInput {
	return clinicauth.RegisterInput{
		Email:           username + "@clinic.test",
		Username:        username,
		Password:        testPassword,
		ConfirmPassword: testPassword,
		FirstName:       "Reg",
		LastName:        "User",
		ClinicID:        "c1",
		BranchID:        "b1",
	}
}

func staffInput(username, branch string) clinicauth.CreateUserInput {
	return clinicauth.CreateUserInput{
		Email:     username + "@clinic.test",
		Username:  username,
		Password:  testPassword,
		FirstName: "New",
		LastName:  "Staff",
		Role:      "STAFF",
		BranchID:  branch,
	}
}

func TestRegisterIssuesTokensAndDefaultsRole(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.engine.Register(context.Background(), registerInput("dana"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.User.Role != permission.Staff || res.User.Status != clinicauth.StatusActive {
		t.Fatalf("unexpected user: role=%s status=%s", res.User.Role, res.User.Status)
	}
	if res.Tokens == nil || res.Tokens.AccessToken == "" || res.VerificationToken == "" {
		t.Fatal("expected tokens and a verification token")
	}
	if res.User.PasswordHash == testPassword {
		t.Fatal("password must be hashed")
	}
	if _, err := env.engine.Authenticate(context.Background(), res.Tokens.AccessToken); err != nil {
		t.Fatalf("authenticate registered user: %v", err)
	}
}

func TestRegisterDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Register(ctx, registerInput("dana")); err != nil {
		t.Fatal(err)
	}

	dupEmail := registerInput("other")
	dupEmail.Email = "DANA@clinic.test"
	_, err := env.engine.Register(ctx, dupEmail)
	if !errors.Is(err, clinicauth.ErrDuplicateEmail) || clinicauth.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 ErrDuplicateEmail, got %v", err)
	}

	dupName := registerInput("dana")
	dupName.Email = "fresh@clinic.test"
	if _, err := env.engine.Register(ctx, dupName); !errors.Is(err, clinicauth.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestRegisterRejectsPrivilegedRoles(t *testing.T) {
	env := newTestEnv(t)

	for _, role := range []string{"SUPER_ADMIN", "owner", "nope"} {
		in := registerInput("dana")
		in.Role = role
		_, err := env.engine.Register(context.Background(), in)
		if !errors.Is(err, clinicauth.ErrValidation) {
			t.Fatalf("role %s: expected ErrValidation, got %v", role, err)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bad := registerInput("x")
	bad.Email = "not-an-email"
	bad.Password = "short"
	bad.BranchID = ""
	_, err := env.engine.Register(ctx, bad)
	var appErr *clinicauth.Error
	if !errors.As(err, &appErr) || !errors.Is(err, clinicauth.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got := map[string]bool{}
	for _, f := range appErr.Fields {
		got[f.Field] = true
	}
	for _, name := range []string{"email", "username", "password", "branchId"} {
		if !got[name] {
			t.Fatalf("missing field error %q in %v", name, appErr.Fields)
		}
	}

	mismatch := registerInput("dana")
	mismatch.ConfirmPassword = "Different-Pass-9"
	if _, err := env.engine.Register(ctx, mismatch); !errors.Is(err, clinicauth.ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice", permission.Staff, "c1", "b1")
	ctx := context.Background()
	p := env.principal(t, "alice")

	err := env.engine.ChangePassword(ctx, p, "Wrong-Password-1", newPassword, newPassword)
	if !errors.Is(err, clinicauth.ErrCurrentPassword) || clinicauth.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 ErrCurrentPassword, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, p, testPassword, testPassword, testPassword); !errors.Is(err, clinicauth.ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, p, testPassword, newPassword, "Other-Pass-3"); !errors.Is(err, clinicauth.ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}

	if err := env.engine.ChangePassword(ctx, p, testPassword, newPassword, newPassword); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := loginWith(env, "alice", newPassword); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice", permission.Staff, "c1", "b1")
	env.addUser(t, "bob", permission.Staff, "c1", "b1")
	ctx := context.Background()
	p := env.principal(t, "alice")

	taken := "bob"
	if _, err := env.engine.UpdateProfile(ctx, p, clinicauth.ProfileUpdate{Username: &taken}); !errors.Is(err, clinicauth.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}

	first, phone := "  Alicia ", "+1 555-0100"
	u, err := env.engine.UpdateProfile(ctx, p, clinicauth.ProfileUpdate{FirstName: &first, Phone: &phone})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if u.FirstName != "Alicia" || u.Phone != phone || u.LastName != "User" {
		t.Fatalf("unexpected profile: %+v", u)
	}
}

func TestAdminCannotManageOwner(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "admin", permission.Admin, "c1", "")
	owner := env.addUser(t, "owner", permission.Owner, "c1", "")
	ctx := context.Background()
	actor := env.principal(t, "admin")

	_, err := env.engine.ChangeUserStatus(ctx, actor, owner.ID, clinicauth.StatusSuspended)
	if !errors.Is(err, clinicauth.ErrForbidden) || clinicauth.StatusOf(err) != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	if _, err := env.engine.GetUser(ctx, actor, owner.ID); !errors.Is(err, clinicauth.ErrForbidden) {
		t.Fatalf("admin must not read an owner, got %v", err)
	}

	in := staffInput("newowner", "")
	in.Role = "OWNER"
	if _, err := env.engine.CreateUser(ctx, actor, in); !errors.Is(err, clinicauth.ErrForbidden) {
		t.Fatalf("admin must not create an owner, got %v", err)
	}
}

func TestManagerBranchScope(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "mgr", permission.Manager, "c1", "b1")
	ctx := context.Background()
	actor := env.principal(t, "mgr")

	if _, err := env.engine.CreateUser(ctx, actor, staffInput("far", "b2")); !errors.Is(err, clinicauth.ErrForbidden) {
		t.Fatalf("manager creating staff in another branch: expected ErrForbidden, got %v", err)
	}

	u, err := env.engine.CreateUser(ctx, actor, staffInput("near", "b1"))
	if err != nil {
		t.Fatalf("create staff in own branch: %v", err)
	}
	if u.ClinicID != "c1" || u.CreatedBy != "id-mgr" {
		t.Fatalf("expected clinic defaulted and creator stamped, got %+v", u)
	}

	in := staffInput("peer", "b1")
	in.Role = "MANAGER"
	if _, err := env.engine.CreateUser(ctx, actor, in); !errors.Is(err, clinicauth.ErrForbidden) {
		t.Fatalf("manager creating a manager: expected ErrForbidden, got %v", err)
	}
}

func TestCreateUserExplicitPermissions(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "admin", permission.Admin, "c1", "")
	env.addUser(t, "owner", permission.Owner, "c1", "")
	ctx := context.Background()

	in := staffInput("extra", "b1")
	in.Permissions = []string{"read:reports"}
	if _, err := env.engine.CreateUser(ctx, env.principal(t, "admin"), in); !errors.Is(err, clinicauth.ErrForbidden) {
		t.Fatalf("explicit grants need manage:permissions, got %v", err)
	}

	in.Permissions = []string{"read:reports", "fly:rockets"}
	if _, err := env.engine.CreateUser(ctx, env.principal(t, "owner"), in); !errors.Is(err, clinicauth.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown permission, got %v", err)
	}

	in.Permissions = []string{"read:reports"}
	if _, err := env.engine.CreateUser(ctx, env.principal(t, "owner"), in); err != nil {
		t.Fatalf("owner create: %v", err)
	}
	if !env.principal(t, "extra").Can(permission.ReadReports) {
		t.Fatal("explicit grant must be effective")
	}
}

func TestGetUserOwnership(t *testing.T) {
	env := newTestEnv(t)
	alice := env.addUser(t, "alice", permission.Staff, "c1", "b1")
	bob := env.addUser(t, "bob", permission.Staff, "c1", "b1")
	env.addUser(t, "mgr", permission.Manager, "c1", "b1")
	ctx := context.Background()

	if _, err := env.engine.GetUser(ctx, env.principal(t, "alice"), alice.ID); err != nil {
		t.Fatalf("self read: %v", err)
	}
	if _, err := env.engine.GetUser(ctx, env.principal(t, "alice"), bob.ID); !errors.Is(err, clinicauth.ErrForbidden) {
		t.Fatalf("staff reading a peer: expected ErrForbidden, got %v", err)
	}
	if _, err := env.engine.GetUser(ctx, env.principal(t, "mgr"), bob.ID); err != nil {
		t.Fatalf("manager reading own staff: %v", err)
	}
	if _, err := env.engine.GetUser(ctx, env.principal(t, "mgr"), "missing"); !errors.Is(err, clinicauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestChangeUserRoleAndStatus(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "owner", permission.Owner, "c1", "")
	staff := env.addUser(t, "alice", permission.Staff, "c1", "b1")
	ctx := context.Background()
	actor := env.principal(t, "owner")
	pair := env.login(t, "alice", false).Tokens

	u, err := env.engine.ChangeUserRole(ctx, actor, staff.ID, "MANAGER", "", "")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if u.Role != permission.Manager || u.ClinicID != "c1" || u.BranchID != "b1" {
		t.Fatalf("unexpected placement: %+v", u)
	}

	if _, err := env.engine.ChangeUserRole(ctx, actor, staff.ID, "SUPER_ADMIN", "", ""); !errors.Is(err, clinicauth.ErrForbidden) {
		t.Fatalf("owner must not grant superadmin, got %v", err)
	}
	if _, err := env.engine.ChangeUserRole(ctx, actor, actor.User.ID, "ADMIN", "", ""); !errors.Is(err, clinicauth.ErrForbidden) {
		t.Fatalf("self role change must be forbidden, got %v", err)
	}

	if _, err := env.engine.ChangeUserStatus(ctx, actor, staff.ID, clinicauth.StatusInactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, clinicauth.ErrInvalidRefreshToken) {
		t.Fatalf("deactivation must revoke refresh, got %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, pair.AccessToken); !errors.Is(err, clinicauth.ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestSuperAdminPlacementIsCleared(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "root", permission.SuperAdmin, "", "")

	in := staffInput("boss", "b9")
	in.Role = "super_admin"
	in.ClinicID = "c9"
	u, err := env.engine.CreateUser(context.Background(), env.principal(t, "root"), in)
	if err != nil {
		t.Fatalf("create superadmin: %v", err)
	}
	if u.ClinicID != "" || u.BranchID != "" {
		t.Fatalf("superadmin must carry no placement, got %q/%q", u.ClinicID, u.BranchID)
	}
}
