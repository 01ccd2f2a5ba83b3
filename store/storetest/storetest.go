// Package storetest is a conformance suite for clinicauth.UserStore and
// clinicauth.RoleStore implementations. Backends call Run from their own
// tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/permission"
)

// Store is what a backend must provide.
type Store interface {
	clinicauth.UserStore
	clinicauth.RoleStore
}

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) Store

var policy = clinicauth.LockoutPolicy{Threshold: 5, Duration: 2 * time.Hour}

// base is microsecond-aligned so timestamps survive a database round trip.
var base = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

// Run executes every conformance case against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"CreateUserDuplicates", testCreateUserDuplicates},
		{"ReturnedRecordsAreCopies", testReturnedRecordsAreCopies},
		{"RecordFailedLoginLockSemantics", testRecordFailedLoginLockSemantics},
		{"RecordFailedLoginConcurrentIncrements", testRecordFailedLoginConcurrent},
		{"SwapRefreshTokenHash", testSwapRefreshTokenHash},
		{"ConsumeSecretToken", testConsumeSecretToken},
		{"ConsumeSecretTokenExpired", testConsumeSecretTokenExpired},
		{"UpdateProfileUsername", testUpdateProfileUsername},
		{"PermissionsRoundTrip", testPermissionsRoundTrip},
		{"RoleNameScope", testRoleNameScope},
		{"UpdateRoleKeepsIdentity", testUpdateRoleKeepsIdentity},
		{"CountUsersWithCustomRole", testCountUsersWithCustomRole},
		{"UpdatePlacementDetachesCustomRole", testUpdatePlacementDetachesCustomRole},
		{"UpdateStatusClearsRefresh", testUpdateStatusClearsRefresh},
		{"DeleteRoleInUse", testDeleteRoleInUse},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func seedUser(t *testing.T, s Store, id, email, username string) {
	t.Helper()
	err := s.CreateUser(context.Background(), &clinicauth.UserRecord{
		ID:        id,
		Email:     email,
		Username:  username,
		FirstName: "Test",
		LastName:  "User",
		Role:      permission.Staff,
		Status:    clinicauth.StatusActive,
		ClinicID:  "c1",
		BranchID:  "b1",
		CreatedAt: base,
		UpdatedAt: base,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
}

func testCreateUserDuplicates(t *testing.T, s Store) {
	ctx := context.Background()
	seedUser(t, s, "u1", "a@x.io", "alice")

	err := s.CreateUser(ctx, &clinicauth.UserRecord{ID: "u2", Email: "a@x.io", Username: "other", Role: permission.Staff, Status: clinicauth.StatusActive})
	if !errors.Is(err, clinicauth.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	err = s.CreateUser(ctx, &clinicauth.UserRecord{ID: "u2", Email: "b@x.io", Username: "alice", Role: permission.Staff, Status: clinicauth.StatusActive})
	if !errors.Is(err, clinicauth.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	if _, err := s.GetUserByID(ctx, "missing"); !errors.Is(err, clinicauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func testReturnedRecordsAreCopies(t *testing.T, s Store) {
	ctx := context.Background()
	seedUser(t, s, "u1", "a@x.io", "alice")

	u, _ := s.GetUserByID(ctx, "u1")
	u.Role = permission.Owner

	again, _ := s.GetUserByID(ctx, "u1")
	if again.Role != permission.Staff {
		t.Fatal("mutating a returned record must not change the store")
	}
}

func testRecordFailedLoginLockSemantics(t *testing.T, s Store) {
	ctx := context.Background()
	seedUser(t, s, "u1", "a@x.io", "alice")

	var state clinicauth.LockoutState
	for i := 1; i <= 5; i++ {
		var err error
		state, err = s.RecordFailedLogin(ctx, "u1", base, policy)
		if err != nil {
			t.Fatalf("RecordFailedLogin: %v", err)
		}
		if state.Attempts != i {
			t.Fatalf("attempt %d: counter = %d", i, state.Attempts)
		}
		if i < 5 && state.LockUntil != nil {
			t.Fatalf("attempt %d: unexpected lock", i)
		}
	}
	lockedUntil := base.Add(2 * time.Hour)
	if state.LockUntil == nil || !state.LockUntil.Equal(lockedUntil) {
		t.Fatalf("expected lock until %v, got %v", lockedUntil, state.LockUntil)
	}

	// a failure while locked counts but never extends the lock
	state, _ = s.RecordFailedLogin(ctx, "u1", base.Add(time.Hour), policy)
	if state.Attempts != 6 {
		t.Fatalf("expected counter 6, got %d", state.Attempts)
	}
	if state.LockUntil == nil || !state.LockUntil.Equal(lockedUntil) {
		t.Fatalf("lock must not be extended, got %v", state.LockUntil)
	}

	state, _ = s.RecordFailedLogin(ctx, "u1", base.Add(3*time.Hour), policy)
	if state.Attempts != 1 || state.LockUntil != nil {
		t.Fatalf("expected fresh counter after expiry, got %+v", state)
	}

	login := base.Add(4 * time.Hour)
	if err := s.ResetLoginAttempts(ctx, "u1", &login); err != nil {
		t.Fatalf("ResetLoginAttempts: %v", err)
	}
	u, _ := s.GetUserByID(ctx, "u1")
	if u.LoginAttempts != 0 || u.LockUntil != nil || u.LastLogin == nil || !u.LastLogin.Equal(login) {
		t.Fatalf("unexpected state after reset: %+v", u)
	}

	if _, err := s.RecordFailedLogin(ctx, "missing", base, policy); !errors.Is(err, clinicauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func testRecordFailedLoginConcurrent(t *testing.T, s Store) {
	seedUser(t, s, "u1", "a@x.io", "alice")
	wide := clinicauth.LockoutPolicy{Threshold: 1000, Duration: time.Hour}

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = s.RecordFailedLogin(context.Background(), "u1", base, wide)
		}()
	}
	wg.Wait()

	u, _ := s.GetUserByID(context.Background(), "u1")
	if u.LoginAttempts != n {
		t.Fatalf("expected %d attempts, got %d", n, u.LoginAttempts)
	}
}

func testSwapRefreshTokenHash(t *testing.T, s Store) {
	ctx := context.Background()
	seedUser(t, s, "u1", "a@x.io", "alice")

	if ok, _ := s.SwapRefreshTokenHash(ctx, "u1", "", "h1"); ok {
		t.Fatal("empty expected must never match")
	}
	if err := s.SetRefreshTokenHash(ctx, "u1", "h1"); err != nil {
		t.Fatalf("SetRefreshTokenHash: %v", err)
	}
	if ok, _ := s.SwapRefreshTokenHash(ctx, "u1", "h0", "h2"); ok {
		t.Fatal("stale expected must not swap")
	}
	if ok, err := s.SwapRefreshTokenHash(ctx, "u1", "h1", "h2"); !ok || err != nil {
		t.Fatalf("matching expected must swap: %v", err)
	}
	if ok, _ := s.SwapRefreshTokenHash(ctx, "u1", "h1", "h3"); ok {
		t.Fatal("second swap with the same expected must fail")
	}
	u, _ := s.GetUserByID(ctx, "u1")
	if u.RefreshTokenHash != "h2" {
		t.Fatalf("expected h2, got %q", u.RefreshTokenHash)
	}
}

func testConsumeSecretToken(t *testing.T, s Store) {
	ctx := context.Background()
	seedUser(t, s, "u1", "a@x.io", "alice")

	_ = s.SetRefreshTokenHash(ctx, "u1", "refresh")
	_, _ = s.RecordFailedLogin(ctx, "u1", base, policy)
	if err := s.SetSecretToken(ctx, "u1", clinicauth.TokenReset, "rh", base.Add(10*time.Minute)); err != nil {
		t.Fatalf("SetSecretToken: %v", err)
	}

	if _, err := s.ConsumeSecretToken(ctx, clinicauth.TokenVerify, "rh", base, clinicauth.TokenEffect{}); !errors.Is(err, clinicauth.ErrTokenInvalidOrExpired) {
		t.Fatalf("wrong kind must not match, got %v", err)
	}

	u, err := s.ConsumeSecretToken(ctx, clinicauth.TokenReset, "rh", base, clinicauth.TokenEffect{
		PasswordHash:       "new-hash",
		ClearSecurityState: true,
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if u.PasswordHash != "new-hash" || u.RefreshTokenHash != "" || u.ResetTokenHash != "" || u.ResetTokenExpires != nil {
		t.Fatalf("effect not applied: %+v", u)
	}
	if u.LoginAttempts != 0 || u.EmailVerified {
		t.Fatalf("unexpected side effects: %+v", u)
	}

	if _, err := s.ConsumeSecretToken(ctx, clinicauth.TokenReset, "rh", base, clinicauth.TokenEffect{}); !errors.Is(err, clinicauth.ErrTokenInvalidOrExpired) {
		t.Fatalf("second consume must fail, got %v", err)
	}
	if _, err := s.ConsumeSecretToken(ctx, clinicauth.TokenReset, "", base, clinicauth.TokenEffect{}); !errors.Is(err, clinicauth.ErrTokenInvalidOrExpired) {
		t.Fatalf("empty hash must fail, got %v", err)
	}
}

func testConsumeSecretTokenExpired(t *testing.T, s Store) {
	ctx := context.Background()
	seedUser(t, s, "u1", "a@x.io", "alice")

	_ = s.SetSecretToken(ctx, "u1", clinicauth.TokenVerify, "vh", base.Add(time.Minute))
	_, err := s.ConsumeSecretToken(ctx, clinicauth.TokenVerify, "vh", base.Add(2*time.Minute), clinicauth.TokenEffect{MarkEmailVerified: true})
	if !errors.Is(err, clinicauth.ErrTokenInvalidOrExpired) {
		t.Fatalf("expected expiry, got %v", err)
	}
	u, _ := s.GetUserByID(ctx, "u1")
	if u.EmailVerified {
		t.Fatal("expired token must not apply its effect")
	}

	_ = s.SetSecretToken(ctx, "u1", clinicauth.TokenVerify, "vh2", base.Add(time.Minute))
	u, err = s.ConsumeSecretToken(ctx, clinicauth.TokenVerify, "vh2", base, clinicauth.TokenEffect{MarkEmailVerified: true})
	if err != nil || !u.EmailVerified {
		t.Fatalf("expected verified user, got %v", err)
	}
}

func testUpdateProfileUsername(t *testing.T, s Store) {
	ctx := context.Background()
	seedUser(t, s, "u1", "a@x.io", "alice")
	seedUser(t, s, "u2", "b@x.io", "bob")

	taken := "bob"
	if _, err := s.UpdateProfile(ctx, "u1", clinicauth.ProfileUpdate{Username: &taken}, base); !errors.Is(err, clinicauth.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}

	next, phone := "alicia", "+1 555 0100"
	u, err := s.UpdateProfile(ctx, "u1", clinicauth.ProfileUpdate{Username: &next, Phone: &phone}, base)
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.Username != next || u.Phone != phone || u.FirstName != "Test" {
		t.Fatalf("unexpected profile: %+v", u)
	}
	if _, err := s.GetUserByUsername(ctx, "alice"); !errors.Is(err, clinicauth.ErrUserNotFound) {
		t.Fatal("old username must be released")
	}
	if u, err := s.GetUserByUsername(ctx, "alicia"); err != nil || u.ID != "u1" {
		t.Fatalf("new username lookup failed: %v", err)
	}
}

func testPermissionsRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	err := s.CreateUser(ctx, &clinicauth.UserRecord{
		ID: "u1", Email: "a@x.io", Username: "alice", Role: permission.Manager, Status: clinicauth.StatusPending,
		ClinicID: "c1", BranchID: "b1", Permissions: []permission.Permission{permission.ReadReports, permission.ExportReports},
		CreatedAt: base, UpdatedAt: base,
	})
	if err != nil {
		t.Fatal(err)
	}

	u, err := s.GetUserByEmail(ctx, "a@x.io")
	if err != nil {
		t.Fatal(err)
	}
	if len(u.Permissions) != 2 || u.Permissions[1] != permission.ExportReports {
		t.Fatalf("permissions not preserved: %v", u.Permissions)
	}
	if u.Status != clinicauth.StatusPending || u.Role != permission.Manager {
		t.Fatalf("enum columns not preserved: %+v", u)
	}

	u, err = s.UpdatePlacement(ctx, "u1", clinicauth.Placement{Role: permission.SuperAdmin}, base)
	if err != nil || u.ClinicID != "" || u.BranchID != "" || u.Role != permission.SuperAdmin {
		t.Fatalf("placement not applied: %+v %v", u, err)
	}
	u, err = s.UpdateStatus(ctx, "u1", clinicauth.StatusSuspended, base)
	if err != nil || u.Status != clinicauth.StatusSuspended {
		t.Fatalf("status not applied: %v", err)
	}
}

func testRoleNameScope(t *testing.T, s Store) {
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	role := func(id, name, clinic string, system bool) *clinicauth.RoleRecord {
		return &clinicauth.RoleRecord{ID: id, Name: name, DisplayName: name, ClinicID: clinic, IsSystem: system, CreatedAt: base, UpdatedAt: base}
	}

	must(s.CreateRole(ctx, role("sys1", "owner", "", true)))
	must(s.CreateRole(ctx, role("sys2", "staff", "", true)))
	must(s.CreateRole(ctx, role("r1", "nurse", "c1", false)))
	must(s.CreateRole(ctx, role("r0", "analyst", "c1", false)))
	must(s.CreateRole(ctx, role("r2", "nurse", "c2", false)))

	if n, _ := s.CountSystemRoles(ctx); n != 2 {
		t.Fatalf("expected 2 system roles, got %d", n)
	}
	if err := s.CreateRole(ctx, role("r3", "staff", "c1", false)); !errors.Is(err, clinicauth.ErrRoleNameTaken) {
		t.Fatalf("system name must be reserved, got %v", err)
	}
	if err := s.CreateRole(ctx, role("r4", "nurse", "c1", false)); !errors.Is(err, clinicauth.ErrRoleNameTaken) {
		t.Fatalf("clinic name must be unique, got %v", err)
	}

	if r, err := s.FindRoleByName(ctx, "c2", "nurse"); err != nil || r.ID != "r2" {
		t.Fatalf("FindRoleByName: %v", err)
	}
	if _, err := s.FindRoleByName(ctx, "c3", "nurse"); !errors.Is(err, clinicauth.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}

	roles, _ := s.ListRoles(ctx, "c1")
	want := []string{"sys1", "sys2", "r0", "r1"}
	if len(roles) != len(want) {
		t.Fatalf("unexpected listing: %+v", roles)
	}
	for i, id := range want {
		if roles[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, roles[i].ID)
		}
	}
	if roles, _ := s.ListRoles(ctx, ""); len(roles) != 2 {
		t.Fatalf("empty clinic lists system roles only, got %d", len(roles))
	}

	must(s.DeleteRole(ctx, "r1"))
	if _, err := s.GetRole(ctx, "r1"); !errors.Is(err, clinicauth.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
	if err := s.DeleteRole(ctx, "r1"); !errors.Is(err, clinicauth.ErrRoleNotFound) {
		t.Fatalf("second delete: expected ErrRoleNotFound, got %v", err)
	}
}

func testUpdateRoleKeepsIdentity(t *testing.T, s Store) {
	ctx := context.Background()
	orig := &clinicauth.RoleRecord{ID: "r1", Name: "nurse", DisplayName: "Nurse", ClinicID: "c1", CreatedBy: "u1", CreatedAt: base, UpdatedAt: base}
	if err := s.CreateRole(ctx, orig); err != nil {
		t.Fatal(err)
	}

	later := base.Add(time.Hour)
	err := s.UpdateRole(ctx, &clinicauth.RoleRecord{
		ID: "r1", Name: "renamed", DisplayName: "Head Nurse", ClinicID: "c9", IsSystem: true,
		Permissions: []permission.Permission{permission.ReadReports}, UpdatedAt: later,
	})
	if err != nil {
		t.Fatal(err)
	}

	r, _ := s.GetRole(ctx, "r1")
	if r.Name != "nurse" || r.ClinicID != "c1" || r.IsSystem || r.CreatedBy != "u1" || !r.CreatedAt.Equal(base) {
		t.Fatalf("identity columns changed: %+v", r)
	}
	if r.DisplayName != "Head Nurse" || len(r.Permissions) != 1 || !r.UpdatedAt.Equal(later) {
		t.Fatalf("editable columns not applied: %+v", r)
	}
	if err := s.UpdateRole(ctx, &clinicauth.RoleRecord{ID: "missing"}); !errors.Is(err, clinicauth.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func testCountUsersWithCustomRole(t *testing.T, s Store) {
	ctx := context.Background()
	seedUser(t, s, "u1", "a@x.io", "alice")
	seedUser(t, s, "u2", "b@x.io", "bob")
	seedUser(t, s, "u3", "c@x.io", "carol")

	for _, id := range []string{"u1", "u2"} {
		u, err := s.SetCustomRole(ctx, id, "r1", base)
		if err != nil || u.CustomRoleID != "r1" {
			t.Fatalf("SetCustomRole: %v", err)
		}
	}
	if n, _ := s.CountUsersWithCustomRole(ctx, "r1"); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	_, _ = s.SetCustomRole(ctx, "u1", "", base)
	if n, _ := s.CountUsersWithCustomRole(ctx, "r1"); n != 1 {
		t.Fatalf("expected 1 after detach, got %d", n)
	}
}

func testUpdatePlacementDetachesCustomRole(t *testing.T, s Store) {
	ctx := context.Background()
	for _, id := range []string{"u1", "u2", "u3"} {
		seedUser(t, s, id, id+"@x.io", id)
		if _, err := s.SetCustomRole(ctx, id, "r1", base); err != nil {
			t.Fatalf("SetCustomRole: %v", err)
		}
	}

	u, err := s.UpdatePlacement(ctx, "u1", clinicauth.Placement{Role: permission.Manager, ClinicID: "c1", BranchID: "b2"}, base)
	if err != nil || u.CustomRoleID != "r1" {
		t.Fatalf("same clinic must keep the custom role: %+v %v", u, err)
	}
	u, err = s.UpdatePlacement(ctx, "u2", clinicauth.Placement{Role: permission.Owner, ClinicID: "c2"}, base)
	if err != nil || u.CustomRoleID != "" {
		t.Fatalf("clinic move must detach the custom role: %+v %v", u, err)
	}
	u, err = s.UpdatePlacement(ctx, "u3", clinicauth.Placement{Role: permission.SuperAdmin}, base)
	if err != nil || u.CustomRoleID != "" {
		t.Fatalf("superadmin must not carry a custom role: %+v %v", u, err)
	}
	if n, _ := s.CountUsersWithCustomRole(ctx, "r1"); n != 1 {
		t.Fatalf("expected 1 remaining reference, got %d", n)
	}
}

func testUpdateStatusClearsRefresh(t *testing.T, s Store) {
	ctx := context.Background()
	seedUser(t, s, "u1", "a@x.io", "alice")
	if err := s.SetRefreshTokenHash(ctx, "u1", "h1"); err != nil {
		t.Fatal(err)
	}

	u, err := s.UpdateStatus(ctx, "u1", clinicauth.StatusActive, base)
	if err != nil || u.RefreshTokenHash != "h1" {
		t.Fatalf("active must keep the refresh slot: %+v %v", u, err)
	}
	u, err = s.UpdateStatus(ctx, "u1", clinicauth.StatusSuspended, base)
	if err != nil || u.RefreshTokenHash != "" || u.Status != clinicauth.StatusSuspended {
		t.Fatalf("suspension must clear the refresh slot: %+v %v", u, err)
	}
	if u, _ := s.GetUserByID(ctx, "u1"); u.RefreshTokenHash != "" {
		t.Fatal("cleared refresh slot not persisted")
	}
}

func testDeleteRoleInUse(t *testing.T, s Store) {
	ctx := context.Background()
	seedUser(t, s, "u1", "a@x.io", "alice")
	r := &clinicauth.RoleRecord{ID: "r1", Name: "nurse", DisplayName: "Nurse", ClinicID: "c1", CreatedAt: base, UpdatedAt: base}
	if err := s.CreateRole(ctx, r); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetCustomRole(ctx, "u1", "r1", base); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteRole(ctx, "r1"); !errors.Is(err, clinicauth.ErrRoleInUse) {
		t.Fatalf("expected ErrRoleInUse, got %v", err)
	}
	if _, err := s.GetRole(ctx, "r1"); err != nil {
		t.Fatalf("referenced role must survive: %v", err)
	}

	_, _ = s.SetCustomRole(ctx, "u1", "", base)
	if err := s.DeleteRole(ctx, "r1"); err != nil {
		t.Fatalf("unreferenced delete: %v", err)
	}
	if err := s.DeleteRole(ctx, "r1"); !errors.Is(err, clinicauth.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}
