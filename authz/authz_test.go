package authz

import (
	"testing"

	"github.com/MrEthical07/clinicauth/permission"
)

func TestHasClinicAccess(t *testing.T) {
	tests := []struct {
		name   string
		role   permission.Role
		user   string
		target string
		want   bool
	}{
		{"superadmin anything", permission.SuperAdmin, "", "c2", true},
		{"superadmin mismatch", permission.SuperAdmin, "c1", "c2", true},
		{"owner same", permission.Owner, "c1", "c1", true},
		{"owner other", permission.Owner, "c1", "c2", false},
		{"staff same", permission.Staff, "c1", "c1", true},
		{"empty user clinic", permission.Admin, "", "", false},
		{"empty target clinic", permission.Admin, "c1", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasClinicAccess(tc.role, tc.user, tc.target); got != tc.want {
				t.Fatalf("HasClinicAccess = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHasBranchAccess(t *testing.T) {
	tests := []struct {
		name                       string
		role                       permission.Role
		userB, targetB, userC, tgC string
		want                       bool
	}{
		{"superadmin", permission.SuperAdmin, "", "b9", "", "c9", true},
		{"owner ignores branch", permission.Owner, "", "b2", "c1", "c1", true},
		{"admin other clinic", permission.Admin, "b1", "b1", "c1", "c2", false},
		{"manager same branch", permission.Manager, "b1", "b1", "c1", "c1", true},
		{"manager other branch", permission.Manager, "b1", "b2", "c1", "c1", false},
		{"staff other branch", permission.Staff, "b1", "b2", "c1", "c1", false},
		{"staff empty branch", permission.Staff, "", "", "c1", "c1", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasBranchAccess(tc.role, tc.userB, tc.targetB, tc.userC, tc.tgC); got != tc.want {
				t.Fatalf("HasBranchAccess = %v, want %v", got, tc.want)
			}
		})
	}
}

func subject(id string, role permission.Role, clinic, branch string) Subject {
	return Subject{ID: id, Role: role, ClinicID: clinic, BranchID: branch}
}

func TestCanManageUserDecisionTable(t *testing.T) {
	super := subject("s", permission.SuperAdmin, "", "")
	owner := subject("o", permission.Owner, "c1", "")
	admin := subject("a", permission.Admin, "c1", "")
	manager := subject("m", permission.Manager, "c1", "b1")
	staff := subject("st", permission.Staff, "c1", "b1")

	tests := []struct {
		name     string
		actor    Subject
		target   Subject
		mutating bool
		want     bool
	}{
		{"self mutating", owner, owner, true, false},
		{"self read", owner, owner, false, true},
		{"superadmin self mutating", super, super, true, false},
		{"superadmin anyone", super, subject("x", permission.Owner, "c9", ""), true, true},
		{"owner cannot touch superadmin", owner, subject("s2", permission.SuperAdmin, "", ""), true, false},
		{"owner same clinic admin", owner, admin, true, true},
		{"owner same clinic owner", owner, subject("o2", permission.Owner, "c1", ""), true, true},
		{"owner other clinic", owner, subject("x", permission.Staff, "c2", "b1"), true, false},
		{"admin cannot manage owner", admin, owner, true, false},
		{"admin cannot manage admin", admin, subject("a2", permission.Admin, "c1", ""), true, false},
		{"admin manages manager", admin, manager, true, true},
		{"admin manages staff other branch", admin, subject("x", permission.Staff, "c1", "b7"), true, true},
		{"admin other clinic", admin, subject("x", permission.Staff, "c2", "b1"), true, false},
		{"manager manages staff same branch", manager, staff, true, true},
		{"manager staff other branch", manager, subject("x", permission.Staff, "c1", "b2"), true, false},
		{"manager cannot manage manager", manager, subject("m2", permission.Manager, "c1", "b1"), true, false},
		{"staff manages nobody", staff, subject("x", permission.Staff, "c1", "b1"), true, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanManageUser(tc.actor, tc.target, tc.mutating); got != tc.want {
				t.Fatalf("CanManageUser = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanAssignRole(t *testing.T) {
	admin := subject("a", permission.Admin, "c1", "")
	if CanAssignRole(admin, permission.Owner, "c1", "") {
		t.Fatal("admin must not create owners")
	}
	if !CanAssignRole(admin, permission.Staff, "c1", "b1") {
		t.Fatal("admin should create staff in own clinic")
	}
	manager := subject("m", permission.Manager, "c1", "b1")
	if CanAssignRole(manager, permission.Staff, "c1", "b2") {
		t.Fatal("manager must stay within own branch")
	}
}

func TestHasPermissionResolution(t *testing.T) {
	super := Subject{Role: permission.SuperAdmin}
	if !HasPermission(super, permission.DeleteClinics) {
		t.Fatal("superadmin holds everything")
	}

	staff := Subject{Role: permission.Staff}
	if HasPermission(staff, permission.DeleteUsers) {
		t.Fatal("staff default must not include delete:users")
	}
	if !HasPermission(staff, permission.ReadPatients) {
		t.Fatal("staff default should include read:patients")
	}

	staff.Grants = permission.NewSet(permission.ExportReports)
	if !HasPermission(staff, permission.ExportReports) {
		t.Fatal("explicit grant must apply")
	}

	eff := EffectivePermissions(staff)
	if !eff.Has(permission.ExportReports) || !eff.Has(permission.ReadPatients) {
		t.Fatal("effective set must union defaults and grants")
	}
}

func TestHasRoleAndAdminTier(t *testing.T) {
	if HasRole(permission.Owner) {
		t.Fatal("empty allow list admits nobody")
	}
	if !HasRole(permission.Owner, permission.Admin, permission.Owner) {
		t.Fatal("expected owner to be allowed")
	}
	for _, r := range []permission.Role{permission.SuperAdmin, permission.Owner, permission.Admin} {
		if !IsAdminTier(r) {
			t.Fatalf("%s should be admin tier", r)
		}
	}
	if IsAdminTier(permission.Manager) {
		t.Fatal("manager is not admin tier")
	}
}
