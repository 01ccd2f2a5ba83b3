// Package authz holds the pure tenant-scope, delegation, and permission
// resolution rules. Nothing here performs I/O.
package authz

import "github.com/MrEthical07/clinicauth/permission"

// Subject is the authorization view of a user.
type Subject struct {
	ID       string
	Role     permission.Role
	ClinicID string
	BranchID string
	// Grants holds explicit permissions, custom-role permissions included.
	Grants permission.Set
}

// HasClinicAccess reports whether a user placed in userClinic may reach a
// resource of targetClinic.
func HasClinicAccess(role permission.Role, userClinic, targetClinic string) bool {
	if role == permission.SuperAdmin {
		return true
	}
	return userClinic != "" && targetClinic != "" && userClinic == targetClinic
}

// HasBranchAccess reports whether a user may reach a resource of targetBranch.
// OWNER and ADMIN reduce to the clinic check; MANAGER and STAFF need the exact
// branch.
func HasBranchAccess(role permission.Role, userBranch, targetBranch, userClinic, targetClinic string) bool {
	switch role {
	case permission.SuperAdmin:
		return true
	case permission.Owner, permission.Admin:
		return HasClinicAccess(role, userClinic, targetClinic)
	case permission.Manager, permission.Staff:
		return userBranch != "" && targetBranch != "" && userBranch == targetBranch
	default:
		return false
	}
}

// CanManageUser is the delegation table. Rows are evaluated top-down and the
// first match decides. mutating is false for read-only access.
func CanManageUser(actor, target Subject, mutating bool) bool {
	sameClinic := actor.ClinicID != "" && actor.ClinicID == target.ClinicID
	sameBranch := actor.BranchID != "" && actor.BranchID == target.BranchID

	switch {
	case mutating && actor.ID != "" && actor.ID == target.ID:
		return false
	case actor.Role == permission.SuperAdmin:
		return true
	case target.Role == permission.SuperAdmin:
		return false
	case actor.Role == permission.Owner:
		return sameClinic
	case actor.Role == permission.Admin:
		return sameClinic && (target.Role == permission.Manager || target.Role == permission.Staff)
	case actor.Role == permission.Manager:
		return sameClinic && sameBranch && target.Role == permission.Staff
	default:
		return false
	}
}

// CanAssignRole reports whether actor may place a user into role. It applies
// the delegation table to a hypothetical target holding that role.
func CanAssignRole(actor Subject, role permission.Role, clinicID, branchID string) bool {
	return CanManageUser(actor, Subject{Role: role, ClinicID: clinicID, BranchID: branchID}, true)
}

// HasPermission resolves p for s: SUPER_ADMIN, then explicit grants, then the
// role defaults.
func HasPermission(s Subject, p permission.Permission) bool {
	if s.Role == permission.SuperAdmin {
		return true
	}
	if s.Grants.Has(p) {
		return true
	}
	return permission.DefaultPermissions(s.Role).Has(p)
}

// EffectivePermissions returns the union of role defaults and grants.
func EffectivePermissions(s Subject) permission.Set {
	return permission.DefaultPermissions(s.Role).Union(s.Grants)
}

// IsAdminTier reports SUPER_ADMIN, OWNER and ADMIN.
func IsAdminTier(role permission.Role) bool {
	return role.AdminTier()
}

// HasRole reports whether role is in allowed. An empty allowed list admits
// nobody.
func HasRole(role permission.Role, allowed ...permission.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
