package permission

import "strings"

// Role is the single built-in role a user holds.
type Role string

const (
	SuperAdmin Role = "superadmin"
	Owner      Role = "owner"
	Admin      Role = "admin"
	Manager    Role = "manager"
	Staff      Role = "staff"
)

var roleLevels = map[Role]int{
	SuperAdmin: 5,
	Owner:      4,
	Admin:      3,
	Manager:    2,
	Staff:      1,
}

var roleDisplayNames = map[Role]string{
	SuperAdmin: "Super Admin",
	Owner:      "Owner",
	Admin:      "Admin",
	Manager:    "Manager",
	Staff:      "Staff",
}

// SystemRoles lists the built-in roles from highest to lowest level.
func SystemRoles() []Role {
	return []Role{SuperAdmin, Owner, Admin, Manager, Staff}
}

// ParseRole accepts the canonical slug and the upper-case forms used in API
// payloads ("SUPER_ADMIN", "super_admin", "superadmin" are all SuperAdmin).
func ParseRole(raw string) (Role, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	r := Role(s)
	if !r.Valid() {
		return "", false
	}
	return r, true
}

// Valid reports whether r is one of the five built-in roles.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the hierarchy level, 0 for unknown roles.
func (r Role) Level() int {
	return roleLevels[r]
}

// DisplayName returns the human-readable label of a system role.
func (r Role) DisplayName() string {
	if name, ok := roleDisplayNames[r]; ok {
		return name
	}
	return string(r)
}

// AdminTier reports SUPER_ADMIN, OWNER and ADMIN.
func (r Role) AdminTier() bool {
	return r == SuperAdmin || r == Owner || r == Admin
}

// RequiresClinic reports whether a user with this role must carry a clinic id.
func (r Role) RequiresClinic() bool {
	return r.Valid() && r != SuperAdmin
}

// RequiresBranch reports whether a user with this role must carry a branch id.
func (r Role) RequiresBranch() bool {
	return r == Manager || r == Staff
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}
