package permission

import "strings"

// Permission is one atomic capability of the form "<action>:<resource>".
type Permission string

const (
	CreateUsers Permission = "create:users"
	ReadUsers   Permission = "read:users"
	UpdateUsers Permission = "update:users"
	DeleteUsers Permission = "delete:users"

	CreateRoles Permission = "create:roles"
	ReadRoles   Permission = "read:roles"
	UpdateRoles Permission = "update:roles"
	DeleteRoles Permission = "delete:roles"

	CreateClinics Permission = "create:clinics"
	ReadClinics   Permission = "read:clinics"
	UpdateClinics Permission = "update:clinics"
	DeleteClinics Permission = "delete:clinics"

	CreateBranches Permission = "create:branches"
	ReadBranches   Permission = "read:branches"
	UpdateBranches Permission = "update:branches"
	DeleteBranches Permission = "delete:branches"

	CreateRooms Permission = "create:rooms"
	ReadRooms   Permission = "read:rooms"
	UpdateRooms Permission = "update:rooms"
	DeleteRooms Permission = "delete:rooms"

	CreateDoctors Permission = "create:doctors"
	ReadDoctors   Permission = "read:doctors"
	UpdateDoctors Permission = "update:doctors"
	DeleteDoctors Permission = "delete:doctors"

	CreatePatients Permission = "create:patients"
	ReadPatients   Permission = "read:patients"
	UpdatePatients Permission = "update:patients"
	DeletePatients Permission = "delete:patients"

	CreateOPD Permission = "create:opd"
	ReadOPD   Permission = "read:opd"
	UpdateOPD Permission = "update:opd"
	DeleteOPD Permission = "delete:opd"

	CreatePayments Permission = "create:payments"
	ReadPayments   Permission = "read:payments"
	UpdatePayments Permission = "update:payments"
	DeletePayments Permission = "delete:payments"

	ReadReports       Permission = "read:reports"
	ExportReports     Permission = "export:reports"
	ReadSettings      Permission = "read:settings"
	UpdateSettings    Permission = "update:settings"
	ReadAudit         Permission = "read:audit"
	ManagePermissions Permission = "manage:permissions"
	AssignRoles       Permission = "assign:roles"
	UnlockUsers       Permission = "unlock:users"
)

// vocabulary order is the bit assignment order; append only.
var vocabulary = []Permission{
	CreateUsers, ReadUsers, UpdateUsers, DeleteUsers,
	CreateRoles, ReadRoles, UpdateRoles, DeleteRoles,
	CreateClinics, ReadClinics, UpdateClinics, DeleteClinics,
	CreateBranches, ReadBranches, UpdateBranches, DeleteBranches,
	CreateRooms, ReadRooms, UpdateRooms, DeleteRooms,
	CreateDoctors, ReadDoctors, UpdateDoctors, DeleteDoctors,
	CreatePatients, ReadPatients, UpdatePatients, DeletePatients,
	CreateOPD, ReadOPD, UpdateOPD, DeleteOPD,
	CreatePayments, ReadPayments, UpdatePayments, DeletePayments,
	ReadReports, ExportReports,
	ReadSettings, UpdateSettings,
	ReadAudit,
	ManagePermissions,
	AssignRoles,
	UnlockUsers,
}

// All returns the full vocabulary in its canonical order.
func All() []Permission {
	out := make([]Permission, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// Valid reports whether p belongs to the vocabulary.
func (p Permission) Valid() bool {
	_, ok := defaultRegistry.Bit(string(p))
	return ok
}

// Resource returns the part after the colon.
func (p Permission) Resource() string {
	_, res, _ := strings.Cut(string(p), ":")
	return res
}

// Action returns the part before the colon.
func (p Permission) Action() string {
	act, _, _ := strings.Cut(string(p), ":")
	return act
}

// Parse normalizes raw input and looks it up in the vocabulary.
func Parse(raw string) (Permission, bool) {
	p := Permission(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", false
	}
	return p, true
}

// ParseList splits raw values into vocabulary members and rejects. Duplicates
// are collapsed; the order of first occurrence is kept.
func ParseList(raw []string) (valid []Permission, invalid []string) {
	seen := make(map[Permission]struct{}, len(raw))
	for _, r := range raw {
		p, ok := Parse(r)
		if !ok {
			invalid = append(invalid, r)
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		valid = append(valid, p)
	}
	return valid, invalid
}
