package permission

var staffPermissions = []Permission{
	ReadBranches,
	ReadRooms,
	ReadDoctors,
	CreatePatients, ReadPatients, UpdatePatients,
	CreateOPD, ReadOPD, UpdateOPD,
	CreatePayments, ReadPayments,
}

var managerPermissions = append(clonePerms(staffPermissions),
	CreateUsers, ReadUsers, UpdateUsers,
	ReadRoles,
	ReadClinics,
	CreateRooms, UpdateRooms, DeleteRooms,
	CreateDoctors, UpdateDoctors,
	DeletePatients,
	DeleteOPD,
	UpdatePayments,
	ReadReports,
	UnlockUsers,
)

var adminPermissions = append(clonePerms(managerPermissions),
	DeleteUsers,
	CreateRoles, UpdateRoles, DeleteRoles,
	CreateBranches, UpdateBranches,
	DeleteDoctors,
	DeletePayments,
	ExportReports,
	ReadSettings,
	ReadAudit,
	AssignRoles,
)

var ownerPermissions = append(clonePerms(adminPermissions),
	UpdateClinics,
	DeleteBranches,
	UpdateSettings,
	ManagePermissions,
)

var defaultRoles = mustDefaultRoles()

func clonePerms(in []Permission) []Permission {
	out := make([]Permission, len(in))
	copy(out, in)
	return out
}

func mustDefaultRoles() *RoleManager {
	rm := NewRoleManager(defaultRegistry)
	if err := rm.RegisterRoot(SuperAdmin); err != nil {
		panic("permission: " + err.Error())
	}
	table := []struct {
		role  Role
		perms []Permission
	}{
		{Owner, ownerPermissions},
		{Admin, adminPermissions},
		{Manager, managerPermissions},
		{Staff, staffPermissions},
	}
	for _, row := range table {
		if err := rm.RegisterRole(row.role, row.perms); err != nil {
			panic("permission: " + err.Error())
		}
	}
	rm.Freeze()
	return rm
}

// DefaultPermissions returns the fixed permission set of a system role.
// SUPER_ADMIN maps to the root set; unknown roles map to the empty set.
func DefaultPermissions(role Role) Set {
	set, _ := defaultRoles.Get(role)
	return set
}
