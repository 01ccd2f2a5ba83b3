package clinicauth

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/MrEthical07/clinicauth/authz"
	"github.com/MrEthical07/clinicauth/permission"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoleInput is the payload of CreateCustomRole and UpdateCustomRole. Name
// is ignored on update.
type RoleInput struct {
	Name        string
	DisplayName string
	Permissions []string
	Description string
}

/*
====================================
SYSTEM ROLES
====================================
*/

// SeedSystemRoles inserts the five system roles when none exist. It reports
// whether anything was written.
func (e *Engine) SeedSystemRoles(ctx context.Context) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}

	n, err := e.roles.CountSystemRoles(ctx)
	if err != nil {
		return false, e.storeErr("count_system_roles", err)
	}
	if n > 0 {
		return false, nil
	}

	now := e.now().UTC()
	for _, r := range permission.SystemRoles() {
		rec := &RoleRecord{
			ID:          uuid.NewString(),
			Name:        string(r),
			DisplayName: r.DisplayName(),
			Permissions: permission.DefaultPermissions(r).Permissions(),
			IsSystem:    true,
			Description: "Built-in " + r.DisplayName() + " role",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.roles.CreateRole(ctx, rec); err != nil {
			return false, e.storeErr("create_system_role", err)
		}
	}

	e.metricInc(MetricSystemRolesSeeded)
	e.emitAudit(auditMeta{ctx: ctx, event: auditEventSystemRolesSeeded, success: true})
	e.log.Info("system roles seeded", zap.Int("count", len(permission.SystemRoles())))
	return true, nil
}

/*
====================================
CUSTOM ROLES
====================================
*/

// ListRoles returns the system roles followed by the custom roles of
// clinicID. Non-super-admins are pinned to their own clinic.
func (e *Engine) ListRoles(ctx context.Context, actor *Principal, clinicID string) ([]RoleRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if actor == nil || actor.User == nil {
		return nil, ErrForbidden
	}
	if !actor.Can(permission.ReadRoles) {
		e.RecordForbidden(ctx, actor, "permission:"+string(permission.ReadRoles))
		return nil, ErrForbidden
	}

	if actor.User.Role != permission.SuperAdmin {
		if clinicID != "" && clinicID != actor.User.ClinicID {
			e.RecordForbidden(ctx, actor, "clinic_scope")
			return nil, ErrForbidden
		}
		clinicID = actor.User.ClinicID
	}

	roles, err := e.roles.ListRoles(ctx, clinicID)
	if err != nil {
		return nil, e.storeErr("list_roles", err)
	}
	return roles, nil
}

// CreateCustomRole adds a role to clinicID. Permissions must come from the
// vocabulary and the name must not collide with a system role or another
// role of the clinic.
func (e *Engine) CreateCustomRole(ctx context.Context, actor *Principal, clinicID string, in RoleInput) (*RoleRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if actor == nil || actor.User == nil {
		return nil, ErrForbidden
	}
	if clinicID == "" && actor.User.Role != permission.SuperAdmin {
		clinicID = actor.User.ClinicID
	}
	if err := e.requireRoleAdmin(ctx, actor, clinicID, permission.CreateRoles); err != nil {
		return nil, err
	}

	name := strings.ToLower(strings.TrimSpace(in.Name))
	display := strings.TrimSpace(in.DisplayName)

	var fields []FieldError
	if clinicID == "" {
		fields = append(fields, field("clinicId", "is required"))
	}
	if !validRoleName(name) {
		fields = append(fields, field("name", "must be a lower-case slug of letters, digits, '_' or '-'"))
	}
	fields = append(fields, checkName("displayName", display, true)...)
	perms, permFields := parseRolePermissions(in.Permissions)
	fields = append(fields, permFields...)
	if len(fields) > 0 {
		return nil, validationError(fields...)
	}

	if _, err := e.roles.FindRoleByName(ctx, clinicID, name); err == nil {
		return nil, &Error{Kind: ErrRoleNameTaken, Fields: []FieldError{field("name", "already exists")}}
	} else if !errors.Is(err, ErrRoleNotFound) {
		return nil, e.storeErr("find_role_by_name", err)
	}

	now := e.now().UTC()
	role := &RoleRecord{
		ID:          uuid.NewString(),
		Name:        name,
		DisplayName: display,
		Permissions: perms,
		ClinicID:    clinicID,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   actor.User.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.roles.CreateRole(ctx, role); err != nil {
		if errors.Is(err, ErrRoleNameTaken) {
			return nil, &Error{Kind: ErrRoleNameTaken, Fields: []FieldError{field("name", "already exists")}}
		}
		return nil, e.storeErr("create_role", err)
	}

	e.metricInc(MetricRoleCreated)
	e.emitAudit(auditMeta{
		ctx:      ctx,
		event:    auditEventRoleCreated,
		success:  true,
		actorID:  actor.User.ID,
		clinicID: clinicID,
		metadata: func() map[string]string {
			return map[string]string{"role_id": role.ID, "name": role.Name}
		},
	})
	return role, nil
}

// UpdateCustomRole edits display name, permissions, and description. The
// name is immutable and system roles are read-only.
func (e *Engine) UpdateCustomRole(ctx context.Context, actor *Principal, roleID string, in RoleInput) (*RoleRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	role, err := e.editableRole(ctx, actor, roleID, permission.UpdateRoles)
	if err != nil {
		return nil, err
	}

	var fields []FieldError
	if display := strings.TrimSpace(in.DisplayName); display != "" {
		fields = append(fields, checkName("displayName", display, true)...)
		role.DisplayName = display
	}
	if in.Permissions != nil {
		perms, permFields := parseRolePermissions(in.Permissions)
		fields = append(fields, permFields...)
		role.Permissions = perms
	}
	if len(fields) > 0 {
		return nil, validationError(fields...)
	}
	if desc := strings.TrimSpace(in.Description); desc != "" {
		role.Description = desc
	}
	role.UpdatedAt = e.now().UTC()

	if err := e.roles.UpdateRole(ctx, role); err != nil {
		return nil, e.storeErr("update_role", err)
	}

	e.metricInc(MetricRoleUpdated)
	e.emitAudit(auditMeta{
		ctx:      ctx,
		event:    auditEventRoleUpdated,
		success:  true,
		actorID:  actor.User.ID,
		clinicID: role.ClinicID,
		metadata: func() map[string]string {
			return map[string]string{"role_id": role.ID}
		},
	})
	return role, nil
}

// DeleteCustomRole removes a custom role that no user references. The
// in-use error carries the number of referencing users.
func (e *Engine) DeleteCustomRole(ctx context.Context, actor *Principal, roleID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	role, err := e.editableRole(ctx, actor, roleID, permission.DeleteRoles)
	if err != nil {
		return err
	}

	n, err := e.users.CountUsersWithCustomRole(ctx, role.ID)
	if err != nil {
		return e.storeErr("count_users_with_role", err)
	}
	if n > 0 {
		return e.roleInUse(ctx, actor, role, n)
	}

	// The store re-checks references atomically; an assignment that landed
	// after the count surfaces here.
	if err := e.roles.DeleteRole(ctx, role.ID); err != nil {
		if errors.Is(err, ErrRoleInUse) {
			n, cerr := e.users.CountUsersWithCustomRole(ctx, role.ID)
			if cerr != nil {
				return e.storeErr("count_users_with_role", cerr)
			}
			return e.roleInUse(ctx, actor, role, max(n, 1))
		}
		return e.storeErr("delete_role", err)
	}

	e.metricInc(MetricRoleDeleted)
	e.emitAudit(auditMeta{
		ctx:      ctx,
		event:    auditEventRoleDeleted,
		success:  true,
		actorID:  actor.User.ID,
		clinicID: role.ClinicID,
		metadata: func() map[string]string {
			return map[string]string{"role_id": role.ID}
		},
	})
	return nil
}

func (e *Engine) roleInUse(ctx context.Context, actor *Principal, role *RoleRecord, n int) error {
	e.metricInc(MetricRoleInUseRejected)
	inUse := &Error{
		Kind:    ErrRoleInUse,
		Message: "role is assigned to " + strconv.Itoa(n) + " user(s)",
		Count:   n,
	}
	e.emitAudit(auditMeta{ctx: ctx, event: auditEventRoleDeleted, actorID: actor.User.ID, clinicID: role.ClinicID, err: inUse})
	return inUse
}

// AssignCustomRole attaches roleID to userID. An empty roleID detaches the
// current custom role. The role must belong to the user's clinic.
func (e *Engine) AssignCustomRole(ctx context.Context, actor *Principal, userID, roleID string) (*UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	target, err := e.manageableUser(ctx, actor, userID, permission.AssignRoles)
	if err != nil {
		return nil, err
	}

	if roleID != "" {
		role, err := e.roles.GetRole(ctx, roleID)
		if err != nil {
			return nil, e.storeErr("get_role", err)
		}
		if role.IsSystem {
			return nil, validationError(field("roleId", "system roles are assigned through the role field"))
		}
		if role.ClinicID != target.ClinicID {
			e.RecordForbidden(ctx, actor, "clinic_scope")
			return nil, ErrForbidden
		}
	}

	updated, err := e.users.SetCustomRole(ctx, target.ID, roleID, e.now().UTC())
	if err != nil {
		return nil, e.storeErr("set_custom_role", err)
	}

	e.metricInc(MetricCustomRoleAssigned)
	e.emitAudit(auditMeta{
		ctx:      ctx,
		event:    auditEventCustomRoleAssigned,
		success:  true,
		userID:   updated.ID,
		actorID:  actor.User.ID,
		clinicID: updated.ClinicID,
		metadata: func() map[string]string {
			return map[string]string{"role_id": roleID}
		},
	})
	return updated, nil
}

func (e *Engine) requireRoleAdmin(ctx context.Context, actor *Principal, clinicID string, perm permission.Permission) error {
	if !actor.Can(perm) {
		e.RecordForbidden(ctx, actor, "permission:"+string(perm))
		return ErrForbidden
	}
	if clinicID != "" && !authz.HasClinicAccess(actor.User.Role, actor.User.ClinicID, clinicID) {
		e.RecordForbidden(ctx, actor, "clinic_scope")
		return ErrForbidden
	}
	return nil
}

// editableRole loads a custom role the actor may change.
func (e *Engine) editableRole(ctx context.Context, actor *Principal, roleID string, perm permission.Permission) (*RoleRecord, error) {
	if actor == nil || actor.User == nil {
		return nil, ErrForbidden
	}

	role, err := e.roles.GetRole(ctx, roleID)
	if err != nil {
		return nil, e.storeErr("get_role", err)
	}
	if role.IsSystem {
		e.RecordForbidden(ctx, actor, "system_role")
		return nil, ErrSystemRoleImmutable
	}
	if err := e.requireRoleAdmin(ctx, actor, role.ClinicID, perm); err != nil {
		return nil, err
	}
	return role, nil
}

func parseRolePermissions(raw []string) ([]permission.Permission, []FieldError) {
	perms, invalid := permission.ParseList(raw)
	if len(invalid) > 0 {
		return nil, []FieldError{field("permissions", "unknown permissions: "+strings.Join(invalid, ", "))}
	}
	return perms, nil
}
