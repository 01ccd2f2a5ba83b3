package httpapi

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/internal/httpx"
	"github.com/MrEthical07/clinicauth/permission"
)

func (a *api) permissions(w http.ResponseWriter, _ *http.Request) {
	all := permission.All()
	out := make([]permissionView, 0, len(all))
	for _, p := range all {
		out = append(out, permissionView{Name: string(p), Resource: p.Resource(), Action: p.Action()})
	}
	httpx.WriteData(w, http.StatusOK, "", out)
}

/*
====================================
ROLES
====================================
*/

func (a *api) listRoles(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	roles, err := a.engine.ListRoles(r.Context(), p, r.URL.Query().Get("clinicId"))
	if err != nil {
		a.fail(w, err)
		return
	}
	out := make([]roleView, 0, len(roles))
	for i := range roles {
		out = append(out, toRoleView(&roles[i]))
	}
	httpx.WriteData(w, http.StatusOK, "", out)
}

func (a *api) createRole(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}

	role, err := a.engine.CreateCustomRole(r.Context(), p, req.ClinicID, roleInput(req))
	if err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, "role created", toRoleView(role))
}

func (a *api) updateRole(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}

	role, err := a.engine.UpdateCustomRole(r.Context(), p, pathID(r), roleInput(req))
	if err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "role updated", toRoleView(role))
}

func (a *api) deleteRole(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	if err := a.engine.DeleteCustomRole(r.Context(), p, pathID(r)); err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "role deleted", nil)
}

func roleInput(req roleRequest) clinicauth.RoleInput {
	return clinicauth.RoleInput{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Permissions: req.Permissions,
		Description: req.Description,
	}
}

/*
====================================
USERS
====================================
*/

func (a *api) createUser(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}

	user, err := a.engine.CreateUser(r.Context(), p, clinicauth.CreateUserInput{
		Email:       req.Email,
		Username:    req.Username,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		Role:        req.Role,
		ClinicID:    req.ClinicID,
		BranchID:    req.BranchID,
		Permissions: req.Permissions,
		Status:      parseStatus(req.Status),
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, "user created", toUserView(user))
}

func (a *api) getUser(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	user, err := a.engine.GetUser(r.Context(), p, pathID(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "", toUserView(user))
}

func (a *api) changeRole(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req changeRoleRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}

	user, err := a.engine.ChangeUserRole(r.Context(), p, pathID(r), req.Role, req.ClinicID, req.BranchID)
	if err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "role changed", toUserView(user))
}

func (a *api) changeStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req changeStatusRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}

	user, err := a.engine.ChangeUserStatus(r.Context(), p, pathID(r), parseStatus(req.Status))
	if err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "status changed", toUserView(user))
}

func (a *api) assignCustomRole(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req customRoleRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		a.fail(w, err)
		return
	}

	user, err := a.engine.AssignCustomRole(r.Context(), p, pathID(r), req.RoleID)
	if err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "custom role updated", toUserView(user))
}

func (a *api) unlock(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	user, err := a.engine.UnlockAccount(r.Context(), p, pathID(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, "account unlocked", toUserView(user))
}

// parseStatus lower-cases the wire form; the engine rejects unknown values.
func parseStatus(raw string) clinicauth.UserStatus {
	return clinicauth.UserStatus(strings.ToLower(strings.TrimSpace(raw)))
}
