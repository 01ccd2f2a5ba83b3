package clinicauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/clinicauth/authz"
	"github.com/MrEthical07/clinicauth/permission"
	"github.com/google/uuid"
)

// RegisterInput is the self-registration payload.
type RegisterInput struct {
	Email           string
	Username        string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
	Phone           string
	// Role is optional and must be listed in Config.Account.SelfRegisterRoles.
	Role     string
	ClinicID string
	BranchID string
}

// RegisterResult carries the new user, its first token pair, and the raw
// email verification token.
type RegisterResult struct {
	User              *UserRecord
	Tokens            *TokenPair
	VerificationToken string
}

// CreateUserInput is the admin-create payload.
type CreateUserInput struct {
	Email       string
	Username    string
	Password    string
	FirstName   string
	LastName    string
	Phone       string
	Role        string
	ClinicID    string
	BranchID    string
	Permissions []string
	Status      UserStatus
}

// Register creates an account, logs it in, and issues an email verification
// token.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)

	var fields []FieldError
	fields = append(fields, checkIdentity(email, username)...)
	fields = append(fields, checkName("firstName", in.FirstName, true)...)
	fields = append(fields, checkName("lastName", in.LastName, true)...)
	if !validPhone(strings.TrimSpace(in.Phone)) {
		fields = append(fields, field("phone", "must be a valid phone number"))
	}
	fields = append(fields, checkNewPassword(e.config.Password.Policy, "password", in.Password)...)

	role := e.config.Account.DefaultRole
	if strings.TrimSpace(in.Role) != "" {
		r, ok := permission.ParseRole(in.Role)
		if !ok || !e.config.selfRegisterAllowed(r) {
			fields = append(fields, field("role", "is not allowed for self-registration"))
		} else {
			role = r
		}
	}
	placement, placementFields := normalizePlacement(role, in.ClinicID, in.BranchID)
	fields = append(fields, placementFields...)

	if len(fields) > 0 {
		return nil, validationError(fields...)
	}
	if in.Password != in.ConfirmPassword {
		return nil, &Error{Kind: ErrPasswordMismatch, Fields: []FieldError{field("confirmPassword", "passwords do not match")}}
	}

	if err := e.ensureUnique(ctx, email, username); err != nil {
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(auditMeta{ctx: ctx, event: auditEventRegister, clinicID: placement.ClinicID, err: err})
		return nil, err
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalError(err)
	}

	now := e.now().UTC()
	user := &UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         placement.Role,
		Status:       StatusActive,
		ClinicID:     placement.ClinicID,
		BranchID:     placement.BranchID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.CreateUser(ctx, user); err != nil {
		if isDuplicate(err) {
			e.metricInc(MetricRegisterDuplicate)
		}
		return nil, e.duplicateOr(err, "create_user")
	}

	pair, err := e.issueTokenPair(ctx, user, false)
	if err != nil {
		return nil, err
	}
	verify, err := e.issueSecretToken(ctx, user, TokenVerify)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(auditMeta{
		ctx:      ctx,
		event:    auditEventRegister,
		success:  true,
		userID:   user.ID,
		clinicID: user.ClinicID,
		metadata: func() map[string]string {
			return map[string]string{"role": string(user.Role)}
		},
	})

	return &RegisterResult{User: user, Tokens: pair, VerificationToken: verify}, nil
}

/*
====================================
SELF SERVICE
====================================
*/

// Profile returns the current record of userID.
func (e *Engine) Profile(ctx context.Context, userID string) (*UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	u, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, e.storeErr("get_user", err)
	}
	return u, nil
}

// UpdateProfile changes the caller's own name, phone, or username. Email,
// role, and placement are not editable here.
func (e *Engine) UpdateProfile(ctx context.Context, p *Principal, upd ProfileUpdate) (*UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if p == nil || p.User == nil {
		return nil, ErrInvalidToken
	}

	var fields []FieldError
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	upd.FirstName, upd.LastName = trim(upd.FirstName), trim(upd.LastName)
	upd.Phone, upd.Username = trim(upd.Phone), trim(upd.Username)

	if upd.FirstName != nil {
		fields = append(fields, checkName("firstName", *upd.FirstName, true)...)
	}
	if upd.LastName != nil {
		fields = append(fields, checkName("lastName", *upd.LastName, true)...)
	}
	if upd.Phone != nil && !validPhone(*upd.Phone) {
		fields = append(fields, field("phone", "must be a valid phone number"))
	}
	if upd.Username != nil && !validUsername(*upd.Username) {
		fields = append(fields, field("username", "must be 3-30 letters, digits, '_' or '.'"))
	}
	if len(fields) > 0 {
		return nil, validationError(fields...)
	}

	if upd.Username != nil && *upd.Username != p.User.Username {
		existing, err := e.users.GetUserByUsername(ctx, *upd.Username)
		switch {
		case err == nil && existing.ID != p.User.ID:
			return nil, &Error{Kind: ErrDuplicateUsername, Fields: []FieldError{field("username", "is already taken")}}
		case err != nil && !errors.Is(err, ErrUserNotFound):
			return nil, e.storeErr("get_user_by_username", err)
		}
	}

	u, err := e.users.UpdateProfile(ctx, p.User.ID, upd, e.now().UTC())
	if err != nil {
		return nil, e.duplicateOr(err, "update_profile")
	}

	e.emitAudit(auditMeta{ctx: ctx, event: auditEventProfileUpdate, success: true, userID: u.ID, clinicID: u.ClinicID})
	return u, nil
}

// ChangePassword replaces the caller's password after checking the current
// one. Reusing the current password is rejected.
func (e *Engine) ChangePassword(ctx context.Context, p *Principal, current, next, confirm string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if p == nil || p.User == nil {
		return ErrInvalidToken
	}

	var fields []FieldError
	if current == "" {
		fields = append(fields, field("currentPassword", "is required"))
	}
	fields = append(fields, checkNewPassword(e.config.Password.Policy, "newPassword", next)...)
	if len(fields) > 0 {
		return validationError(fields...)
	}
	if next != confirm {
		return &Error{Kind: ErrPasswordMismatch, Fields: []FieldError{field("confirmPassword", "passwords do not match")}}
	}

	user, err := e.users.GetUserByID(ctx, p.User.ID)
	if err != nil {
		return e.storeErr("get_user", err)
	}

	ok, err := e.hasher.Verify(current, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(auditMeta{ctx: ctx, event: auditEventPasswordChange, userID: user.ID, clinicID: user.ClinicID, err: ErrCurrentPassword})
		return ErrCurrentPassword
	}
	if same, _ := e.hasher.Verify(next, user.PasswordHash); same {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(auditMeta{ctx: ctx, event: auditEventPasswordChange, userID: user.ID, clinicID: user.ClinicID, err: ErrPasswordReuse})
		return ErrPasswordReuse
	}

	hash, err := e.hasher.Hash(next)
	if err != nil {
		return internalError(err)
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, hash, e.now().UTC()); err != nil {
		return e.storeErr("update_password_hash", err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(auditMeta{ctx: ctx, event: auditEventPasswordChange, success: true, userID: user.ID, clinicID: user.ClinicID})
	return nil
}

/*
====================================
USER ADMINISTRATION
====================================
*/

// CreateUser creates an account on behalf of actor. The actor needs
// create:users and must be allowed to manage a user with the requested role
// and placement.
func (e *Engine) CreateUser(ctx context.Context, actor *Principal, in CreateUserInput) (*UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if actor == nil || actor.User == nil {
		return nil, ErrForbidden
	}
	if !actor.Can(permission.CreateUsers) {
		e.RecordForbidden(ctx, actor, "permission:"+string(permission.CreateUsers))
		return nil, ErrForbidden
	}

	email := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)

	var fields []FieldError
	fields = append(fields, checkIdentity(email, username)...)
	fields = append(fields, checkName("firstName", in.FirstName, true)...)
	fields = append(fields, checkName("lastName", in.LastName, true)...)
	if !validPhone(strings.TrimSpace(in.Phone)) {
		fields = append(fields, field("phone", "must be a valid phone number"))
	}
	fields = append(fields, checkNewPassword(e.config.Password.Policy, "password", in.Password)...)

	role, ok := permission.ParseRole(in.Role)
	if !ok {
		fields = append(fields, field("role", "must be one of superadmin, owner, admin, manager, staff"))
	}
	clinicID := in.ClinicID
	if clinicID == "" && actor.User.Role != permission.SuperAdmin {
		clinicID = actor.User.ClinicID
	}
	placement, placementFields := normalizePlacement(role, clinicID, in.BranchID)
	if ok {
		fields = append(fields, placementFields...)
	}

	perms, invalid := permission.ParseList(in.Permissions)
	if len(invalid) > 0 {
		fields = append(fields, field("permissions", "unknown permissions: "+strings.Join(invalid, ", ")))
	}

	status := in.Status
	if status == "" {
		status = StatusActive
	}
	if !status.Valid() {
		fields = append(fields, field("status", "must be one of active, inactive, suspended, pending"))
	}

	if len(fields) > 0 {
		return nil, validationError(fields...)
	}

	if !authz.CanAssignRole(actor.Subject(), placement.Role, placement.ClinicID, placement.BranchID) {
		e.RecordForbidden(ctx, actor, "assign_role")
		return nil, ErrForbidden
	}
	if len(perms) > 0 && !actor.Can(permission.ManagePermissions) {
		e.RecordForbidden(ctx, actor, "permission:"+string(permission.ManagePermissions))
		return nil, ErrForbidden
	}

	if err := e.ensureUnique(ctx, email, username); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalError(err)
	}

	now := e.now().UTC()
	user := &UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         placement.Role,
		Status:       status,
		ClinicID:     placement.ClinicID,
		BranchID:     placement.BranchID,
		Permissions:  perms,
		CreatedBy:    actor.User.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.CreateUser(ctx, user); err != nil {
		return nil, e.duplicateOr(err, "create_user")
	}

	e.metricInc(MetricUserCreated)
	e.emitAudit(auditMeta{
		ctx:      ctx,
		event:    auditEventUserCreated,
		success:  true,
		userID:   user.ID,
		actorID:  actor.User.ID,
		clinicID: user.ClinicID,
		metadata: func() map[string]string {
			return map[string]string{"role": string(user.Role)}
		},
	})
	return user, nil
}

// GetUser returns userID when it is the actor or someone the actor may
// manage.
func (e *Engine) GetUser(ctx context.Context, actor *Principal, userID string) (*UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if actor == nil || actor.User == nil {
		return nil, ErrForbidden
	}

	target, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, e.storeErr("get_user", err)
	}
	if target.ID == actor.User.ID {
		return target, nil
	}
	if !actor.Can(permission.ReadUsers) || !authz.CanManageUser(actor.Subject(), subjectOf(target), false) {
		e.RecordForbidden(ctx, actor, "read_user")
		return nil, ErrForbidden
	}
	return target, nil
}

// ChangeUserRole moves userID to a new role and placement. SUPER_ADMIN
// placement drops clinic and branch.
func (e *Engine) ChangeUserRole(ctx context.Context, actor *Principal, userID string, role, clinicID, branchID string) (*UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	r, ok := permission.ParseRole(role)
	if !ok {
		return nil, validationError(field("role", "must be one of superadmin, owner, admin, manager, staff"))
	}

	target, err := e.manageableUser(ctx, actor, userID, permission.UpdateUsers)
	if err != nil {
		return nil, err
	}

	if clinicID == "" && r != permission.SuperAdmin {
		clinicID = target.ClinicID
	}
	if branchID == "" && r.RequiresBranch() && clinicID == target.ClinicID {
		branchID = target.BranchID
	}
	placement, fields := normalizePlacement(r, clinicID, branchID)
	if len(fields) > 0 {
		return nil, validationError(fields...)
	}
	if !authz.CanAssignRole(actor.Subject(), placement.Role, placement.ClinicID, placement.BranchID) {
		e.RecordForbidden(ctx, actor, "assign_role")
		return nil, ErrForbidden
	}

	updated, err := e.users.UpdatePlacement(ctx, target.ID, placement, e.now().UTC())
	if err != nil {
		return nil, e.storeErr("update_placement", err)
	}

	e.metricInc(MetricUserRoleChanged)
	e.emitAudit(auditMeta{
		ctx:      ctx,
		event:    auditEventUserRoleChanged,
		success:  true,
		userID:   updated.ID,
		actorID:  actor.User.ID,
		clinicID: updated.ClinicID,
		metadata: func() map[string]string {
			return map[string]string{"from": string(target.Role), "to": string(updated.Role)}
		},
	})
	return updated, nil
}

// ChangeUserStatus sets the lifecycle status of userID. Any status other
// than active clears the refresh slot in the same store write.
func (e *Engine) ChangeUserStatus(ctx context.Context, actor *Principal, userID string, status UserStatus) (*UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, validationError(field("status", "must be one of active, inactive, suspended, pending"))
	}

	target, err := e.manageableUser(ctx, actor, userID, permission.UpdateUsers)
	if err != nil {
		return nil, err
	}

	updated, err := e.users.UpdateStatus(ctx, target.ID, status, e.now().UTC())
	if err != nil {
		return nil, e.storeErr("update_status", err)
	}

	e.metricInc(MetricUserStatusChanged)
	e.emitAudit(auditMeta{
		ctx:      ctx,
		event:    auditEventUserStatusChanged,
		success:  true,
		userID:   updated.ID,
		actorID:  actor.User.ID,
		clinicID: updated.ClinicID,
		metadata: func() map[string]string {
			return map[string]string{"status": string(status)}
		},
	})
	return updated, nil
}

/*
====================================
HELPERS
====================================
*/

func checkIdentity(email, username string) []FieldError {
	var fields []FieldError
	if !validEmail(email) {
		fields = append(fields, field("email", "must be a valid email address"))
	}
	if !validUsername(username) {
		fields = append(fields, field("username", "must be 3-30 letters, digits, '_' or '.'"))
	}
	return fields
}

// normalizePlacement enforces the tenant placement rules of role.
func normalizePlacement(role permission.Role, clinicID, branchID string) (Placement, []FieldError) {
	p := Placement{
		Role:     role,
		ClinicID: strings.TrimSpace(clinicID),
		BranchID: strings.TrimSpace(branchID),
	}
	if role == permission.SuperAdmin {
		p.ClinicID, p.BranchID = "", ""
		return p, nil
	}

	var fields []FieldError
	if role.RequiresClinic() && p.ClinicID == "" {
		fields = append(fields, field("clinicId", "is required for role "+string(role)))
	}
	if role.RequiresBranch() && p.BranchID == "" {
		fields = append(fields, field("branchId", "is required for role "+string(role)))
	}
	return p, fields
}

func (e *Engine) ensureUnique(ctx context.Context, email, username string) error {
	if _, err := e.users.GetUserByEmail(ctx, email); err == nil {
		return &Error{Kind: ErrDuplicateEmail, Fields: []FieldError{field("email", "is already registered")}}
	} else if !errors.Is(err, ErrUserNotFound) {
		return e.storeErr("get_user_by_email", err)
	}

	if _, err := e.users.GetUserByUsername(ctx, username); err == nil {
		return &Error{Kind: ErrDuplicateUsername, Fields: []FieldError{field("username", "is already taken")}}
	} else if !errors.Is(err, ErrUserNotFound) {
		return e.storeErr("get_user_by_username", err)
	}
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicateUsername)
}

// duplicateOr decorates store duplicate errors with a field and maps
// everything else through storeErr.
func (e *Engine) duplicateOr(err error, op string) error {
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		return &Error{Kind: ErrDuplicateEmail, Fields: []FieldError{field("email", "is already registered")}}
	case errors.Is(err, ErrDuplicateUsername):
		return &Error{Kind: ErrDuplicateUsername, Fields: []FieldError{field("username", "is already taken")}}
	default:
		return e.storeErr(op, err)
	}
}
