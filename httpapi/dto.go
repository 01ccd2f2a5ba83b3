package httpapi

import (
	"strings"
	"time"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/authz"
	"github.com/MrEthical07/clinicauth/permission"
)

/*
====================================
REQUESTS
====================================
*/

type registerRequest struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Phone           string `json:"phone"`
	Role            string `json:"role"`
	ClinicID        string `json:"clinicId"`
	BranchID        string `json:"branchId"`
}

type loginRequest struct {
	EmailOrUsername string `json:"emailOrUsername"`
	Password        string `json:"password"`
	RememberMe      bool   `json:"rememberMe"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type profileRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
	Username  *string `json:"username"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type roleRequest struct {
	ClinicID    string   `json:"clinicId"`
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Permissions []string `json:"permissions"`
	Description string   `json:"description"`
}

type createUserRequest struct {
	Email       string   `json:"email"`
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Phone       string   `json:"phone"`
	Role        string   `json:"role"`
	ClinicID    string   `json:"clinicId"`
	BranchID    string   `json:"branchId"`
	Permissions []string `json:"permissions"`
	Status      string   `json:"status"`
}

type changeRoleRequest struct {
	Role     string `json:"role"`
	ClinicID string `json:"clinicId"`
	BranchID string `json:"branchId"`
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

type customRoleRequest struct {
	RoleID string `json:"roleId"`
}

/*
====================================
RESPONSES
====================================
*/

// userView is the public projection of a UserRecord. Hashes and token
// slots never leave the server.
type userView struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	Phone         string     `json:"phone,omitempty"`
	Role          string     `json:"role"`
	Status        string     `json:"status"`
	ClinicID      string     `json:"clinicId,omitempty"`
	BranchID      string     `json:"branchId,omitempty"`
	EmailVerified bool       `json:"emailVerified"`
	Permissions   []string   `json:"permissions"`
	CustomRoleID  string     `json:"customRoleId,omitempty"`
	LockUntil     *time.Time `json:"lockUntil,omitempty"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	CreatedBy     string     `json:"createdBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func toUserView(u *clinicauth.UserRecord) *userView {
	if u == nil {
		return nil
	}
	perms := make([]string, 0, len(u.Permissions))
	for _, p := range u.Permissions {
		perms = append(perms, string(p))
	}
	return &userView{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Phone:         u.Phone,
		Role:          roleLabel(u.Role),
		Status:        string(u.Status),
		ClinicID:      u.ClinicID,
		BranchID:      u.BranchID,
		EmailVerified: u.EmailVerified,
		Permissions:   perms,
		CustomRoleID:  u.CustomRoleID,
		LockUntil:     u.LockUntil,
		LastLogin:     u.LastLogin,
		CreatedBy:     u.CreatedBy,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// profileView adds the resolved permission set to the caller's own record.
type profileView struct {
	*userView
	EffectivePermissions []string `json:"effectivePermissions"`
}

func toProfileView(u *clinicauth.UserRecord, grants permission.Set) profileView {
	s := authz.Subject{ID: u.ID, Role: u.Role, ClinicID: u.ClinicID, BranchID: u.BranchID, Grants: grants}
	return profileView{userView: toUserView(u), EffectivePermissions: authz.EffectivePermissions(s).Strings()}
}

type tokenView struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func toTokenView(p *clinicauth.TokenPair) *tokenView {
	if p == nil {
		return nil
	}
	return &tokenView{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, ExpiresIn: p.ExpiresIn}
}

type authView struct {
	User              *userView  `json:"user"`
	Tokens            *tokenView `json:"tokens"`
	VerificationToken string     `json:"verificationToken,omitempty"`
}

type roleView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Permissions []string  `json:"permissions"`
	IsSystem    bool      `json:"isSystem"`
	ClinicID    string    `json:"clinicId,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toRoleView(r *clinicauth.RoleRecord) roleView {
	perms := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, string(p))
	}
	return roleView{
		ID:          r.ID,
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Permissions: perms,
		IsSystem:    r.IsSystem,
		ClinicID:    r.ClinicID,
		Description: r.Description,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type permissionView struct {
	Name     string `json:"name"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// roleLabel renders a role in the upper-case API form, e.g. SUPER_ADMIN.
func roleLabel(r permission.Role) string {
	if r == permission.SuperAdmin {
		return "SUPER_ADMIN"
	}
	return strings.ToUpper(string(r))
}
