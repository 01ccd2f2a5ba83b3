package middleware

import (
	"net/http"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/authz"
	"github.com/MrEthical07/clinicauth/internal/httpx"
	"github.com/MrEthical07/clinicauth/permission"
)

// Extractor pulls one identifier out of a request, typically a path or
// query parameter.
type Extractor func(r *http.Request) string

// PlacementExtractor pulls the clinic and branch a request targets.
type PlacementExtractor func(r *http.Request) (clinicID, branchID string)

// deny records the failed rule and writes a bare 403.
func deny(engine *clinicauth.Engine, w http.ResponseWriter, r *http.Request, p *clinicauth.Principal, rule string) {
	engine.RecordForbidden(r.Context(), p, rule)
	httpx.WriteError(w, engine.Logger(), clinicauth.ErrForbidden)
}

// RequireRoles admits principals holding one of roles. An empty list admits
// nobody.
func RequireRoles(engine *clinicauth.Engine, roles ...permission.Role) func(http.Handler) http.Handler {
	allowed := append([]permission.Role(nil), roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principal(w, r)
			if !ok {
				return
			}
			if !authz.HasRole(p.User.Role, allowed...) {
				deny(engine, w, r, p, "role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdminTier is RequireRoles(SUPER_ADMIN, OWNER, ADMIN).
func RequireAdminTier(engine *clinicauth.Engine) func(http.Handler) http.Handler {
	return RequireRoles(engine, permission.SuperAdmin, permission.Owner, permission.Admin)
}

// RequirePermission admits principals that resolve perm through their
// role defaults, explicit grants, or custom role.
func RequirePermission(engine *clinicauth.Engine, perm permission.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principal(w, r)
			if !ok {
				return
			}
			if !p.Can(perm) {
				deny(engine, w, r, p, "permission:"+string(perm))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireClinicScope checks the clinic named by extract. An empty value
// passes; the handler then works inside the principal's own clinic.
func RequireClinicScope(engine *clinicauth.Engine, extract Extractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principal(w, r)
			if !ok {
				return
			}
			target := extract(r)
			if target != "" && !authz.HasClinicAccess(p.User.Role, p.User.ClinicID, target) {
				deny(engine, w, r, p, "clinic_scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireBranchScope checks the branch named by extract. A missing clinic
// defaults to the principal's clinic; a missing branch passes.
func RequireBranchScope(engine *clinicauth.Engine, extract PlacementExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principal(w, r)
			if !ok {
				return
			}
			clinicID, branchID := extract(r)
			if branchID == "" {
				next.ServeHTTP(w, r)
				return
			}
			if clinicID == "" {
				clinicID = p.User.ClinicID
			}
			if !authz.HasBranchAccess(p.User.Role, p.User.BranchID, branchID, p.User.ClinicID, clinicID) {
				deny(engine, w, r, p, "branch_scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnership admits the owner named by extract and every admin-tier
// principal.
func RequireOwnership(engine *clinicauth.Engine, extract Extractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principal(w, r)
			if !ok {
				return
			}
			if owner := extract(r); owner != p.User.ID && !authz.IsAdminTier(p.User.Role) {
				deny(engine, w, r, p, "ownership")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
