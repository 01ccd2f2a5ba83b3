package httpapi

import (
	"context"
	"net/http"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/internal/httpx"
	"github.com/MrEthical07/clinicauth/internal/rate"
	"github.com/MrEthical07/clinicauth/middleware"
	"github.com/MrEthical07/clinicauth/permission"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Prefix is the mount point of every API route.
const Prefix = "/api/v1"

// Options configures NewRouter. Engine is required.
type Options struct {
	Engine *clinicauth.Engine
	// Limiter guards every API route; nil disables rate limiting.
	Limiter rate.Limiter
	// Notifier delivers reset and verification tokens. Delivery failures are
	// logged and never change the response.
	Notifier clinicauth.Notifier
	// ExposeTokens returns raw reset and verification tokens in response
	// bodies. Development only.
	ExposeTokens bool
	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
	// Ready backs /healthz; nil always reports ok.
	Ready func(ctx context.Context) error
	Logger *zap.Logger
}

type api struct {
	engine   *clinicauth.Engine
	notifier clinicauth.Notifier
	expose   bool
	log      *zap.Logger
}

// NewRouter builds the HTTP handler for the API and /healthz.
func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = opts.Engine.Logger()
	}
	a := &api{engine: opts.Engine, notifier: opts.Notifier, expose: opts.ExposeTokens, log: log}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if opts.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestInfo)
	r.Use(AccessLog(log))

	r.Get("/healthz", healthz(opts.Ready, log))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusNotFound, httpx.Envelope{Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusMethodNotAllowed, httpx.Envelope{Message: "method not allowed"})
	})

	e := opts.Engine
	managerPlus := middleware.RequireRoles(e, permission.SuperAdmin, permission.Owner, permission.Admin, permission.Manager)
	adminTier := middleware.RequireAdminTier(e)

	r.Route(Prefix, func(r chi.Router) {
		// public
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(e, opts.Limiter))
			r.Post("/auth/register", a.register)
			r.Post("/auth/login", a.login)
			r.Post("/auth/refresh-token", a.refresh)
			r.Post("/auth/forgot-password", a.forgotPassword)
			r.Post("/auth/reset-password", a.resetPassword)
			r.Post("/auth/verify-email", a.verifyEmail)
			r.Post("/auth/resend-verification", a.resendVerification)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(e))
			r.Use(middleware.RateLimit(e, opts.Limiter))

			r.Post("/auth/logout", a.logout)
			r.Get("/auth/profile", a.profile)
			r.Put("/auth/profile", a.updateProfile)
			r.Patch("/auth/change-password", a.changePassword)
			r.Get("/permissions", a.permissions)

			r.Route("/roles", func(r chi.Router) {
				r.Use(adminTier)
				r.Get("/", a.listRoles)
				r.Post("/", a.createRole)
				r.Put("/{id}", a.updateRole)
				r.Delete("/{id}", a.deleteRole)
			})

			r.Route("/users", func(r chi.Router) {
				r.With(managerPlus).Post("/", a.createUser)
				r.With(middleware.RequireOwnership(e, pathID)).Get("/{id}", a.getUser)
				r.With(managerPlus).Patch("/{id}/role", a.changeRole)
				r.With(managerPlus).Patch("/{id}/status", a.changeStatus)
				r.With(adminTier).Put("/{id}/custom-role", a.assignCustomRole)
				r.With(managerPlus).Post("/{id}/unlock", a.unlock)
			})
		})
	})
	return r
}

func pathID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

func healthz(ready func(context.Context) error, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				log.Warn("readiness check failed", zap.Error(err))
				httpx.WriteJSON(w, http.StatusServiceUnavailable, httpx.Envelope{Message: "unavailable"})
				return
			}
		}
		httpx.WriteData(w, http.StatusOK, "", map[string]string{"status": "ok"})
	}
}

// principal returns the caller installed by middleware.Authenticate. Routes
// are only mounted behind it; a miss is answered as unauthenticated.
func (a *api) principal(w http.ResponseWriter, r *http.Request) (*clinicauth.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, a.log, clinicauth.ErrInvalidToken)
		return nil, false
	}
	return p, true
}

func (a *api) fail(w http.ResponseWriter, err error) {
	httpx.WriteError(w, a.log, err)
}
