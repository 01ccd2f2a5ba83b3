package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/internal/httpx"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by Authenticate.
func PrincipalFromContext(ctx context.Context) (*clinicauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*clinicauth.Principal)
	return p, ok && p != nil && p.User != nil
}

// WithPrincipal stores p in ctx. Handlers under Authenticate never need it;
// it exists for tests and custom authenticators.
func WithPrincipal(ctx context.Context, p *clinicauth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Authenticate resolves the bearer token to a principal and stores it in
// the request context.
func Authenticate(engine *clinicauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				httpx.WriteError(w, nil, clinicauth.ErrInvalidToken)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(w, engine.Logger(), clinicauth.ErrInvalidToken)
				return
			}

			p, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				httpx.WriteError(w, engine.Logger(), err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// principal fetches the context principal or writes 401. Stages placed
// before Authenticate by mistake fail closed.
func principal(w http.ResponseWriter, r *http.Request) (*clinicauth.Principal, bool) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, nil, clinicauth.ErrInvalidToken)
		return nil, false
	}
	return p, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
