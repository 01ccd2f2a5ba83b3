package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/internal/httpx"
	"github.com/MrEthical07/clinicauth/internal/rate"
	"go.uber.org/zap"
)

// RateLimit spends one unit of the caller's budget per request. The key is
// the principal's user id when Authenticate ran first, otherwise the client
// IP. A limiter error lets the request through and is logged.
func RateLimit(engine *clinicauth.Engine, limiter rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateKey(r)

			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				engine.Logger().Warn("rate limiter unavailable; allowing request",
					zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				secs := int(math.Ceil(res.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				engine.RecordRateLimited(r.Context(), key)
				httpx.WriteError(w, engine.Logger(), clinicauth.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateKey(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return "user:" + p.User.ID
	}
	return "ip:" + remoteIP(r)
}

func remoteIP(r *http.Request) string {
	if ip := clinicauth.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
