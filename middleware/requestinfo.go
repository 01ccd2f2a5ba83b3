package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/clinicauth"
	"github.com/google/uuid"
)

// RequestIDHeader is read from the request and echoed on the response.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// RequestInfo stores the client IP and a request id in the context so
// audit events can be correlated. An incoming X-Request-ID is kept when it
// is short and printable; otherwise a UUID is generated. Put a trusted
// real-IP middleware in front when running behind a proxy.
func RequestInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		ctx := clinicauth.WithRequestID(r.Context(), id)
		ctx = clinicauth.WithClientIP(ctx, host)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool { return r < 0x21 || r > 0x7e }) < 0
}
