package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/pliu/murmur/internal/apperr"
	"github.com/pliu/murmur/internal/ratelimit"
)

// ClientAddr returns the address admission is keyed by. X-Forwarded-For is
// only honoured behind a trusted proxy; its first entry is the client.
func ClientAddr(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if addr := strings.TrimSpace(first); addr != "" {
				return addr
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects requests from addresses over quota with 429 before any
// handler runs.
func RateLimit(limiter *ratelimit.Limiter, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(ClientAddr(r, trustProxy)) {
				err := apperr.RateLimited()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.Window().Seconds())))
				w.WriteHeader(err.Kind.HTTPStatus())
				json.NewEncoder(w).Encode(apperr.Public(err, nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
