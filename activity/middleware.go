package activity

import (
	"net/http"
)

// Authenticator answers session queries. *sessionguard.Manager implements it.
type Authenticator interface {
	IsAuthenticated() bool
	HasPermission(perm string) bool
}

// Guard rejects requests with 401 when no session is authenticated and
// otherwise records the request as activity before calling next.
func Guard(auth Authenticator, tracker *Tracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil || !auth.IsAuthenticated() {
				http.Error(w, "please sign in again", http.StatusUnauthorized)
				return
			}

			if err := tracker.Observe(r.Context(), SignalRequest); err != nil {
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission rejects with 403 when the session lacks perm. Chain it
// after Guard.
func RequirePermission(auth Authenticator, perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil || !auth.IsAuthenticated() {
				http.Error(w, "please sign in again", http.StatusUnauthorized)
				return
			}
			if !auth.HasPermission(perm) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
