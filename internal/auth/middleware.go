package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Middleware authenticates API callers from a bearer token and checks the
// role the policy requires for the route.
type Middleware struct {
	Secret []byte
	Policy Policy
	Logger *slog.Logger
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy, Logger: slog.Default()}
}

// Wrap applies authentication and the role check to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		role, userID, err := m.authenticate(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="signal-alerts"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !role.Satisfies(required) {
			m.logger().Info("request denied", "path", r.URL.Path, "user_id", userID, "role", role, "required", required)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), role, userID)))
	})
}

// authenticate validates the caller's token and returns who they are.
func (m *Middleware) authenticate(r *http.Request) (Role, uuid.UUID, error) {
	claims, err := ParseJWT(extractToken(r), m.Secret)
	if err != nil {
		return "", uuid.Nil, err
	}
	role, err := claims.AccessRole()
	if err != nil {
		return "", uuid.Nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return "", uuid.Nil, err
	}
	return role, userID, nil
}

func (m *Middleware) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

// UserFromRequest returns the user id set by Wrap.
func UserFromRequest(r *http.Request) (uuid.UUID, bool) {
	if r == nil {
		return uuid.Nil, false
	}
	return UserIDFromContext(r.Context())
}

// extractToken reads the Authorization header first. Browsers cannot set headers
// on EventSource or WebSocket requests, so the access_token query parameter is
// accepted as well.
func extractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if found && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	return r.URL.Query().Get("access_token")
}
