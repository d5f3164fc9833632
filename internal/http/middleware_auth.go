package httpserver

import (
	"errors"
	"net/http"

	"schoolhub/internal/auth"
	"schoolhub/internal/rbac"
)

type AuthMiddleware struct {
	authenticator auth.Authenticator
	logger        appLogger
}

func NewAuthMiddleware(authenticator auth.Authenticator, logger appLogger) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator, logger: logger}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.authenticator.Authenticate(r)
		if err != nil || principal == nil {
			if err != nil && !errors.Is(err, auth.ErrUnauthorized) {
				m.logger.Error("auth error", "error", err)
			}
			m.logDenied(r, "", "unauthenticated")
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		ctx := auth.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) RequireRoles(roles ...rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			if !rbac.Allows(principal.Role, roles...) {
				m.logDenied(r, principal.Name, "insufficient_role")
				writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *AuthMiddleware) logDenied(r *http.Request, actor, reason string) {
	m.logger.Warn("access denied",
		"actor", actor,
		"method", r.Method,
		"path", r.URL.Path,
		"reason", reason,
	)
}
