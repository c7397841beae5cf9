package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/nkiryanov/payouts/internal/handlers/render"
	"github.com/nkiryanov/payouts/internal/handlers/userctx"
	"github.com/nkiryanov/payouts/internal/models"
)

type authService interface {
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type AuthMiddleware struct {
	authService authService
}

func NewAuth(as authService) *AuthMiddleware {
	return &AuthMiddleware{authService: as}
}

// Auth puts the authenticated actor to request context or responds with 401
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.authService.Auth(r.Context(), r)
		if err != nil {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		actor := user.Actor()
		actor.IP = remoteIP(r)

		ctx := userctx.New(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminOnly must be applied after Auth
func (m *AuthMiddleware) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := userctx.FromContext(r.Context())
		if !ok || !actor.IsAdmin {
			render.ServiceError(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
