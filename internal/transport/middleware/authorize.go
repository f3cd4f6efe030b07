package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/membership-portal/internal"
	"github.com/frahmantamala/membership-portal/internal/authz"
	"github.com/frahmantamala/membership-portal/internal/transport"
	"github.com/frahmantamala/membership-portal/pkg/logger"
	"github.com/go-chi/chi/middleware"
)

type PermissionChecker interface {
	Can(ctx context.Context, user *authz.User, permission string) (bool, error)
}

type RoleChecker interface {
	HasAnyRole(ctx context.Context, user *authz.User, refs ...authz.RoleRef) (bool, error)
}

// RequirePermission lets the request through when the context user holds
// permission, directly or through a role. Anonymous requests get 401,
// denials 403 and check failures 500.
func RequirePermission(checker PermissionChecker, permission string, lg *slog.Logger) func(http.Handler) http.Handler {
	return gate(lg, "permission", permission, func(ctx context.Context, user *authz.User) (bool, error) {
		return checker.Can(ctx, user, permission)
	})
}

// RequireRole lets the request through when the context user holds any of
// the roles.
func RequireRole(checker RoleChecker, lg *slog.Logger, roles ...authz.RoleRef) func(http.Handler) http.Handler {
	names := make([]string, 0, len(roles))
	for _, ref := range roles {
		if name, ok := ref.(authz.RoleName); ok {
			names = append(names, string(name))
		}
	}
	return gate(lg, "roles", names, func(ctx context.Context, user *authz.User) (bool, error) {
		return checker.HasAnyRole(ctx, user, roles...)
	})
}

func gate(lg *slog.Logger, key string, required interface{}, check func(context.Context, *authz.User) (bool, error)) func(http.Handler) http.Handler {
	h := transport.NewBaseHandler(lg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())

			user := internal.UserFromContext(r.Context())
			if user == nil {
				h.WriteAppError(w, internal.ErrUnauthenticated)
				return
			}

			log := logger.FromOr(r.Context(), h.Logger)
			allowed, err := check(r.Context(), user)
			if err != nil {
				log.Error("authorization check failed",
					"request_id", reqID,
					"user_id", user.ID,
					key, required,
					"error", err)
				h.WriteAppError(w, internal.FromAuthzError(err))
				return
			}
			if !allowed {
				log.Warn("access denied",
					"request_id", reqID,
					"user_id", user.ID,
					key, required)
				h.WriteAppError(w, internal.ErrForbiddenAccess)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
