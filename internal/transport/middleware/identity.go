package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/membership-portal/internal"
	"github.com/frahmantamala/membership-portal/internal/authz"
	"github.com/frahmantamala/membership-portal/internal/transport"
	"github.com/frahmantamala/membership-portal/pkg/logger"
)

// UserHeader carries the id of the user authenticated by the upstream
// identity layer.
const UserHeader = "X-User-ID"

type UserLoader interface {
	FindUser(ctx context.Context, id int64) (*authz.User, error)
}

// Identity loads the user named by UserHeader into the request context. A
// missing, malformed or unknown id leaves the request anonymous.
func Identity(loader UserLoader, lg *slog.Logger) func(http.Handler) http.Handler {
	h := transport.NewBaseHandler(lg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(UserHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				h.Logger.Debug("ignoring malformed user id", "value", raw)
				next.ServeHTTP(w, r)
				return
			}

			user, err := loader.FindUser(r.Context(), id)
			if err != nil {
				if authz.IsNotFound(err) {
					h.Logger.Debug("unknown user id", "user_id", id)
					next.ServeHTTP(w, r)
					return
				}
				h.WriteAppError(w, internal.FromAuthzError(err))
				return
			}

			ctx := internal.ContextWithUser(r.Context(), user)
			ctx = logger.Into(ctx, logger.FromOr(ctx, h.Logger).With("user_id", user.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
