package internal

import (
	"context"
	"time"

	"github.com/frahmantamala/membership-portal/internal/authz"
)

type ctxKey string

const ContextUserKey ctxKey = "user"

// UserFromContext returns the acting user set by the identity layer, or nil
// for an anonymous request.
func UserFromContext(ctx context.Context) *authz.User {
	if ctx == nil {
		return nil
	}
	if user, ok := ctx.Value(ContextUserKey).(*authz.User); ok {
		return user
	}
	return nil
}

func ContextWithUser(ctx context.Context, user *authz.User) context.Context {
	return context.WithValue(ctx, ContextUserKey, user)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
