package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	contextKeyRole contextKey = "auth.role"
	contextKeyUser contextKey = "auth.user_id"
)

// WithIdentity stores the caller's role and user id in context.
func WithIdentity(ctx context.Context, role Role, userID uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeyUser, userID)
	return ctx
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	if role, ok := ctx.Value(contextKeyRole).(Role); ok {
		return role
	}
	return ""
}

// UserIDFromContext extracts the authenticated user id.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	userID, ok := ctx.Value(contextKeyUser).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, false
	}
	return userID, true
}
