package tenant

import (
	"context"
	"errors"
)

// Key for tenant values in context
type contextKey string

const (
	organizationIDKey contextKey = "organizationID"
	roleKey           contextKey = "role"
	userIDKey         contextKey = "userID"
	requestIDKey      contextKey = "requestID"
)

// RoleStaff marks callers allowed to query across organizations.
const RoleStaff = "staff"

// ErrOrganizationIDNotFound is returned when no organization ID is found in context
var ErrOrganizationIDNotFound = errors.New("organization ID not found in context")

// WithOrganizationID adds an organization ID to the context
func WithOrganizationID(ctx context.Context, organizationID string) context.Context {
	return context.WithValue(ctx, organizationIDKey, organizationID)
}

// FromContext extracts the organization ID from the context
func FromContext(ctx context.Context) (string, error) {
	organizationID, ok := ctx.Value(organizationIDKey).(string)
	if !ok || organizationID == "" {
		return "", ErrOrganizationIDNotFound
	}
	return organizationID, nil
}

// MustFromContext extracts the organization ID from the context or panics
func MustFromContext(ctx context.Context) string {
	organizationID, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return organizationID
}

// WithRole adds the caller's role to the context
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

// RoleFromContext extracts the caller's role from the context. A missing role
// is treated as the least-privileged (organization-scoped) caller.
func RoleFromContext(ctx context.Context) string {
	role, ok := ctx.Value(roleKey).(string)
	if !ok {
		return ""
	}
	return role
}

// IsStaff reports whether the caller may see data across organizations.
func IsStaff(ctx context.Context) bool {
	return RoleFromContext(ctx) == RoleStaff
}

// WithUserID adds the authenticated user's ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the authenticated user's ID from the context
func UserIDFromContext(ctx context.Context) string {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

// ErrNoRequestIDInContext is returned when no request ID is found in context
var ErrNoRequestIDInContext = errors.New("no request ID found in context")

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FromRequestIDContext extracts the request ID from the context
func FromRequestIDContext(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		return "", ErrNoRequestIDInContext
	}
	return requestID, nil
}
