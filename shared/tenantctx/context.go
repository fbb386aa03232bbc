// Package tenantctx carries the per-request tenant binding through call
// chains. The context value is the single source of truth for which tenant a
// request acts as; database sessions read it at acquisition time.
//
// The value lives on context.Context only. It is never stored in package
// state, so concurrent requests sharing pooled goroutines or connections can
// never observe each other's binding.
package tenantctx

import (
	"context"

	"github.com/google/uuid"

	"github.com/numbersence/phase-zero-core/shared/models"
)

// PublicTenantID is the sentinel tenant bound when no tenant claim is
// present. It is a normal tenant value for policy purposes: only rows
// explicitly owned by it are visible to public callers.
var PublicTenantID = uuid.Nil

type contextKey struct{}

// TenantContext is the request-scoped isolation boundary derived from
// verified claims. It is immutable after creation and discarded with the
// request.
type TenantContext struct {
	TenantID   uuid.UUID
	TenantSlug string
	UserID     string
	Role       models.Role

	// Privilege flags, set only from verified role claims.
	IsPlatformAdmin bool
	IsSupportAccess bool

	// SupportSessionID is the active impersonation handle, when any.
	SupportSessionID string
}

// Public returns the context bound to the public sentinel tenant with no
// acting user and no privileges.
func Public() *TenantContext {
	return &TenantContext{TenantID: PublicTenantID}
}

// Privileged reports whether the context may bypass row isolation.
func (tc *TenantContext) Privileged() bool {
	return tc.IsPlatformAdmin || tc.IsSupportAccess
}

// WithContext returns a child context carrying tc.
func WithContext(ctx context.Context, tc *TenantContext) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext returns the tenant context for ctx. A context without a
// binding resolves to the public tenant, never to nil, so policy evaluation
// always has a deterministic comparison value.
func FromContext(ctx context.Context) *TenantContext {
	if tc, ok := ctx.Value(contextKey{}).(*TenantContext); ok && tc != nil {
		return tc
	}
	return Public()
}
