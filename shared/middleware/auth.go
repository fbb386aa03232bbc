package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/numbersence/phase-zero-core/shared/auth"
	"github.com/numbersence/phase-zero-core/shared/directory"
	"github.com/numbersence/phase-zero-core/shared/models"
	"github.com/numbersence/phase-zero-core/shared/support"
	"github.com/numbersence/phase-zero-core/shared/tenantctx"
	"github.com/numbersence/phase-zero-core/shared/utils"
)

// Headers used for tenant selection and impersonation.
const (
	HeaderTenantSlug     = "X-Tenant-Slug"
	HeaderSupportSession = "X-Support-Session"
)

const claimsKey = "claims"

// AuthMiddleware converts verified credentials into a request-scoped tenant
// context and gates routes on roles.
type AuthMiddleware struct {
	verifier       auth.Verifier
	directory      *directory.Directory
	impersonations *support.Manager
	audit          support.Recorder
	requireAuth    bool
}

// NewAuthMiddleware creates the authentication middleware
func NewAuthMiddleware(verifier auth.Verifier, dir *directory.Directory, impersonations *support.Manager, audit support.Recorder, requireAuth bool) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:       verifier,
		directory:      dir,
		impersonations: impersonations,
		audit:          audit,
		requireAuth:    requireAuth,
	}
}

// RequireAuth validates the bearer credential and stores the verified claims
// on the request. Without a credential the request is rejected, or, when
// authentication is not required, bound to the public tenant.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			if am.requireAuth {
				utils.UnauthorizedResponse(c, "Authorization token required")
				c.Abort()
				return
			}
			// Public route: bind the sentinel tenant so downstream policy
			// evaluation has a deterministic value.
			c.Request = c.Request.WithContext(
				tenantctx.WithContext(c.Request.Context(), tenantctx.Public()))
			c.Next()
			return
		}

		claims, err := am.verifier.Verify(tokenString)
		if err != nil {
			utils.UnauthorizedResponse(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Set("user_id", claims.Subject)
		c.Set("role", string(claims.Role))

		c.Next()
	}
}

// ResolveTenant resolves the target tenant, verifies the caller may act as
// it, and installs the TenantContext on the request context. Runs after
// RequireAuth.
//
// Access flow: no slug resolves the caller's individual tenant; a slug
// resolves the organization. Platform admins bypass the membership check,
// support agents need an active impersonation session for this tenant, and
// everyone else needs an active membership.
func (am *AuthMiddleware) ResolveTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			// Public request, context already bound by RequireAuth.
			c.Next()
			return
		}

		ctx := c.Request.Context()
		tc := &tenantctx.TenantContext{
			UserID:          claims.Subject,
			Role:            claims.Role,
			IsPlatformAdmin: claims.Role == models.RolePlatformAdmin,
		}

		slug := c.GetHeader(HeaderTenantSlug)
		if slug == "" || slug == "personal" {
			tenant, membership, err := am.directory.EnsureIndividualTenant(ctx, claims.Subject)
			if err != nil {
				utils.InternalServerErrorResponse(c, "Failed to resolve personal tenant")
				c.Abort()
				return
			}
			tc.TenantID = tenant.ID
			tc.TenantSlug = tenant.Slug
			tc.Role = membership.Role

			am.install(c, tc)
			return
		}

		tenant, err := am.directory.GetBySlug(ctx, slug)
		if errors.Is(err, directory.ErrTenantNotFound) {
			utils.NotFoundResponse(c, "Tenant '"+slug+"' not found")
			c.Abort()
			return
		}
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to resolve tenant")
			c.Abort()
			return
		}

		tc.TenantID = tenant.ID
		tc.TenantSlug = tenant.Slug

		switch claims.Role {
		case models.RolePlatformAdmin:
			// Platform admin bypass: no membership needed.

		case models.RoleSupportAgent:
			if !am.bindSupportSession(c, tc, tenant) {
				return
			}

		default:
			membership, err := am.directory.MembershipFor(ctx, claims.Subject, tenant.ID)
			if errors.Is(err, directory.ErrMembershipNotFound) {
				utils.ForbiddenResponse(c, "You do not have access to tenant '"+slug+"'")
				c.Abort()
				return
			}
			if err != nil {
				utils.InternalServerErrorResponse(c, "Failed to verify tenant access")
				c.Abort()
				return
			}
			tc.Role = membership.Role
		}

		am.install(c, tc)
	}
}

// bindSupportSession validates the agent's impersonation handle against the
// resolved tenant and records the access. Reports whether resolution may
// continue.
func (am *AuthMiddleware) bindSupportSession(c *gin.Context, tc *tenantctx.TenantContext, tenant *models.Tenant) bool {
	sessionID := c.GetHeader(HeaderSupportSession)
	if sessionID == "" {
		utils.ForbiddenResponse(c, "Support access requires an active impersonation session")
		c.Abort()
		return false
	}

	session, err := am.impersonations.Get(c.Request.Context(), sessionID)
	if errors.Is(err, support.ErrImpersonationNotFound) || errors.Is(err, support.ErrImpersonationExpired) {
		utils.ForbiddenResponse(c, "Impersonation session expired or not found")
		c.Abort()
		return false
	}
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to validate impersonation session")
		c.Abort()
		return false
	}

	// A session is bound to exactly one tenant; it grants nothing elsewhere.
	if session.TenantID != tenant.ID || session.AgentID != tc.UserID {
		utils.ForbiddenResponse(c, "Impersonation session does not cover this tenant")
		c.Abort()
		return false
	}

	tc.IsSupportAccess = true
	tc.SupportSessionID = session.ID

	if err := am.audit.Record(c.Request.Context(), &models.SupportAccessLog{
		SupportUserID: tc.UserID,
		TenantID:      tenant.ID,
		Action:        models.AuditDataViewed,
		Reason:        session.Reason,
		IPAddress:     c.ClientIP(),
	}); err != nil {
		utils.InternalServerErrorResponse(c, "Failed to record support access")
		c.Abort()
		return false
	}

	return true
}

// install publishes the tenant context to the request and continues.
func (am *AuthMiddleware) install(c *gin.Context, tc *tenantctx.TenantContext) {
	c.Set("tenant_id", tc.TenantID.String())
	c.Request = c.Request.WithContext(tenantctx.WithContext(c.Request.Context(), tc))
	c.Next()
}

// RequireRole gates a route on tenant roles. Platform admins and active
// support sessions pass regardless of tenant role.
func (am *AuthMiddleware) RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := tenantctx.FromContext(c.Request.Context())
		if tc.Privileged() {
			c.Next()
			return
		}

		for _, role := range roles {
			if tc.Role == role {
				c.Next()
				return
			}
		}

		utils.ForbiddenResponse(c, "Insufficient permissions")
		c.Abort()
	}
}

// RequirePlatformAdmin gates a route on the platform_admin claim.
func (am *AuthMiddleware) RequirePlatformAdmin() gin.HandlerFunc {
	return am.requireClaimRole(models.RolePlatformAdmin)
}

// RequireSupportStaff gates a route on internal staff claims.
func (am *AuthMiddleware) RequireSupportStaff() gin.HandlerFunc {
	return am.requireClaimRole(models.RolePlatformAdmin, models.RoleSupportAgent)
}

// requireClaimRole checks the verified claim role, never the tenant role.
func (am *AuthMiddleware) requireClaimRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			utils.UnauthorizedResponse(c, "Authorization token required")
			c.Abort()
			return
		}

		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}

		utils.ForbiddenResponse(c, "Insufficient permissions")
		c.Abort()
	}
}

// GetClaims returns the verified claims stored by RequireAuth, or nil for
// public requests.
func GetClaims(c *gin.Context) *auth.Claims {
	if value, exists := c.Get(claimsKey); exists {
		if claims, ok := value.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return authHeader
}
