package main

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/numbersence/phase-zero-core/shared/directory"
	"github.com/numbersence/phase-zero-core/shared/middleware"
	"github.com/numbersence/phase-zero-core/shared/models"
	"github.com/numbersence/phase-zero-core/shared/support"
	"github.com/numbersence/phase-zero-core/shared/utils"
)

// StartImpersonationRequest carries the mandatory justification for opening a
// support session.
type StartImpersonationRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// handleStartImpersonation opens a time-boxed impersonation session against a
// tenant.
func handleStartImpersonation(dir *directory.Directory, impersonations *support.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := uuid.Parse(c.Param("tenant_id"))
		if err != nil {
			utils.BadRequestResponse(c, "Invalid tenant id")
			return
		}

		var req StartImpersonationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "A reason is required to impersonate a tenant")
			return
		}

		claims := middleware.GetClaims(c)

		tenant, err := dir.GetByID(c.Request.Context(), tenantID)
		if errors.Is(err, directory.ErrTenantNotFound) {
			utils.NotFoundResponse(c, "Tenant not found")
			return
		}
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to resolve tenant")
			return
		}

		// Support agents need an explicit support grant; platform admins do
		// not. A missing grant surfaces as access denied inside Start.
		var membership *models.UserTenant
		if claims.Role != models.RolePlatformAdmin {
			membership, err = dir.SupportMembership(c.Request.Context(), claims.Subject, tenant.ID)
			if err != nil && !errors.Is(err, directory.ErrMembershipNotFound) {
				utils.InternalServerErrorResponse(c, "Failed to verify support access")
				return
			}
		}

		session, err := impersonations.Start(c.Request.Context(), claims.Subject, claims.Role, tenant, membership, req.Reason, c.ClientIP())
		switch {
		case errors.Is(err, support.ErrTenantInactive):
			utils.BadRequestResponse(c, "Cannot impersonate an inactive tenant")
			return
		case errors.Is(err, support.ErrSupportAccessDenied):
			utils.ForbiddenResponse(c, "Support access has not been granted for this tenant")
			return
		case err != nil:
			utils.InternalServerErrorResponse(c, "Failed to start impersonation session")
			return
		}

		utils.CreatedResponse(c, "Impersonation session started", session)
	}
}

// handleEndImpersonation closes an impersonation session.
func handleEndImpersonation(impersonations *support.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)

		session, err := impersonations.End(c.Request.Context(), claims.Subject, claims.Role, c.Param("session_id"), c.ClientIP())
		switch {
		case errors.Is(err, support.ErrImpersonationNotFound), errors.Is(err, support.ErrImpersonationExpired):
			utils.NotFoundResponse(c, "Impersonation session not found")
			return
		case errors.Is(err, support.ErrNotSessionOwner):
			utils.ForbiddenResponse(c, "You can only end your own sessions")
			return
		case err != nil:
			utils.InternalServerErrorResponse(c, "Failed to end impersonation session")
			return
		}

		utils.OKResponse(c, "Impersonation session ended", gin.H{
			"session_id": session.ID,
			"tenant_id":  session.TenantID,
		})
	}
}

// handleListSessions lists the caller's active impersonation sessions.
// Platform admins see every agent's sessions.
func handleListSessions(impersonations *support.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)

		sessions, err := impersonations.ListActive(c.Request.Context(), claims.Subject, claims.Role)
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to list impersonation sessions")
			return
		}

		utils.OKResponse(c, "Active sessions retrieved successfully", sessions)
	}
}

// handleAuditLog reads the support access trail. Support agents only see
// their own entries.
func handleAuditLog(audit *support.AuditLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)

		q := support.AuditQuery{
			RequestedBy:   claims.Subject,
			RequesterRole: claims.Role,
		}

		if raw := c.Query("tenant_id"); raw != "" {
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				utils.BadRequestResponse(c, "Invalid tenant id")
				return
			}
			q.TenantID = tenantID
		}
		if raw := c.Query("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil {
				utils.BadRequestResponse(c, "Invalid limit")
				return
			}
			q.Limit = limit
		}

		entries, err := audit.List(c.Request.Context(), q)
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to read audit log")
			return
		}

		utils.OKResponse(c, "Audit log retrieved successfully", entries)
	}
}
