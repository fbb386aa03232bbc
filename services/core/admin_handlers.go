package main

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/numbersence/phase-zero-core/shared/directory"
	"github.com/numbersence/phase-zero-core/shared/middleware"
	"github.com/numbersence/phase-zero-core/shared/models"
	"github.com/numbersence/phase-zero-core/shared/support"
	"github.com/numbersence/phase-zero-core/shared/utils"
)

// CreateTenantRequest represents the create organization request
type CreateTenantRequest struct {
	Name             string `json:"name" binding:"required"`
	Slug             string `json:"slug" binding:"required"`
	OwnerEmail       string `json:"owner_email" binding:"required,email"`
	SubscriptionTier string `json:"subscription_tier"`
}

// UpdateTenantRequest represents the update tenant request
type UpdateTenantRequest struct {
	Name             *string `json:"name"`
	SubscriptionTier *string `json:"subscription_tier"`
	IsActive         *bool   `json:"is_active"`
}

// TenantResponse is the admin console view of a tenant
type TenantResponse struct {
	models.Tenant
	UserCount int64 `json:"user_count"`
}

// handleListTenants lists organization tenants with pagination and search.
func handleListTenants(db *gorm.DB, dir *directory.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := paginationParams(c)

		query := db.WithContext(c.Request.Context()).
			Model(&models.Tenant{}).
			Where("type = ?", models.TenantTypeOrganization)

		if search := c.Query("search"); search != "" {
			pattern := "%" + search + "%"
			query = query.Where("name ILIKE ? OR slug ILIKE ?", pattern, pattern)
		}

		var total int64
		if err := query.Count(&total).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to count tenants")
			return
		}

		var tenants []models.Tenant
		err := query.
			Order("created_at DESC").
			Offset((page - 1) * pageSize).
			Limit(pageSize).
			Find(&tenants).Error
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to fetch tenants")
			return
		}

		items := make([]TenantResponse, 0, len(tenants))
		for _, tenant := range tenants {
			count, err := dir.UserCount(c.Request.Context(), tenant.ID)
			if err != nil {
				utils.InternalServerErrorResponse(c, "Failed to count tenant users")
				return
			}
			items = append(items, TenantResponse{Tenant: tenant, UserCount: count})
		}

		utils.OKResponse(c, "Tenants retrieved successfully", PaginatedResponse{
			Items:      items,
			Total:      total,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages(total, pageSize),
		})
	}
}

// handleCreateTenant creates an organization tenant with an owner membership.
func handleCreateTenant(dir *directory.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTenantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		tier := req.SubscriptionTier
		if tier == "" {
			tier = "pro"
		}

		tenant, err := dir.CreateTenant(c.Request.Context(), req.Slug, req.Name, req.OwnerEmail, tier)
		if errors.Is(err, directory.ErrSlugTaken) {
			utils.ConflictResponse(c, "Slug '"+req.Slug+"' is already taken")
			return
		}
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to create tenant")
			return
		}

		utils.CreatedResponse(c, "Tenant created successfully", TenantResponse{Tenant: *tenant, UserCount: 1})
	}
}

// handleGetTenant returns one tenant's details.
func handleGetTenant(dir *directory.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			utils.BadRequestResponse(c, "Invalid tenant id")
			return
		}

		tenant, err := dir.GetByID(c.Request.Context(), tenantID)
		if errors.Is(err, directory.ErrTenantNotFound) {
			utils.NotFoundResponse(c, "Tenant not found")
			return
		}
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to fetch tenant")
			return
		}

		count, err := dir.UserCount(c.Request.Context(), tenant.ID)
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to count tenant users")
			return
		}

		utils.OKResponse(c, "Tenant retrieved successfully", TenantResponse{Tenant: *tenant, UserCount: count})
	}
}

// handleUpdateTenant updates a tenant's details. Mutating admin actions are
// audited.
func handleUpdateTenant(db *gorm.DB, audit *support.AuditLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			utils.BadRequestResponse(c, "Invalid tenant id")
			return
		}

		var tenant models.Tenant
		if err := db.WithContext(c.Request.Context()).Where("id = ?", tenantID).First(&tenant).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.NotFoundResponse(c, "Tenant not found")
			} else {
				utils.InternalServerErrorResponse(c, "Failed to fetch tenant")
			}
			return
		}

		var req UpdateTenantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		if req.Name != nil {
			tenant.Name = *req.Name
		}
		if req.SubscriptionTier != nil {
			tenant.Settings = *req.SubscriptionTier
		}
		if req.IsActive != nil {
			tenant.IsActive = *req.IsActive
		}
		tenant.UpdatedAt = time.Now().UTC()

		if err := db.WithContext(c.Request.Context()).Save(&tenant).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to update tenant")
			return
		}

		if err := recordAdminAction(c, audit, tenant.ID, models.AuditTenantUpdated); err != nil {
			utils.InternalServerErrorResponse(c, "Failed to record admin action")
			return
		}

		utils.OKResponse(c, "Tenant updated successfully", tenant)
	}
}

// handleDeactivateTenant soft-deletes a tenant.
func handleDeactivateTenant(db *gorm.DB, audit *support.AuditLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			utils.BadRequestResponse(c, "Invalid tenant id")
			return
		}

		var tenant models.Tenant
		if err := db.WithContext(c.Request.Context()).Where("id = ?", tenantID).First(&tenant).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.NotFoundResponse(c, "Tenant not found")
			} else {
				utils.InternalServerErrorResponse(c, "Failed to fetch tenant")
			}
			return
		}

		tenant.IsActive = false
		tenant.UpdatedAt = time.Now().UTC()

		if err := db.WithContext(c.Request.Context()).Save(&tenant).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to deactivate tenant")
			return
		}

		if err := recordAdminAction(c, audit, tenant.ID, models.AuditTenantDeactivated); err != nil {
			utils.InternalServerErrorResponse(c, "Failed to record admin action")
			return
		}

		utils.OKResponse(c, "Tenant deactivated successfully", gin.H{"tenant_id": tenantID})
	}
}

// recordAdminAction writes the audit entry for a mutating platform-admin
// action.
func recordAdminAction(c *gin.Context, audit *support.AuditLog, tenantID uuid.UUID, action string) error {
	claims := middleware.GetClaims(c)
	return audit.Record(c.Request.Context(), &models.SupportAccessLog{
		SupportUserID: claims.Subject,
		TenantID:      tenantID,
		Action:        action,
		IPAddress:     c.ClientIP(),
	})
}
