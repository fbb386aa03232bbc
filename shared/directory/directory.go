// Package directory is the ground truth for tenants and user-to-tenant role
// memberships. Lookups here run before a tenant is bound to the session, so
// the directory tables are not row-policed.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/numbersence/phase-zero-core/shared/models"
)

var (
	// ErrTenantNotFound is returned for unknown or inactive tenants.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrMembershipNotFound is returned when a user has no active membership
	// in the tenant.
	ErrMembershipNotFound = errors.New("membership not found")
	// ErrSlugTaken is returned when creating a tenant with an existing slug.
	ErrSlugTaken = errors.New("tenant slug already taken")
)

// Directory resolves tenants and memberships.
type Directory struct {
	db *gorm.DB
}

// New creates a tenant directory over the shared database
func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// GetBySlug looks up an active tenant by its URL slug.
func (d *Directory) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := d.db.WithContext(ctx).
		Where("slug = ? AND is_active = ?", slug, true).
		First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up tenant by slug: %w", err)
	}
	return &tenant, nil
}

// GetByID looks up a tenant by identifier, active or not.
func (d *Directory) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up tenant: %w", err)
	}
	return &tenant, nil
}

// MembershipFor returns the user's active membership in the tenant.
func (d *Directory) MembershipFor(ctx context.Context, userID string, tenantID uuid.UUID) (*models.UserTenant, error) {
	var membership models.UserTenant
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND tenant_id = ? AND is_active = ?", userID, tenantID, true).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up membership: %w", err)
	}
	return &membership, nil
}

// SupportMembership returns the user's membership in the tenant only when it
// grants valid, unexpired support access.
func (d *Directory) SupportMembership(ctx context.Context, userID string, tenantID uuid.UUID) (*models.UserTenant, error) {
	membership, err := d.MembershipFor(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if !membership.SupportAccessValid(time.Now()) {
		return nil, ErrMembershipNotFound
	}
	return membership, nil
}

// EnsureIndividualTenant resolves the user's personal tenant, creating the
// tenant and its owner membership on first use.
func (d *Directory) EnsureIndividualTenant(ctx context.Context, userID string) (*models.Tenant, *models.UserTenant, error) {
	var tenant models.Tenant
	err := d.db.WithContext(ctx).
		Where("owner_user_id = ? AND type = ? AND is_active = ?", userID, models.TenantTypeIndividual, true).
		First(&tenant).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		tenant = models.Tenant{
			ID:          uuid.New(),
			Slug:        individualSlug(userID),
			Name:        "Personal",
			Type:        models.TenantTypeIndividual,
			OwnerUserID: userID,
			IsActive:    true,
		}
		if err := d.db.WithContext(ctx).Create(&tenant).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to create individual tenant: %w", err)
		}
	} else if err != nil {
		return nil, nil, fmt.Errorf("failed to look up individual tenant: %w", err)
	}

	membership, err := d.MembershipFor(ctx, userID, tenant.ID)
	if errors.Is(err, ErrMembershipNotFound) {
		membership = &models.UserTenant{
			ID:       uuid.New(),
			UserID:   userID,
			TenantID: tenant.ID,
			Role:     models.RoleOwner,
			IsActive: true,
		}
		if err := d.db.WithContext(ctx).Create(membership).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to create owner membership: %w", err)
		}
	} else if err != nil {
		return nil, nil, err
	}

	return &tenant, membership, nil
}

// CreateTenant creates an organization tenant with an owner membership.
func (d *Directory) CreateTenant(ctx context.Context, slug, name, ownerUserID, settings string) (*models.Tenant, error) {
	var existing models.Tenant
	err := d.db.WithContext(ctx).Where("slug = ?", slug).First(&existing).Error
	if err == nil {
		return nil, ErrSlugTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}

	tenant := models.Tenant{
		ID:          uuid.New(),
		Slug:        slug,
		Name:        name,
		Type:        models.TenantTypeOrganization,
		OwnerUserID: ownerUserID,
		Settings:    settings,
		IsActive:    true,
	}

	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}
		return tx.Create(&models.UserTenant{
			ID:       uuid.New(),
			UserID:   ownerUserID,
			TenantID: tenant.ID,
			Role:     models.RoleOwner,
			IsActive: true,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	return &tenant, nil
}

// UserCount returns the number of active memberships in a tenant.
func (d *Directory) UserCount(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.UserTenant{}).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count tenant users: %w", err)
	}
	return count, nil
}

// individualSlug derives a URL-safe personal tenant slug from a user
// identifier.
func individualSlug(userID string) string {
	slug := strings.NewReplacer("@", "-", ".", "-", "_", "-").Replace(userID)
	if len(slug) > 50 {
		slug = slug[:50]
	}
	return "user-" + strings.ToLower(slug)
}
