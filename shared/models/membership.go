package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a user's role within a tenant, or a platform-wide staff role.
//
// PlatformAdmin and SupportAgent carry no implicit tenant binding: a platform
// admin elevates per session, and a support agent only reaches a tenant
// through an explicit, audited impersonation session.
type Role string

const (
	// Tenant-scoped roles
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"

	// Platform-scoped roles (internal staff)
	RolePlatformAdmin Role = "platform_admin"
	RoleSupportAgent  Role = "support_agent"
)

// PlatformScoped reports whether the role belongs to internal staff rather
// than to a single tenant.
func (r Role) PlatformScoped() bool {
	return r == RolePlatformAdmin || r == RoleSupportAgent
}

// CanManageTenant reports whether the role may change tenant settings and
// memberships.
func (r Role) CanManageTenant() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanWrite reports whether the role may mutate tenant data.
func (r Role) CanWrite() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleMember
}

// UserTenant links a user to a tenant with a role.
//
// At most one membership row exists per (user, tenant) pair. For support
// agents the row doubles as the support-access grant: access is only valid
// while SupportAccessEnabled is set and SupportAccessExpiresAt has not passed.
type UserTenant struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID   string    `json:"user_id" gorm:"type:varchar(255);not null;index;uniqueIndex:uq_user_tenant"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index;uniqueIndex:uq_user_tenant"`
	Role     Role      `json:"role" gorm:"type:varchar(20);not null;default:'member'"`

	SupportAccessEnabled   bool       `json:"support_access_enabled" gorm:"default:false"`
	SupportAccessExpiresAt *time.Time `json:"support_access_expires_at,omitempty"`
	SupportAccessGrantedBy string     `json:"support_access_granted_by,omitempty" gorm:"type:varchar(255)"`

	IsActive  bool      `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for the UserTenant model
func (UserTenant) TableName() string {
	return "user_tenants"
}

// SupportAccessValid reports whether the membership grants support access at
// the given instant.
func (ut *UserTenant) SupportAccessValid(now time.Time) bool {
	if !ut.IsActive || !ut.SupportAccessEnabled {
		return false
	}
	if ut.SupportAccessExpiresAt != nil && ut.SupportAccessExpiresAt.Before(now) {
		return false
	}
	return true
}
