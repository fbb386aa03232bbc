package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantType distinguishes organizations from personal tenants.
type TenantType string

const (
	TenantTypeOrganization TenantType = "organization"
	TenantTypeIndividual   TenantType = "individual"
)

// Tenant represents an organization or an individual tenant.
//
// The slug is the routing key: URL-safe, unique, and immutable once routed.
// Individual tenants are auto-created personal tenants owned by one user.
type Tenant struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Slug        string     `json:"slug" gorm:"type:varchar(63);not null;uniqueIndex"`
	Name        string     `json:"name" gorm:"type:varchar(255);not null"`
	Type        TenantType `json:"type" gorm:"type:varchar(20);not null;default:'organization'"`
	OwnerUserID string     `json:"owner_user_id,omitempty" gorm:"type:varchar(255);index"`
	IsActive    bool       `json:"is_active" gorm:"default:true"`
	Settings    string     `json:"settings,omitempty" gorm:"type:text"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relationships
	Memberships []UserTenant `json:"memberships,omitempty" gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for the Tenant model
func (Tenant) TableName() string {
	return "tenants"
}
