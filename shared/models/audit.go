package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit action tags written to support_access_logs.
const (
	AuditImpersonationStarted = "impersonation_started"
	AuditImpersonationEnded   = "impersonation_ended"
	AuditDataViewed           = "data_viewed"
	AuditTenantUpdated        = "tenant_updated"
	AuditTenantDeactivated    = "tenant_deactivated"
)

// SupportAccessLog is one append-only record of privileged access to a
// tenant. Rows are never updated or deleted by the application.
type SupportAccessLog struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SupportUserID string    `json:"support_user_id" gorm:"type:varchar(255);not null;index"`
	TenantID      uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index:ix_support_access_logs_tenant_time"`
	Action        string    `json:"action" gorm:"type:varchar(50);not null"`
	Reason        string    `json:"reason,omitempty" gorm:"type:text"`
	IPAddress     string    `json:"ip_address,omitempty" gorm:"type:varchar(45)"`
	CreatedAt     time.Time `json:"created_at" gorm:"index:ix_support_access_logs_tenant_time"`
}

// TableName returns the table name for the SupportAccessLog model
func (SupportAccessLog) TableName() string {
	return "support_access_logs"
}
