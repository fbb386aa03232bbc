// Package support implements the privileged access paths: platform-admin
// elevation, time-boxed support impersonation, and the audit trail every
// bypass leaves behind.
package support

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/numbersence/phase-zero-core/shared/models"
)

// Recorder writes audit entries. Split out so the impersonation manager can
// be tested without a database.
type Recorder interface {
	Record(ctx context.Context, entry *models.SupportAccessLog) error
}

// AuditLog writes privileged-access events synchronously to Postgres and
// mirrors them to Kafka for downstream compliance tooling.
type AuditLog struct {
	db     *gorm.DB
	events *AuditEventProducer // optional
}

// NewAuditLog creates the audit log writer. events may be nil when no broker
// is configured.
func NewAuditLog(db *gorm.DB, events *AuditEventProducer) *AuditLog {
	return &AuditLog{db: db, events: events}
}

// Record appends one audit entry. The database write is synchronous: a
// privileged action without its audit row must not proceed. The Kafka mirror
// is best effort and never blocks or fails the write.
func (a *AuditLog) Record(ctx context.Context, entry *models.SupportAccessLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err := a.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	if a.events != nil {
		a.events.Publish(AuditEvent{
			ID:            entry.ID.String(),
			SupportUserID: entry.SupportUserID,
			TenantID:      entry.TenantID.String(),
			Action:        entry.Action,
			Reason:        entry.Reason,
			IPAddress:     entry.IPAddress,
			CreatedAt:     entry.CreatedAt,
		})
	}

	return nil
}

// AuditQuery filters audit log reads.
type AuditQuery struct {
	// RequestedBy scopes results: support agents only see their own entries,
	// platform admins see everything.
	RequestedBy   string
	RequesterRole models.Role
	TenantID      uuid.UUID // optional, Nil means all tenants
	Limit         int
}

// List reads audit entries, newest first. Read-only, no side effects.
func (a *AuditLog) List(ctx context.Context, q AuditQuery) ([]models.SupportAccessLog, error) {
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := a.db.WithContext(ctx).Model(&models.SupportAccessLog{}).
		Order("created_at DESC").
		Limit(limit)

	if q.RequesterRole != models.RolePlatformAdmin {
		query = query.Where("support_user_id = ?", q.RequestedBy)
	}
	if q.TenantID != uuid.Nil {
		query = query.Where("tenant_id = ?", q.TenantID)
	}

	var entries []models.SupportAccessLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return entries, nil
}
