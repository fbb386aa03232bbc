package support

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/numbersence/phase-zero-core/shared/models"
)

var (
	// ErrImpersonationNotFound is returned for unknown or already-ended
	// session handles.
	ErrImpersonationNotFound = errors.New("impersonation session not found")
	// ErrImpersonationExpired is returned when the handle's expiry has
	// passed.
	ErrImpersonationExpired = errors.New("impersonation session expired")
	// ErrSupportAccessDenied is returned when the agent has no valid support
	// grant for the target tenant.
	ErrSupportAccessDenied = errors.New("support access not granted for this tenant")
	// ErrNotSessionOwner is returned when an agent tries to end a session
	// they do not own.
	ErrNotSessionOwner = errors.New("cannot end another agent's session")
	// ErrTenantInactive is returned when impersonating a deactivated tenant.
	ErrTenantInactive = errors.New("cannot impersonate an inactive tenant")
)

const sessionKeyPrefix = "support:session:"

// Session is a time-boxed impersonation handle against one target tenant.
// Lifecycle: Created -> Active -> Ended|Expired, both terminal. Expiry is
// enforced twice: by the Redis TTL and by the stored timestamp.
type Session struct {
	ID         string      `json:"id"`
	AgentID    string      `json:"agent_id"`
	AgentRole  models.Role `json:"agent_role"`
	TenantID   uuid.UUID   `json:"tenant_id"`
	TenantSlug string      `json:"tenant_slug"`
	TenantName string      `json:"tenant_name"`
	Reason     string      `json:"reason"`
	StartedAt  time.Time   `json:"started_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// Expired reports whether the session's expiry has passed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Manager owns the impersonation session lifecycle. Sessions live in Redis
// so any instance behind the load balancer can validate a handle.
type Manager struct {
	rdb        *redis.Client
	audit      Recorder
	defaultTTL time.Duration
	now        func() time.Time
}

// NewManager creates an impersonation manager
func NewManager(rdb *redis.Client, audit Recorder, defaultTTL time.Duration) *Manager {
	return &Manager{
		rdb:        rdb,
		audit:      audit,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Start opens an impersonation session against the tenant and writes the
// corresponding audit entry.
//
// Support agents need a membership with a valid, unexpired support grant;
// the session expiry is clamped to the grant's expiry. Platform admins may
// start sessions without a membership.
func (m *Manager) Start(ctx context.Context, agentID string, agentRole models.Role, tenant *models.Tenant, membership *models.UserTenant, reason, ipAddress string) (*Session, error) {
	if !tenant.IsActive {
		return nil, ErrTenantInactive
	}

	now := m.now().UTC()
	expiresAt := now.Add(m.defaultTTL)

	if agentRole != models.RolePlatformAdmin {
		if membership == nil || !membership.SupportAccessValid(now) {
			return nil, ErrSupportAccessDenied
		}
		if membership.SupportAccessExpiresAt != nil && membership.SupportAccessExpiresAt.Before(expiresAt) {
			expiresAt = *membership.SupportAccessExpiresAt
		}
	}

	session := &Session{
		ID:         uuid.New().String(),
		AgentID:    agentID,
		AgentRole:  agentRole,
		TenantID:   tenant.ID,
		TenantSlug: tenant.Slug,
		TenantName: tenant.Name,
		Reason:     reason,
		StartedAt:  now,
		ExpiresAt:  expiresAt,
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal impersonation session: %w", err)
	}

	if err := m.rdb.Set(ctx, sessionKeyPrefix+session.ID, payload, expiresAt.Sub(now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to store impersonation session: %w", err)
	}

	if err := m.audit.Record(ctx, &models.SupportAccessLog{
		SupportUserID: agentID,
		TenantID:      tenant.ID,
		Action:        models.AuditImpersonationStarted,
		Reason:        reason,
		IPAddress:     ipAddress,
	}); err != nil {
		// No audit row, no session.
		m.rdb.Del(ctx, sessionKeyPrefix+session.ID)
		return nil, err
	}

	return session, nil
}

// Get validates a session handle. Ended handles report not-found; handles
// past their expiry report expired and are removed.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	payload, err := m.rdb.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrImpersonationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load impersonation session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal impersonation session: %w", err)
	}

	if session.Expired(m.now()) {
		m.rdb.Del(ctx, sessionKeyPrefix+sessionID)
		return nil, ErrImpersonationExpired
	}

	return &session, nil
}

// End closes a session, writes the audit entry, and invalidates the handle.
// Agents may only end their own sessions; platform admins may end any.
func (m *Manager) End(ctx context.Context, agentID string, agentRole models.Role, sessionID, ipAddress string) (*Session, error) {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.AgentID != agentID && agentRole != models.RolePlatformAdmin {
		return nil, ErrNotSessionOwner
	}

	if err := m.audit.Record(ctx, &models.SupportAccessLog{
		SupportUserID: agentID,
		TenantID:      session.TenantID,
		Action:        models.AuditImpersonationEnded,
		Reason:        session.Reason,
		IPAddress:     ipAddress,
	}); err != nil {
		return nil, err
	}

	if err := m.rdb.Del(ctx, sessionKeyPrefix+sessionID).Err(); err != nil {
		return nil, fmt.Errorf("failed to invalidate impersonation session: %w", err)
	}

	return session, nil
}

// ListActive returns the caller's active sessions; platform admins see all
// agents' sessions. Read-only.
func (m *Manager) ListActive(ctx context.Context, agentID string, agentRole models.Role) ([]Session, error) {
	keys, err := m.rdb.Keys(ctx, sessionKeyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan impersonation sessions: %w", err)
	}

	now := m.now()
	sessions := make([]Session, 0, len(keys))
	for _, key := range keys {
		payload, err := m.rdb.Get(ctx, key).Result()
		if err != nil {
			continue
		}

		var session Session
		if json.Unmarshal([]byte(payload), &session) != nil {
			continue
		}
		if session.Expired(now) {
			continue
		}
		if agentRole != models.RolePlatformAdmin && session.AgentID != agentID {
			continue
		}

		sessions = append(sessions, session)
	}

	return sessions, nil
}
