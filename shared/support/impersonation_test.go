package support

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numbersence/phase-zero-core/shared/models"
)

// recorderStub captures audit entries in memory.
type recorderStub struct {
	entries []*models.SupportAccessLog
	err     error
}

func (r *recorderStub) Record(_ context.Context, entry *models.SupportAccessLog) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *recorderStub) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	recorder := &recorderStub{}
	return NewManager(rdb, recorder, time.Hour), recorder
}

func activeTenant() *models.Tenant {
	return &models.Tenant{
		ID:       uuid.New(),
		Slug:     "acme",
		Name:     "Acme Corp",
		Type:     models.TenantTypeOrganization,
		IsActive: true,
	}
}

func TestImpersonationLifecycle(t *testing.T) {
	m, recorder := newTestManager(t)
	ctx := context.Background()
	tenant := activeTenant()

	session, err := m.Start(ctx, "agent-1", models.RolePlatformAdmin, tenant, nil, "billing dispute", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, session.TenantID)
	assert.Equal(t, "billing dispute", session.Reason)

	got, err := m.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	_, err = m.End(ctx, "agent-1", models.RolePlatformAdmin, session.ID, "10.0.0.1")
	require.NoError(t, err)

	// Ended handles are invalid immediately.
	_, err = m.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrImpersonationNotFound)

	// Exactly one start and one end entry.
	require.Len(t, recorder.entries, 2)
	assert.Equal(t, models.AuditImpersonationStarted, recorder.entries[0].Action)
	assert.Equal(t, models.AuditImpersonationEnded, recorder.entries[1].Action)
}

func TestStartRejectsInactiveTenant(t *testing.T) {
	m, recorder := newTestManager(t)
	tenant := activeTenant()
	tenant.IsActive = false

	_, err := m.Start(context.Background(), "agent-1", models.RolePlatformAdmin, tenant, nil, "reason", "")
	assert.ErrorIs(t, err, ErrTenantInactive)
	assert.Empty(t, recorder.entries)
}

func TestStartRequiresSupportGrantForAgents(t *testing.T) {
	m, _ := newTestManager(t)
	tenant := activeTenant()

	_, err := m.Start(context.Background(), "agent-1", models.RoleSupportAgent, tenant, nil, "reason", "")
	assert.ErrorIs(t, err, ErrSupportAccessDenied)

	disabled := &models.UserTenant{IsActive: true, SupportAccessEnabled: false}
	_, err = m.Start(context.Background(), "agent-1", models.RoleSupportAgent, tenant, disabled, "reason", "")
	assert.ErrorIs(t, err, ErrSupportAccessDenied)
}

func TestStartClampsExpiryToGrant(t *testing.T) {
	m, _ := newTestManager(t)
	tenant := activeTenant()

	grantExpiry := time.Now().UTC().Add(10 * time.Minute)
	membership := &models.UserTenant{
		IsActive:               true,
		SupportAccessEnabled:   true,
		SupportAccessExpiresAt: &grantExpiry,
	}

	session, err := m.Start(context.Background(), "agent-1", models.RoleSupportAgent, tenant, membership, "reason", "")
	require.NoError(t, err)
	assert.True(t, session.ExpiresAt.Equal(grantExpiry),
		"session expiry %v should be clamped to grant expiry %v", session.ExpiresAt, grantExpiry)
}

func TestGetExpiredSession(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	session, err := m.Start(ctx, "agent-1", models.RolePlatformAdmin, activeTenant(), nil, "reason", "")
	require.NoError(t, err)

	// Stored expiry has passed even though the Redis TTL has not fired yet.
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = m.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrImpersonationExpired)

	// Expired handles are removed on first sight.
	m.now = time.Now
	_, err = m.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrImpersonationNotFound)
}

func TestEndOwnership(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	session, err := m.Start(ctx, "agent-1", models.RolePlatformAdmin, activeTenant(), nil, "reason", "")
	require.NoError(t, err)

	_, err = m.End(ctx, "agent-2", models.RoleSupportAgent, session.ID, "")
	assert.ErrorIs(t, err, ErrNotSessionOwner)

	// Platform admins may end any agent's session.
	_, err = m.End(ctx, "admin-1", models.RolePlatformAdmin, session.ID, "")
	assert.NoError(t, err)
}

func TestStartRollsBackWhenAuditFails(t *testing.T) {
	m, recorder := newTestManager(t)
	recorder.err = errors.New("audit store down")

	session, err := m.Start(context.Background(), "agent-1", models.RolePlatformAdmin, activeTenant(), nil, "reason", "")
	require.Error(t, err)
	require.Nil(t, session)

	// No audit row, no session: nothing usable was left behind.
	sessions, err := m.ListActive(context.Background(), "agent-1", models.RolePlatformAdmin)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestListActiveScopedToAgent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	s1, err := m.Start(ctx, "agent-1", models.RolePlatformAdmin, activeTenant(), nil, "reason", "")
	require.NoError(t, err)
	_, err = m.Start(ctx, "agent-2", models.RolePlatformAdmin, activeTenant(), nil, "reason", "")
	require.NoError(t, err)

	mine, err := m.ListActive(ctx, "agent-1", models.RoleSupportAgent)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, s1.ID, mine[0].ID)

	all, err := m.ListActive(ctx, "admin-1", models.RolePlatformAdmin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
