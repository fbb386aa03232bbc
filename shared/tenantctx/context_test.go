package tenantctx

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numbersence/phase-zero-core/shared/models"
)

func TestFromContextFallsBackToPublic(t *testing.T) {
	tc := FromContext(context.Background())
	require.NotNil(t, tc)
	assert.Equal(t, PublicTenantID, tc.TenantID)
	assert.False(t, tc.Privileged())
}

func TestWithContextRoundTrip(t *testing.T) {
	tenantID := uuid.New()
	ctx := WithContext(context.Background(), &TenantContext{
		TenantID:   tenantID,
		TenantSlug: "acme",
		UserID:     "user-1",
		Role:       models.RoleAdmin,
	})

	tc := FromContext(ctx)
	assert.Equal(t, tenantID, tc.TenantID)
	assert.Equal(t, "acme", tc.TenantSlug)
	assert.Equal(t, models.RoleAdmin, tc.Role)
	assert.False(t, tc.Privileged())
}

func TestPrivilegedFlags(t *testing.T) {
	assert.True(t, (&TenantContext{IsPlatformAdmin: true}).Privileged())
	assert.True(t, (&TenantContext{IsSupportAccess: true}).Privileged())
	assert.False(t, (&TenantContext{Role: models.RoleOwner}).Privileged())
}

// Concurrent requests must never observe each other's binding: the value
// travels on the context alone.
func TestConcurrentContextsStayIsolated(t *testing.T) {
	const workers = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tenantID := uuid.New()
			ctx := WithContext(context.Background(), &TenantContext{TenantID: tenantID})
			for j := 0; j < 100; j++ {
				if FromContext(ctx).TenantID != tenantID {
					t.Errorf("tenant binding leaked across goroutines")
					return
				}
			}
		}()
	}
	wg.Wait()
}
