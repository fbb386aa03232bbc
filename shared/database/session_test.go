package database

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/numbersence/phase-zero-core/shared/models"
	"github.com/numbersence/phase-zero-core/shared/tenantctx"
)

// openTestDB connects to the database named by TEST_DATABASE_DSN and installs
// the row policies. The suite is skipped when no test database is available.
//
// The DSN must point at a non-superuser role, otherwise FORCE ROW LEVEL
// SECURITY does not apply and the isolation assertions are meaningless.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	t.Cleanup(func() {
		binder := NewBinder(db)
		_ = binder.Unscoped(context.Background(), func(tx *gorm.DB) error {
			tx.Exec("DELETE FROM transactions")
			tx.Exec("DELETE FROM linked_accounts")
			return nil
		})
		db.Exec("DELETE FROM user_tenants")
		db.Exec("DELETE FROM tenants")
	})

	return db
}

func seedAccount(t *testing.T, binder *Binder, tenantID uuid.UUID) *models.LinkedAccount {
	t.Helper()

	account := &models.LinkedAccount{
		ID:       uuid.New(),
		TenantID: tenantID,
		UserID:   "user-" + tenantID.String()[:8],
		ItemID:   "item-" + uuid.NewString(),
		IsActive: true,
	}

	ctx := tenantctx.WithContext(context.Background(), &tenantctx.TenantContext{TenantID: tenantID})
	require.NoError(t, binder.Isolated(ctx, func(tx *gorm.DB) error {
		return tx.Create(account).Error
	}))
	return account
}

func TestIsolatedScopesRowsToBoundTenant(t *testing.T) {
	db := openTestDB(t)
	binder := NewBinder(db)

	tenantA := uuid.New()
	tenantB := uuid.New()
	accountA := seedAccount(t, binder, tenantA)
	seedAccount(t, binder, tenantB)

	ctxA := tenantctx.WithContext(context.Background(), &tenantctx.TenantContext{TenantID: tenantA})

	var accounts []models.LinkedAccount
	require.NoError(t, binder.Isolated(ctxA, func(tx *gorm.DB) error {
		// No tenant filter: visibility comes from the row policy alone.
		return tx.Find(&accounts).Error
	}))

	require.Len(t, accounts, 1)
	require.Equal(t, accountA.ID, accounts[0].ID)
	require.Equal(t, tenantA, accounts[0].TenantID)
}

func TestIsolatedBlocksCrossTenantWrites(t *testing.T) {
	db := openTestDB(t)
	binder := NewBinder(db)

	tenantA := uuid.New()
	tenantB := uuid.New()

	ctxA := tenantctx.WithContext(context.Background(), &tenantctx.TenantContext{TenantID: tenantA})

	// An insert claiming another tenant violates the policy's check clause.
	err := binder.Isolated(ctxA, func(tx *gorm.DB) error {
		return tx.Create(&models.LinkedAccount{
			ID:       uuid.New(),
			TenantID: tenantB,
			UserID:   "intruder",
			ItemID:   "item-" + uuid.NewString(),
		}).Error
	})
	require.Error(t, err)
}

func TestDirectivesClearBetweenSessions(t *testing.T) {
	db := openTestDB(t)
	binder := NewBinder(db)

	tenantA := uuid.New()
	seedAccount(t, binder, tenantA)

	// A later session bound to a different tenant must not inherit tenant A's
	// directive, even when the pool hands back the same connection.
	ctxB := tenantctx.WithContext(context.Background(), &tenantctx.TenantContext{TenantID: uuid.New()})

	var count int64
	require.NoError(t, binder.Isolated(ctxB, func(tx *gorm.DB) error {
		return tx.Model(&models.LinkedAccount{}).Count(&count).Error
	}))
	require.Zero(t, count)
}

func TestPlatformAdminSeesAllTenants(t *testing.T) {
	db := openTestDB(t)
	binder := NewBinder(db)

	seedAccount(t, binder, uuid.New())
	seedAccount(t, binder, uuid.New())

	ctx := tenantctx.WithContext(context.Background(), &tenantctx.TenantContext{
		TenantID:        uuid.New(),
		IsPlatformAdmin: true,
	})

	var count int64
	require.NoError(t, binder.Isolated(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.LinkedAccount{}).Count(&count).Error
	}))
	require.EqualValues(t, 2, count)
}

func TestUnscopedBypassesRowPolicies(t *testing.T) {
	db := openTestDB(t)
	binder := NewBinder(db)

	seedAccount(t, binder, uuid.New())
	seedAccount(t, binder, uuid.New())

	var count int64
	require.NoError(t, binder.Unscoped(context.Background(), func(tx *gorm.DB) error {
		return tx.Model(&models.LinkedAccount{}).Count(&count).Error
	}))
	require.EqualValues(t, 2, count)
}

func TestTenantIDImmutable(t *testing.T) {
	db := openTestDB(t)
	binder := NewBinder(db)

	tenantA := uuid.New()
	account := seedAccount(t, binder, tenantA)

	ctxA := tenantctx.WithContext(context.Background(), &tenantctx.TenantContext{TenantID: tenantA})

	// Rebinding a row to another tenant is rejected by the trigger even for
	// the row's own tenant.
	err := binder.Isolated(ctxA, func(tx *gorm.DB) error {
		return tx.Model(&models.LinkedAccount{}).
			Where("id = ?", account.ID).
			Update("tenant_id", uuid.New()).Error
	})
	require.Error(t, err)
}

func TestIsolatedWithoutBindingSeesPublicOnly(t *testing.T) {
	db := openTestDB(t)
	binder := NewBinder(db)

	seedAccount(t, binder, uuid.New())

	// An unbound context resolves to the public sentinel tenant, which owns
	// no rows here.
	var count int64
	require.NoError(t, binder.Isolated(context.Background(), func(tx *gorm.DB) error {
		return tx.Model(&models.LinkedAccount{}).Count(&count).Error
	}))
	require.Zero(t, count)
}
