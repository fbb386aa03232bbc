package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/numbersence/phase-zero-core/shared/models"
)

// protectedTables carry a tenant_id column and a row policy. Directory and
// audit tables (tenants, user_tenants, support_access_logs) are ground truth
// for tenant resolution and are deliberately not row-policed: resolution has
// to work before a tenant is bound.
var protectedTables = []string{
	"linked_accounts",
	"transactions",
}

// rowPolicyPredicate is evaluated by Postgres for every row touched, on reads
// and writes alike. A row is visible (or writable) when its tenant matches
// the session directive, or when an elevation flag is set on the session.
const rowPolicyPredicate = `tenant_id = NULLIF(current_setting('app.current_tenant', true), '')::uuid` +
	` OR current_setting('app.is_platform_admin', true) = 'on'` +
	` OR current_setting('app.is_support_agent', true) = 'on'`

// tenantImmutableFn rejects any update that would move a row across tenant
// boundaries.
const tenantImmutableFn = `
CREATE OR REPLACE FUNCTION enforce_tenant_id_immutable() RETURNS trigger AS $$
BEGIN
    IF NEW.tenant_id IS DISTINCT FROM OLD.tenant_id THEN
        RAISE EXCEPTION 'tenant_id is immutable';
    END IF;
    RETURN NEW;
END
$$ LANGUAGE plpgsql`

// Migrate creates the schema and installs the row policies.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Tenant{},
		&models.UserTenant{},
		&models.SupportAccessLog{},
		&models.LinkedAccount{},
		&models.Transaction{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	return ApplyRowPolicies(db)
}

// ApplyRowPolicies enables row-level security on every protected table and
// (re)creates the tenant isolation policy and the tenant_id immutability
// trigger. Idempotent.
//
// FORCE keeps the policy in effect even when the application connects as the
// table owner, so a session without directives sees no protected rows at all.
func ApplyRowPolicies(db *gorm.DB) error {
	if err := db.Exec(tenantImmutableFn).Error; err != nil {
		return fmt.Errorf("failed to create tenant immutability function: %w", err)
	}

	for _, table := range protectedTables {
		stmts := []string{
			fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", table),
			fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY", table),
			fmt.Sprintf("DROP POLICY IF EXISTS tenant_isolation ON %s", table),
			fmt.Sprintf(
				"CREATE POLICY tenant_isolation ON %s USING (%s) WITH CHECK (%s)",
				table, rowPolicyPredicate, rowPolicyPredicate,
			),
			fmt.Sprintf("DROP TRIGGER IF EXISTS %s_tenant_id_immutable ON %s", table, table),
			fmt.Sprintf(
				"CREATE TRIGGER %s_tenant_id_immutable BEFORE UPDATE ON %s FOR EACH ROW EXECUTE FUNCTION enforce_tenant_id_immutable()",
				table, table,
			),
		}

		for _, stmt := range stmts {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to apply row policy on %s: %w", table, err)
			}
		}
	}

	return nil
}
