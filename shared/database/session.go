// Package database binds the request's tenant context to database sessions.
//
// Isolation is enforced by row policies in Postgres, keyed off session-local
// settings (app.current_tenant and the elevation flags). The binder's job is
// the directive lifecycle: set the settings on a pinned connection when a
// session is acquired, and always clear them before the connection goes back
// to the pool. A connection whose directives cannot be set or cleared is
// poisoned so the pool discards it rather than handing a stale tenant
// binding to the next request.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/numbersence/phase-zero-core/shared/tenantctx"
)

// ErrSessionDirective indicates the database rejected an isolation directive.
// This is a systemic misconfiguration: the session is discarded, never
// returned to the pool, and the request fails loudly.
var ErrSessionDirective = errors.New("session isolation directive failed")

// ErrSessionUnavailable indicates a session could not be acquired from the
// pool.
var ErrSessionUnavailable = errors.New("database session unavailable")

// Session-local settings read by the row policies.
const (
	settingCurrentTenant = "app.current_tenant"
	settingPlatformAdmin = "app.is_platform_admin"
	settingSupportAccess = "app.is_support_agent"
)

// Binder acquires database sessions bound to the caller's tenant context.
type Binder struct {
	db *gorm.DB
}

// NewBinder creates a session binder over the shared pool
func NewBinder(db *gorm.DB) *Binder {
	return &Binder{db: db}
}

// Isolated runs fn on a session whose row visibility is scoped to the tenant
// context carried by ctx. The directives are set before fn runs and cleared
// on every exit path, including fn returning an error or panicking.
//
// Business code inside fn never supplies tenant filters; the row policies
// evaluate every row against the session directive.
func (b *Binder) Isolated(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tc := tenantctx.FromContext(ctx)

	connErr := b.db.WithContext(ctx).Connection(func(conn *gorm.DB) (err error) {
		if derr := setDirectives(conn, tc); derr != nil {
			poisonConnection(conn)
			return fmt.Errorf("%w: %v", ErrSessionDirective, derr)
		}

		defer func() {
			if rerr := resetDirectives(conn); rerr != nil {
				// The connection still carries a tenant binding; it must not
				// be reused.
				poisonConnection(conn)
				logrus.WithError(rerr).WithField("tenant_id", tc.TenantID).
					Error("failed to clear session isolation directives, discarding connection")
				if err == nil {
					err = fmt.Errorf("%w: %v", ErrSessionDirective, rerr)
				}
			}
		}()

		return fn(conn)
	})

	// A bounded wait on an exhausted pool surfaces as the context error from
	// the acquisition itself, before fn ever ran.
	if connErr != nil && ctx.Err() != nil && errors.Is(connErr, ctx.Err()) {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, connErr)
	}
	return connErr
}

// Unscoped runs fn on a session with the bypass directive set, granting
// unrestricted row visibility. Reserved for privileged, audited code paths;
// callers must guarantee results never reach an unprivileged caller.
func (b *Binder) Unscoped(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return b.db.WithContext(ctx).Connection(func(conn *gorm.DB) (err error) {
		if derr := conn.Exec("SELECT set_config(?, 'on', false)", settingPlatformAdmin).Error; derr != nil {
			poisonConnection(conn)
			return fmt.Errorf("%w: %v", ErrSessionDirective, derr)
		}

		defer func() {
			if rerr := conn.Exec("RESET " + settingPlatformAdmin).Error; rerr != nil {
				poisonConnection(conn)
				logrus.WithError(rerr).Error("failed to clear bypass directive, discarding connection")
				if err == nil {
					err = fmt.Errorf("%w: %v", ErrSessionDirective, rerr)
				}
			}
		}()

		return fn(conn)
	})
}

// setDirectives binds the tenant context to the pinned connection.
func setDirectives(conn *gorm.DB, tc *tenantctx.TenantContext) error {
	if err := conn.Exec("SELECT set_config(?, ?, false)", settingCurrentTenant, tc.TenantID.String()).Error; err != nil {
		return err
	}
	if err := conn.Exec("SELECT set_config(?, ?, false)", settingPlatformAdmin, flag(tc.IsPlatformAdmin)).Error; err != nil {
		return err
	}
	return conn.Exec("SELECT set_config(?, ?, false)", settingSupportAccess, flag(tc.IsSupportAccess)).Error
}

// resetDirectives returns the connection to the unset default state.
func resetDirectives(conn *gorm.DB) error {
	for _, setting := range []string{settingCurrentTenant, settingPlatformAdmin, settingSupportAccess} {
		if err := conn.Exec("RESET " + setting).Error; err != nil {
			return err
		}
	}
	return nil
}

// poisonConnection marks the pinned connection bad so database/sql discards
// it instead of returning it to the pool.
func poisonConnection(conn *gorm.DB) {
	if sqlConn, ok := conn.Statement.ConnPool.(*sql.Conn); ok {
		_ = sqlConn.Raw(func(interface{}) error { return driver.ErrBadConn })
	}
}

func flag(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
