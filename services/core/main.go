package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/numbersence/phase-zero-core/shared/auth"
	"github.com/numbersence/phase-zero-core/shared/config"
	"github.com/numbersence/phase-zero-core/shared/database"
	"github.com/numbersence/phase-zero-core/shared/directory"
	"github.com/numbersence/phase-zero-core/shared/middleware"
	"github.com/numbersence/phase-zero-core/shared/models"
	"github.com/numbersence/phase-zero-core/shared/support"
	"github.com/numbersence/phase-zero-core/shared/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	cfg := config.Load()

	// Initialize database and install row policies
	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis for impersonation sessions
	rdb, err := utils.NewRedisClient()
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Audit trail: synchronous Postgres writes mirrored to Kafka
	auditEvents := support.NewAuditEventProducer(cfg.KafkaBroker, cfg.AuditTopic)
	defer auditEvents.Close()
	audit := support.NewAuditLog(db, auditEvents)

	dir := directory.New(db)
	impersonations := support.NewManager(rdb, audit, cfg.ImpersonationTTL)
	binder := database.NewBinder(db)

	// Credential verifier: JWKS key set when configured, shared secret
	// otherwise.
	var verifier auth.Verifier
	if cfg.JWKSURL != "" {
		verifier = auth.NewJWKSVerifier(cfg.JWKSURL)
	} else {
		verifier = auth.NewHSVerifier(cfg.JWTSecret)
	}

	am := middleware.NewAuthMiddleware(verifier, dir, impersonations, audit, cfg.RequireAuth)

	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Core service is healthy", nil)
	})

	// Tenant-scoped business routes: every database session acquired below
	// is bound to the resolved tenant.
	api := router.Group("/api/v1")
	api.Use(am.RequireAuth(), am.ResolveTenant())
	{
		api.GET("/accounts", handleListAccounts(binder))
		api.POST("/accounts", am.RequireRole(models.RoleOwner, models.RoleAdmin, models.RoleMember), handleCreateAccount(binder))
		api.GET("/transactions", handleListTransactions(binder))
		api.POST("/transactions", am.RequireRole(models.RoleOwner, models.RoleAdmin, models.RoleMember), handleCreateTransaction(binder))
	}

	// Platform admin console
	admin := router.Group("/admin")
	admin.Use(am.RequireAuth(), am.RequirePlatformAdmin())
	{
		admin.GET("/tenants", handleListTenants(db, dir))
		admin.POST("/tenants", handleCreateTenant(dir))
		admin.GET("/tenants/:id", handleGetTenant(dir))
		admin.PATCH("/tenants/:id", handleUpdateTenant(db, audit))
		admin.DELETE("/tenants/:id", handleDeactivateTenant(db, audit))
	}

	// Customer support console
	sup := router.Group("/support")
	sup.Use(am.RequireAuth(), am.RequireSupportStaff())
	{
		sup.POST("/impersonate/:tenant_id", handleStartImpersonation(dir, impersonations))
		sup.DELETE("/impersonate/:session_id", handleEndImpersonation(impersonations))
		sup.GET("/sessions", handleListSessions(impersonations))
		sup.GET("/audit-log", handleAuditLog(audit))
	}

	logrus.Infof("Core service starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start core service:", err)
	}
}
