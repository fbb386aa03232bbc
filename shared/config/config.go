package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds service configuration sourced from environment variables.
type Config struct {
	Port        string
	RequireAuth bool

	// Credential verification. JWKSURL switches the verifier to RS256 keys
	// fetched from the trusted key set; otherwise JWTSecret is used (HS256).
	JWTSecret string
	JWKSURL   string

	KafkaBroker string
	AuditTopic  string

	ImpersonationTTL time.Duration
}

// Load returns service configuration from environment variables
func Load() *Config {
	return &Config{
		Port:             getEnv("PORT", "8000"),
		RequireAuth:      getEnvBool("REQUIRE_AUTH", true),
		JWTSecret:        getEnv("JWT_SECRET_KEY", "dev-secret-change-in-production"),
		JWKSURL:          getEnv("JWKS_URL", ""),
		KafkaBroker:      getEnv("KAFKA_BROKER", "localhost:9092"),
		AuditTopic:       getEnv("AUDIT_TOPIC", "support-audit-events"),
		ImpersonationTTL: getEnvDuration("IMPERSONATION_TTL", time.Hour),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
