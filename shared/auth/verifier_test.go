package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numbersence/phase-zero-core/shared/models"
	"github.com/numbersence/phase-zero-core/shared/tenantctx"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestHSVerifierValidToken(t *testing.T) {
	tenantID := uuid.New()
	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"sub":       "user-1",
		"tenant_id": tenantID.String(),
		"role":      "admin",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	claims, err := NewHSVerifier(testSecret).Verify(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestHSVerifierExpiredToken(t *testing.T) {
	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := NewHSVerifier(testSecret).Verify(tokenString)
	assert.ErrorIs(t, err, ErrCredentialInvalid)
}

func TestHSVerifierWrongSecret(t *testing.T) {
	tokenString := signToken(t, "other-secret", jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := NewHSVerifier(testSecret).Verify(tokenString)
	assert.ErrorIs(t, err, ErrCredentialInvalid)
}

func TestHSVerifierMalformedToken(t *testing.T) {
	_, err := NewHSVerifier(testSecret).Verify("not-a-token")
	assert.ErrorIs(t, err, ErrCredentialInvalid)
}

func TestHSVerifierMissingSubject(t *testing.T) {
	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := NewHSVerifier(testSecret).Verify(tokenString)
	assert.ErrorIs(t, err, ErrCredentialInvalid)
}

// A token without a tenant claim binds to the public sentinel, not to an
// arbitrary tenant.
func TestHSVerifierNoTenantClaimIsPublic(t *testing.T) {
	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	claims, err := NewHSVerifier(testSecret).Verify(tokenString)
	require.NoError(t, err)
	assert.Equal(t, tenantctx.PublicTenantID, claims.TenantID)
	assert.Equal(t, models.RoleMember, claims.Role)
}

func TestHSVerifierMalformedTenantClaim(t *testing.T) {
	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"sub":       "user-1",
		"tenant_id": "not-a-uuid",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	_, err := NewHSVerifier(testSecret).Verify(tokenString)
	assert.ErrorIs(t, err, ErrCredentialInvalid)
}
