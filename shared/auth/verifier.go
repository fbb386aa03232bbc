// Package auth verifies inbound signed credentials and extracts the claims
// the tenant context is derived from. Token issuance lives in an external
// identity service; this package only validates.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/numbersence/phase-zero-core/shared/models"
	"github.com/numbersence/phase-zero-core/shared/tenantctx"
)

// ErrCredentialInvalid covers missing, expired, malformed, and badly signed
// tokens. Requests failing with it are rejected before any database session
// is acquired.
var ErrCredentialInvalid = errors.New("credential invalid")

// Claims are the verified fields this system trusts once verification
// succeeds.
type Claims struct {
	Subject   string
	TenantID  uuid.UUID // public sentinel when the token carries no tenant
	Role      models.Role
	ExpiresAt time.Time
}

// Verifier validates an opaque signed token and extracts claims.
type Verifier interface {
	Verify(tokenString string) (*Claims, error)
}

// tokenClaims is the raw JWT payload shape.
type tokenClaims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// HSVerifier verifies HS256 tokens against a shared secret.
type HSVerifier struct {
	secret []byte
}

// NewHSVerifier creates a verifier for HS256 tokens
func NewHSVerifier(secret string) *HSVerifier {
	return &HSVerifier{secret: []byte(secret)}
}

// Verify validates the token signature and expiry and extracts claims.
func (v *HSVerifier) Verify(tokenString string) (*Claims, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialInvalid, err)
	}
	if !token.Valid {
		return nil, ErrCredentialInvalid
	}

	return claimsFromToken(claims)
}

// claimsFromToken maps the raw payload onto verified Claims.
func claimsFromToken(tc *tokenClaims) (*Claims, error) {
	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrCredentialInvalid)
	}

	tenantID := tenantctx.PublicTenantID
	if tc.TenantID != "" {
		parsed, err := uuid.Parse(tc.TenantID)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed tenant_id claim", ErrCredentialInvalid)
		}
		tenantID = parsed
	}

	role := models.Role(tc.Role)
	if role == "" {
		role = models.RoleMember
	}

	claims := &Claims{
		Subject:  tc.Subject,
		TenantID: tenantID,
		Role:     role,
	}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}

	return claims, nil
}
