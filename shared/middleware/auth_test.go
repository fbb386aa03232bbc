package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/numbersence/phase-zero-core/shared/auth"
	"github.com/numbersence/phase-zero-core/shared/models"
	"github.com/numbersence/phase-zero-core/shared/tenantctx"
)

// verifierStub returns canned claims for any token.
type verifierStub struct {
	claims *auth.Claims
	err    error
}

func (v *verifierStub) Verify(string) (*auth.Claims, error) {
	return v.claims, v.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(router *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	am := NewAuthMiddleware(&verifierStub{}, nil, nil, nil, true)

	router := gin.New()
	router.GET("/probe", am.RequireAuth(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := performRequest(router, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuthPublicFallback(t *testing.T) {
	am := NewAuthMiddleware(&verifierStub{}, nil, nil, nil, false)

	var seen *tenantctx.TenantContext
	router := gin.New()
	router.GET("/probe", am.RequireAuth(), func(c *gin.Context) {
		seen = tenantctx.FromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := performRequest(router, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tenantctx.PublicTenantID, seen.TenantID)
	assert.False(t, seen.Privileged())
}

func TestRequireAuthRejectsInvalidToken(t *testing.T) {
	am := NewAuthMiddleware(&verifierStub{err: errors.New("bad signature")}, nil, nil, nil, true)

	router := gin.New()
	router.GET("/probe", am.RequireAuth(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := performRequest(router, map[string]string{"Authorization": "Bearer whatever"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuthStoresClaims(t *testing.T) {
	claims := &auth.Claims{Subject: "user-1", Role: models.RoleAdmin, TenantID: uuid.New()}
	am := NewAuthMiddleware(&verifierStub{claims: claims}, nil, nil, nil, true)

	var got *auth.Claims
	router := gin.New()
	router.GET("/probe", am.RequireAuth(), func(c *gin.Context) {
		got = GetClaims(c)
		c.Status(http.StatusOK)
	})

	w := performRequest(router, map[string]string{"Authorization": "Bearer whatever"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, claims, got)
}

// withTenant installs a tenant context directly, standing in for
// ResolveTenant.
func withTenant(tc *tenantctx.TenantContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(tenantctx.WithContext(c.Request.Context(), tc))
		c.Next()
	}
}

func TestRequireRole(t *testing.T) {
	am := NewAuthMiddleware(&verifierStub{}, nil, nil, nil, true)

	tests := []struct {
		name string
		tc   *tenantctx.TenantContext
		want int
	}{
		{"matching role", &tenantctx.TenantContext{Role: models.RoleMember}, http.StatusOK},
		{"insufficient role", &tenantctx.TenantContext{Role: models.RoleViewer}, http.StatusForbidden},
		{"platform admin bypass", &tenantctx.TenantContext{IsPlatformAdmin: true}, http.StatusOK},
		{"support session bypass", &tenantctx.TenantContext{IsSupportAccess: true}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/probe", withTenant(tt.tc), am.RequireRole(models.RoleOwner, models.RoleAdmin, models.RoleMember), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			w := performRequest(router, nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

// Staff gates check the verified claim role, never the tenant role: a tenant
// owner is not platform staff.
func TestStaffGatesCheckClaimRole(t *testing.T) {
	tests := []struct {
		name string
		role models.Role
		gate func(*AuthMiddleware) gin.HandlerFunc
		want int
	}{
		{"admin passes admin gate", models.RolePlatformAdmin, (*AuthMiddleware).RequirePlatformAdmin, http.StatusOK},
		{"agent fails admin gate", models.RoleSupportAgent, (*AuthMiddleware).RequirePlatformAdmin, http.StatusForbidden},
		{"agent passes staff gate", models.RoleSupportAgent, (*AuthMiddleware).RequireSupportStaff, http.StatusOK},
		{"tenant owner fails staff gate", models.RoleOwner, (*AuthMiddleware).RequireSupportStaff, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			am := NewAuthMiddleware(&verifierStub{claims: &auth.Claims{Subject: "user-1", Role: tt.role}}, nil, nil, nil, true)

			router := gin.New()
			router.GET("/probe", am.RequireAuth(), tt.gate(am), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			w := performRequest(router, map[string]string{"Authorization": "Bearer whatever"})
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
