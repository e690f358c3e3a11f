package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"vmp/src/types"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-secret")

func sign(t *testing.T, key []byte, subject, role string, expires time.Time) string {
	t.Helper()
	claims := types.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecureHeaders)
	r.GET("/me", AuthMiddleware(testKey), func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"id": ctx.GetUint("id"), "role": ctx.GetString("role")})
	})
	r.GET("/admin", AuthMiddleware(testKey), RequireRole(types.ROLE_ADMIN), func(ctx *gin.Context) {
		ctx.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	future := time.Now().Add(time.Hour)
	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized, ""},
		{"wrong key", "Bearer " + sign(t, []byte("other"), "5", "BUYER", future), http.StatusUnauthorized, ""},
		{"expired", "Bearer " + sign(t, testKey, "5", "BUYER", time.Now().Add(-time.Minute)), http.StatusUnauthorized, ""},
		{"bad subject", "Bearer " + sign(t, testKey, "abc", "BUYER", future), http.StatusUnauthorized, ""},
		{"valid", "Bearer " + sign(t, testKey, "5", "VENDOR", future), http.StatusOK, `{"id":5,"role":"VENDOR"}`},
		{"default role", "Bearer " + sign(t, testKey, "6", "", future), http.StatusOK, `{"id":6,"role":"BUYER"}`},
	}
	router := newRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
			if tt.body != "" {
				assert.JSONEq(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	router := newRouter()
	future := time.Now().Add(time.Hour)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, testKey, "1", "BUYER", future))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, testKey, "1", "ADMIN", future))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
