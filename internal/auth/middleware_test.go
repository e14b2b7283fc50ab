package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy-orchestrator-backend/internal/config"
)

func newAuthRouter(t *testing.T) (*Middleware, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := NewMiddleware(&config.Config{JWTSecret: "test-secret"})
	router := gin.New()
	router.GET("/protected", m.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString(ContextKeySubject)})
	})
	return m, router
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	m, router := newAuthRouter(t)

	token, err := m.IssueToken("deployer@acme.dev", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "deployer@acme.dev")
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	_, router := newAuthRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	m, router := newAuthRouter(t)

	token, err := m.IssueToken("deployer@acme.dev", -time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuthRejectsForeignSecret(t *testing.T) {
	other := NewMiddleware(&config.Config{JWTSecret: "other-secret"})
	token, err := other.IssueToken("deployer@acme.dev", time.Hour)
	require.NoError(t, err)

	_, router := newAuthRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
