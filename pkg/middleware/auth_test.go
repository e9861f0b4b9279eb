package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/pkg/jwt"
)

func newRouter(t *testing.T) (*gin.Engine, *jwt.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager, err := jwt.NewManager(jwt.Config{Secret: "mw-secret", AccessTTL: time.Hour})
	require.NoError(t, err)

	auth := NewAuthMiddleware(manager)
	r := gin.New()
	r.GET("/me", auth.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c))
	})
	r.GET("/admin", auth.RequireAuth(), auth.RequireRole("admin", "system"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, manager
}

func do(r http.Handler, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set(AuthHeaderKey, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	r, manager := newRouter(t)

	token, _, err := manager.GenerateAccessToken("u1", "", "", []string{"employee"})
	require.NoError(t, err)

	w := do(r, "/me", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "Bearer nope").Code)
}

func TestRequireRole(t *testing.T) {
	r, manager := newRouter(t)

	employee, _, err := manager.GenerateAccessToken("u1", "", "", []string{"employee"})
	require.NoError(t, err)
	system, _, err := manager.GenerateAccessToken("svc", "", "", []string{"SYSTEM"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, do(r, "/admin", "Bearer "+employee).Code)
	assert.Equal(t, http.StatusNoContent, do(r, "/admin", "Bearer "+system).Code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Token abc"))
	assert.Empty(t, BearerToken(""))
}
