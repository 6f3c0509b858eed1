package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/editor-only", RequireRole(RoleEditor), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"role": c.GetString(ContextKeyRole)})
	})
	r.GET("/shared", RequireRole(RoleViewer, RoleEditor), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func perform(r *gin.Engine, method, path, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		req.Header.Set(RoleHeader, role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRoleMatrix(t *testing.T) {
	r := newAuthRouter()

	cases := []struct {
		name   string
		method string
		path   string
		role   string
		status int
	}{
		{"editor admitted to editor endpoint", http.MethodPost, "/editor-only", RoleEditor, http.StatusOK},
		{"viewer rejected from editor endpoint", http.MethodPost, "/editor-only", RoleViewer, http.StatusForbidden},
		{"viewer admitted to shared endpoint", http.MethodGet, "/shared", RoleViewer, http.StatusOK},
		{"editor admitted to shared endpoint", http.MethodGet, "/shared", RoleEditor, http.StatusOK},
		{"missing role rejected", http.MethodGet, "/shared", "", http.StatusForbidden},
		{"unrecognized role rejected", http.MethodGet, "/shared", "superuser", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := perform(r, tc.method, tc.path, tc.role)
			require.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusForbidden {
				require.Contains(t, w.Body.String(), `"FORBIDDEN"`)
			}
		})
	}
}

func TestDeadlineMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(DeadlineMiddleware(time.Minute))
	r.GET("/", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"remaining": time.Until(deadline).Seconds()})
	})

	// The per-call override only ever shortens the deadline.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TimeoutHeader, "2")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "remaining")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TimeoutHeader, "9999")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
