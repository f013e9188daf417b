package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func okRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw...)
	router.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.POST("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return router
}

func doRequest(router *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, zap.NewNop())
	defer rl.Shutdown()

	router := okRouter(rl.RateLimit())

	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/ok", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/ok", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, http.MethodGet, "/ok", nil).Code)
	assert.Equal(t, 1, rl.ActiveClients())
}

func TestAuthMiddleware(t *testing.T) {
	disabled := NewAuthMiddleware("", zap.NewNop())
	router := okRouter(disabled.RequireAuth())
	assert.Equal(t, http.StatusForbidden, doRequest(router, http.MethodGet, "/ok", nil).Code)

	auth := NewAuthMiddleware("s3cret", zap.NewNop())
	router = okRouter(auth.RequireAuth())

	assert.Equal(t, http.StatusUnauthorized, doRequest(router, http.MethodGet, "/ok", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		doRequest(router, http.MethodGet, "/ok", map[string]string{"Authorization": "Bearer wrong"}).Code)
	assert.Equal(t, http.StatusOK,
		doRequest(router, http.MethodGet, "/ok", map[string]string{"Authorization": "Bearer s3cret"}).Code)
	assert.Equal(t, http.StatusOK,
		doRequest(router, http.MethodGet, "/ok?token=s3cret", nil).Code)
}

func TestRequestSizeLimit(t *testing.T) {
	router := okRouter(RequestSizeLimit(8))

	req := httptest.NewRequest(http.MethodPost, "/ok", strings.NewReader("well over eight bytes"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := okRouter(CORS([]string{"https://studio.example"}))

	w := doRequest(router, http.MethodOptions, "/ok", map[string]string{"Origin": "https://studio.example"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://studio.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = doRequest(router, http.MethodGet, "/ok", map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, "null", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeaders(t *testing.T) {
	router := okRouter(SecurityHeaders())
	w := doRequest(router, http.MethodGet, "/ok", nil)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
