package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func router(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/status", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func get(r *gin.Engine, remote string) int {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitPerClient(t *testing.T) {
	r := router(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, get(r, "10.0.0.1:1000"))

	// A different client has its own bucket.
	assert.Equal(t, http.StatusOK, get(r, "10.0.0.2:1000"))
}

func TestGlobalRateLimit(t *testing.T) {
	r := router(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))

	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, get(r, "10.0.0.2:1000"))
}

func TestCORSWildcard(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowCredentials = true
	r := router(CORS(cfg))

	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSRejectsUnlistedOrigin(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"http://localhost:5173"}
	r := router(CORS(cfg))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
