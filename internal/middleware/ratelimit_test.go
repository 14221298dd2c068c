package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"collaborative-canvas/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func TestRateLimit_PanicsOnInvalidConfig(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	assert.Panics(t, func() { middleware.RateLimit(nil, "cv:", 1, time.Second) })
	assert.Panics(t, func() { middleware.RateLimit(client, "cv:", 0, time.Second) })
	assert.Panics(t, func() { middleware.RateLimit(client, "cv:", 1, 0) })
}

func TestRateLimit_FailsOpenWhenRedisUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	r := gin.New()
	r.Use(middleware.RateLimit(client, "cv:", 1, time.Second))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}
