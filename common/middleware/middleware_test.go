package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/settlement-service/common/logger"
	"github.com/yashrajoria/settlement-service/common/middleware"
	awspkg "github.com/yashrajoria/settlement-service/pkg/aws"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)

	r := gin.New()
	r.Use(logger.RequestID(), middleware.RequestLogger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, p := range []string{"/ok", "/bad", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p+"?reference=secret", nil))
	}

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "/ok", ctx["path"])
	assert.NotEmpty(t, ctx["request_id"])
	_, hasQuery := ctx["query"]
	assert.False(t, hasQuery)
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/verify", middleware.RateLimitMiddleware(0.001, 2), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/verify", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiterPerKey(t *testing.T) {
	rl := middleware.NewRateLimiter(0.001, 1, time.Minute)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestRateLimiterSweepsIdleBucketsPerInterval(t *testing.T) {
	rl := middleware.NewRateLimiter(0.001, 1, 50*time.Millisecond)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.True(t, rl.Allow("c"))
	assert.False(t, rl.Allow("c"))
	assert.Equal(t, 3, rl.Len())

	time.Sleep(70 * time.Millisecond)
	assert.True(t, rl.Allow("d"))
	assert.Equal(t, 1, rl.Len())
	assert.True(t, rl.Allow("c"))
	assert.False(t, rl.Allow("c"))
	assert.Equal(t, 2, rl.Len())
}

func TestTimeoutCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(logger.RequestID(), middleware.Timeout(time.Second))

	var rid string
	var hasDeadline bool
	r.GET("/", func(c *gin.Context) {
		rid = logger.RequestIDFrom(c.Request.Context())
		_, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(logger.RequestIDHeader, "req-123")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "req-123", rid)
	assert.True(t, hasDeadline)
}

type recordedMetric struct {
	name string
	dims map[string]string
}

type chanMetrics struct{ ch chan recordedMetric }

func (m *chanMetrics) IsEnabled() bool { return true }

func (m *chanMetrics) RecordCount(_ context.Context, name string, dims map[string]string) error {
	m.ch <- recordedMetric{name, dims}
	return nil
}

func (m *chanMetrics) RecordLatency(_ context.Context, name string, _ time.Duration, dims map[string]string) error {
	m.ch <- recordedMetric{name, dims}
	return nil
}

func TestMetricsMiddlewareTagsProvider(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := &chanMetrics{ch: make(chan recordedMetric, 8)}

	r := gin.New()
	r.Use(middleware.MetricsMiddleware(m, "settlement-service"))
	r.POST("/webhooks/:provider", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhooks/paystack", nil))

	got := map[string]map[string]string{}
	for i := 0; i < 3; i++ {
		select {
		case rec := <-m.ch:
			got[rec.name] = rec.dims
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d metrics recorded", i)
		}
	}

	require.Contains(t, got, awspkg.MetricHTTPRequests)
	require.Contains(t, got, awspkg.MetricHTTPLatency)
	require.Contains(t, got, awspkg.MetricHTTP4xx)
	dims := got[awspkg.MetricHTTPRequests]
	assert.Equal(t, "/webhooks/:provider", dims["Path"])
	assert.Equal(t, "paystack", dims["Provider"])
	assert.Equal(t, "4xx", dims["Status"])
}

func TestMetricsMiddlewareDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var disabled *awspkg.MetricsClient

	r := gin.New()
	r.Use(middleware.MetricsMiddleware(disabled, "settlement-service"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
