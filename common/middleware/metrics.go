package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	awspkg "github.com/yashrajoria/settlement-service/pkg/aws"
)

// HTTPMetrics is satisfied by *awspkg.MetricsClient, including a nil one.
type HTTPMetrics interface {
	IsEnabled() bool
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, d time.Duration, dimensions map[string]string) error
}

const metricsFlushTimeout = 5 * time.Second

// MetricsMiddleware records one request count and latency per matched route.
// Routes with a :provider segment are split by provider so a single
// provider's webhook failures stand out.
func MetricsMiddleware(m HTTPMetrics, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || !m.IsEnabled() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		dims := map[string]string{
			"Service": serviceName,
			"Method":  c.Request.Method,
			"Path":    route,
			"Status":  statusClass(status),
		}
		if p := c.Param("provider"); p != "" {
			dims["Provider"] = p
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), metricsFlushTimeout)
			defer cancel()

			_ = m.RecordCount(ctx, awspkg.MetricHTTPRequests, dims)
			_ = m.RecordLatency(ctx, awspkg.MetricHTTPLatency, elapsed, dims)
			if name := errorMetric(status); name != "" {
				_ = m.RecordCount(ctx, name, dims)
			}
		}()
	}
}

func errorMetric(status int) string {
	switch status / 100 {
	case 5:
		return awspkg.MetricHTTP5xx
	case 4:
		return awspkg.MetricHTTP4xx
	}
	return ""
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return fmt.Sprintf("%dxx", status/100)
}
