package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/settlement-service/common/auth"
	apperrors "github.com/yashrajoria/settlement-service/common/errors"
	"github.com/yashrajoria/settlement-service/common/logger"
	"github.com/yashrajoria/settlement-service/common/middleware"
	"github.com/yashrajoria/settlement-service/controllers"
	awspkg "github.com/yashrajoria/settlement-service/pkg/aws"
	"go.uber.org/zap"
)

const serviceName = "settlement-service"

type Handlers struct {
	Payments   *controllers.PaymentController
	Settlement *controllers.SettlementController
	Health     *controllers.HealthController
}

type Options struct {
	Logger              *zap.Logger
	Metrics             *awspkg.MetricsClient
	JWTSecret           string
	VerifyRatePerSecond float64
	VerifyRateBurst     int
	RequestTimeout      time.Duration
}

// NewRouter builds the engine. Webhooks are authenticated by provider
// signature, redirects by provider lookup, read routes by JWT.
func NewRouter(h Handlers, opts Options) *gin.Engine {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		logger.RequestID(),
		middleware.RequestLogger(opts.Logger),
		middleware.MetricsMiddleware(opts.Metrics, serviceName),
		middleware.SecurityHeaders(),
		middleware.Timeout(opts.RequestTimeout),
		apperrors.ErrorMiddleware(),
	)

	r.GET("/health", h.Health.Health)

	r.POST("/webhooks/:provider", h.Payments.Webhook)
	r.GET("/payments/:provider/verify",
		middleware.RateLimitMiddleware(opts.VerifyRatePerSecond, opts.VerifyRateBurst),
		h.Payments.Verify,
	)

	read := r.Group("/", auth.RequireJWT(opts.JWTSecret))
	read.GET("/orders/:ref/settlement", h.Settlement.GetSettlement)
	read.GET("/ledger/audit", h.Settlement.AuditLedger)

	return r
}
