package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/settlement-service/common/logger"
	"github.com/yashrajoria/settlement-service/models"
	"github.com/yashrajoria/settlement-service/providers"
	"github.com/yashrajoria/settlement-service/services"
	"go.uber.org/zap"
)

const (
	maxWebhookBody = 1 << 20
	enrichTimeout  = 10 * time.Second
)

// EventProcessor applies a verified provider event.
type EventProcessor interface {
	Process(ctx context.Context, ev providers.Event, source services.Source, raw []byte) (*services.Result, error)
}

// PaymentVerifier confirms a payment by provider lookup.
type PaymentVerifier interface {
	Confirm(ctx context.Context, provider, reference string) (*models.Order, services.Outcome, error)
}

// PaymentController serves provider webhooks and customer redirects.
type PaymentController struct {
	registry  *providers.Registry
	processor EventProcessor
	verifier  PaymentVerifier
	logger    *zap.Logger
}

func NewPaymentController(registry *providers.Registry, processor EventProcessor, verifier PaymentVerifier, logger *zap.Logger) *PaymentController {
	return &PaymentController{registry: registry, processor: processor, verifier: verifier, logger: logger}
}

// Webhook handles POST /webhooks/:provider
func (pc *PaymentController) Webhook(c *gin.Context) {
	provider, ok := pc.registry.Get(c.Param("provider"))
	if !ok {
		abort(c, http.StatusNotFound, services.KindNotFound.String(), "unknown payment provider", nil)
		return
	}
	log := logger.For(c.Request.Context(), pc.logger).With(zap.String("provider", provider.Name()))

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		abort(c, http.StatusBadRequest, services.KindInvalidPayload.String(), "unreadable body", err)
		return
	}
	if len(body) > maxWebhookBody {
		abort(c, http.StatusRequestEntityTooLarge, services.KindInvalidPayload.String(), "body too large", nil)
		return
	}

	if err := provider.VerifySignature(body, c.Request.Header); err != nil {
		log.Warn("Rejected webhook with invalid signature", zap.String("client_ip", c.ClientIP()), zap.Error(err))
		abort(c, http.StatusUnauthorized, services.KindAuthentication.String(), "invalid signature", err)
		return
	}

	ev, err := provider.ParseEvent(body)
	if err != nil {
		log.Warn("Rejected unparseable webhook", zap.Error(err))
		abort(c, http.StatusBadRequest, services.KindInvalidPayload.String(), "malformed payload", err)
		return
	}

	// nothing is recorded when enrichment fails; the provider redelivers
	ev, err = services.CompleteEvent(c.Request.Context(), provider, ev, enrichTimeout)
	if err != nil {
		log.Warn("Webhook enrichment failed", zap.Error(err))
		abortProcessing(c, err)
		return
	}

	res, err := pc.processor.Process(c.Request.Context(), ev, services.SourceWebhook, body)
	if err != nil {
		abortProcessing(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": res.Outcome})
}

func abortProcessing(c *gin.Context, err error) {
	kind := services.KindOf(err)
	status := kind.StatusCode()
	// the provider redelivers on 5xx, on top of our own retry queue
	if kind == services.KindTransientProvider {
		status = http.StatusInternalServerError
	}
	abort(c, status, kind.String(), publicMessage(kind, err), err)
}

// Verify handles GET /payments/:provider/verify?reference=...
func (pc *PaymentController) Verify(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		reference = c.Query("trxref")
	}
	if reference == "" {
		abort(c, http.StatusBadRequest, services.KindInvalidPayload.String(), "reference is required", nil)
		return
	}

	order, outcome, err := pc.verifier.Confirm(c.Request.Context(), c.Param("provider"), reference)
	if err != nil {
		var re *services.ReconcileError
		if !errors.As(err, &re) {
			pc.logger.Error("Unexpected verify failure", zap.Error(err))
		}
		abortWithKind(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome":        outcome,
		"ref_code":       order.RefCode,
		"status":         order.Status,
		"payment_status": order.PaymentStatus,
		"failure_reason": order.FailureReason,
		"paid_at":        order.PaidAt,
	})
}
