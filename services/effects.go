package services

import (
	"context"
	"time"

	"github.com/yashrajoria/settlement-service/models"
)

// EventPublisher fans a committed settlement out to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, evt models.PaymentEvent) error
}

// CacheInvalidator drops cached settlement views for an order reference.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, refCode string) error
}

// PayloadArchiver stores verified raw provider bodies.
type PayloadArchiver interface {
	Archive(ctx context.Context, key string, body []byte) error
}

// MetricsRecorder is satisfied by pkg/aws.MetricsClient.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

// RetryQueue delays a job for later redelivery.
type RetryQueue interface {
	Enqueue(ctx context.Context, job models.RetryJob, delay time.Duration) error
}

// SideEffects are run after commit and may each be nil. Failures are logged
// and never affect the settlement result.
type SideEffects struct {
	Publisher EventPublisher
	Cache     CacheInvalidator
	Archiver  PayloadArchiver
	Metrics   MetricsRecorder
}

// Metric names emitted by the pipeline.
const (
	MetricPaymentSucceeded = "PaymentSucceeded"
	MetricPaymentFailed    = "PaymentFailed"
	MetricPaymentRefunded  = "PaymentRefunded"
	MetricDuplicateEvent   = "DuplicateEvent"
	MetricAmountMismatch   = "AmountMismatch"
	MetricEventFailed      = "EventProcessingFailed"
	MetricRetryExhausted   = "RetryExhausted"
	MetricLedgerImbalance  = "LedgerImbalance"
)

const sideEffectTimeout = 5 * time.Second

// detached keeps request values but outlives the caller's cancellation, so a
// provider hanging up after commit does not cancel post-commit work.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
}
