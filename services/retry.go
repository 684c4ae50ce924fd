package services

import (
	"context"
	"errors"
	"time"

	"github.com/yashrajoria/settlement-service/models"
	"go.uber.org/zap"
)

// ErrRetryExhausted is returned once an event used all of its attempts.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// maxQueueDelay is the SQS DelaySeconds ceiling.
const maxQueueDelay = 900 * time.Second

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 30 * time.Second}
}

// Backoff is BaseDelay * 2^attempt, capped at the queue's maximum delay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 20 {
		return maxQueueDelay
	}
	d := p.BaseDelay * time.Duration(1<<uint(attempt))
	if d <= 0 || d > maxQueueDelay {
		return maxQueueDelay
	}
	return d
}

// RetryScheduler re-enqueues failed events with exponential backoff and turns
// exhausted ones into an incident.
type RetryScheduler struct {
	queue   RetryQueue
	policy  RetryPolicy
	metrics MetricsRecorder
	logger  *zap.Logger
}

func NewRetryScheduler(queue RetryQueue, policy RetryPolicy, metrics MetricsRecorder, logger *zap.Logger) *RetryScheduler {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy().BaseDelay
	}
	return &RetryScheduler{queue: queue, policy: policy, metrics: metrics, logger: logger}
}

// Schedule enqueues the next attempt for an event that has already been tried
// attempts times.
func (s *RetryScheduler) Schedule(ctx context.Context, provider, providerEventID string, attempts int) error {
	if attempts >= s.policy.MaxAttempts {
		s.logger.Error("CRITICAL: payment event retries exhausted, manual review required",
			zap.Bool("alert", true),
			zap.String("provider", provider),
			zap.String("provider_event_id", providerEventID),
			zap.Int("attempts", attempts),
		)
		if s.metrics != nil {
			if err := s.metrics.RecordCount(ctx, MetricRetryExhausted, map[string]string{"Provider": provider}); err != nil {
				s.logger.Warn("Failed to record retry metric", zap.Error(err))
			}
		}
		return ErrRetryExhausted
	}
	if s.queue == nil {
		s.logger.Warn("Retry queue not configured, event left FAILED",
			zap.String("provider", provider),
			zap.String("provider_event_id", providerEventID),
		)
		return nil
	}

	delay := s.policy.Backoff(attempts)
	job := models.RetryJob{Provider: provider, ProviderEventID: providerEventID, Attempt: attempts}
	if err := s.queue.Enqueue(ctx, job, delay); err != nil {
		return err
	}
	s.logger.Info("Payment event scheduled for retry",
		zap.String("provider", provider),
		zap.String("provider_event_id", providerEventID),
		zap.Int("attempt", attempts),
		zap.Duration("delay", delay),
	)
	return nil
}
