package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yashrajoria/settlement-service/models"
	"github.com/yashrajoria/settlement-service/providers"
	"github.com/yashrajoria/settlement-service/repository"
	"go.uber.org/zap"
)

// RetryWorker replays FAILED events delivered by the retry queue.
type RetryWorker struct {
	registry   *providers.Registry
	dispatcher *Dispatcher
	events     repository.EventRepository
	logger     *zap.Logger
}

func NewRetryWorker(registry *providers.Registry, dispatcher *Dispatcher, events repository.EventRepository, logger *zap.Logger) *RetryWorker {
	return &RetryWorker{registry: registry, dispatcher: dispatcher, events: events, logger: logger}
}

// Handle returns nil when the job is finished, including when the replay
// failed terminally or was re-enqueued by the dispatcher. A non-nil error
// leaves the message on the queue for redelivery.
func (w *RetryWorker) Handle(ctx context.Context, job models.RetryJob) error {
	log := w.logger.With(
		zap.String("provider", job.Provider),
		zap.String("provider_event_id", job.ProviderEventID),
		zap.Int("attempt", job.Attempt),
	)

	stored, err := w.events.Find(ctx, job.Provider, job.ProviderEventID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("Retry job for unknown event dropped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	if stored.Status != models.EventStatusFailed {
		log.Info("Retry job skipped, event no longer failed", zap.String("status", stored.Status))
		return nil
	}

	provider, ok := w.registry.Get(job.Provider)
	if !ok {
		log.Error("Retry job for unconfigured provider dropped")
		return nil
	}

	ev, source, err := w.rebuild(ctx, provider, stored)
	if err != nil {
		if KindOf(err).Retryable() {
			return err
		}
		log.Error("Stored event cannot be replayed", zap.Error(err))
		return nil
	}

	res, err := w.dispatcher.Process(ctx, ev, source, []byte(stored.Payload))
	if err != nil {
		log.Warn("Retry attempt failed", zap.String("kind", KindOf(err).String()), zap.Error(err))
		return nil
	}
	log.Info("Retry attempt succeeded", zap.String("outcome", string(res.Outcome)))
	return nil
}

// rebuild re-derives the event: webhook payloads are re-parsed, redirect
// events repeat the provider lookup and keep their redirect source.
func (w *RetryWorker) rebuild(ctx context.Context, provider providers.Provider, stored *models.InboundPaymentEvent) (providers.Event, Source, error) {
	if stored.Source == string(SourceRedirect) {
		var p redirectPayload
		if err := json.Unmarshal(stored.Payload, &p); err != nil || p.Reference == "" {
			return nil, "", newError(KindInvalidPayload, "stored redirect payload has no reference", err)
		}
		ev, err := provider.VerifyTransaction(ctx, p.Reference)
		if err != nil {
			return nil, "", lookupError(p.Reference, err)
		}
		return ev, SourceRedirect, nil
	}

	ev, err := provider.ParseEvent(stored.Payload)
	if err != nil {
		return nil, "", newError(KindInvalidPayload, "stored payload no longer parses", err)
	}
	if ev, err = providers.Complete(ctx, provider, ev); err != nil {
		return nil, "", lookupError(stored.ProviderEventID, err)
	}
	return ev, SourceRetry, nil
}
