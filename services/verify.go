package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yashrajoria/settlement-service/models"
	"github.com/yashrajoria/settlement-service/providers"
	"github.com/yashrajoria/settlement-service/repository"
	"go.uber.org/zap"
)

// redirectPayload is what the event store keeps for redirect-sourced events.
// The provider response is not stored; a retry repeats the lookup.
type redirectPayload struct {
	Reference string `json:"reference"`
}

// VerifyService confirms a payment when the customer returns from the
// provider's hosted page.
type VerifyService struct {
	registry   *providers.Registry
	dispatcher *Dispatcher
	orders     repository.OrderRepository
	timeout    time.Duration
	logger     *zap.Logger
}

func NewVerifyService(registry *providers.Registry, dispatcher *Dispatcher, orders repository.OrderRepository, timeout time.Duration, logger *zap.Logger) *VerifyService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &VerifyService{
		registry:   registry,
		dispatcher: dispatcher,
		orders:     orders,
		timeout:    timeout,
		logger:     logger,
	}
}

// Confirm looks the reference up at the provider, outside any transaction,
// and runs the result through the dispatcher. It returns the order as it
// stands afterwards.
func (s *VerifyService) Confirm(ctx context.Context, providerName, reference string) (*models.Order, Outcome, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, "", newError(KindInvalidPayload, "reference is required", nil)
	}
	provider, ok := s.registry.Get(providerName)
	if !ok {
		return nil, "", newError(KindNotFound, fmt.Sprintf("unknown payment provider %q", providerName), nil)
	}

	ev, err := s.lookup(ctx, provider, reference)
	if err != nil {
		return nil, "", err
	}

	raw, _ := json.Marshal(redirectPayload{Reference: reference})
	res, err := s.dispatcher.Process(ctx, ev, SourceRedirect, raw)
	if err != nil {
		return nil, "", err
	}

	if res.Order != nil {
		return res.Order, res.Outcome, nil
	}
	ref := ev.Reference()
	if ref == "" {
		ref = reference
	}
	order, err := s.orders.FindByRefCode(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, res.Outcome, newError(KindNotFound, fmt.Sprintf("order %s not found", ref), err)
	}
	if err != nil {
		return nil, res.Outcome, newError(KindInternal, "load order", err)
	}
	return order, res.Outcome, nil
}

func (s *VerifyService) lookup(ctx context.Context, provider providers.Provider, reference string) (providers.Event, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	ev, err := provider.VerifyTransaction(lookupCtx, reference)
	if err == nil {
		ev, err = providers.Complete(lookupCtx, provider, ev)
	}
	if err == nil {
		s.logger.Info("Provider transaction lookup",
			zap.String("provider", provider.Name()),
			zap.String("reference", reference),
			zap.String("event_type", ev.Meta().Type),
			zap.Duration("latency", time.Since(start)),
		)
		return ev, nil
	}

	s.logger.Warn("Provider transaction lookup failed",
		zap.String("provider", provider.Name()),
		zap.String("reference", reference),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err),
	)
	return nil, lookupError(reference, err)
}

// CompleteEvent fills fields the provider left out of an event body, such
// as a fee the webhook did not expand, bounded by timeout.
func CompleteEvent(ctx context.Context, provider providers.Provider, ev providers.Event, timeout time.Duration) (providers.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	full, err := providers.Complete(ctx, provider, ev)
	if err != nil {
		return nil, lookupError(ev.Meta().EventID, err)
	}
	return full, nil
}

func lookupError(reference string, err error) error {
	var lookup *providers.LookupError
	switch {
	case errors.Is(err, providers.ErrTransactionNotFound):
		return newError(KindNotFound, fmt.Sprintf("transaction %s not found", reference), err)
	case errors.Is(err, providers.ErrMalformedPayload):
		return newError(KindTransientProvider, "provider returned an unreadable response", err)
	case errors.As(err, &lookup), errors.Is(err, context.DeadlineExceeded):
		return newError(KindTransientProvider, "payment provider unavailable", err)
	default:
		return newError(KindTransientProvider, "payment provider lookup failed", err)
	}
}
