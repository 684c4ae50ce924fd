package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yashrajoria/settlement-service/models"
	"github.com/yashrajoria/settlement-service/repository"
	"go.uber.org/zap"
)

// ViewCache is the read-through cache for settlement views. Any Get error is
// treated as a miss.
type ViewCache interface {
	Get(ctx context.Context, refCode string) (*models.SettlementView, error)
	Set(ctx context.Context, refCode string, view *models.SettlementView) error
}

// QueryService serves the read side: settlement views, the ledger balance
// audit and event listings.
type QueryService struct {
	store   *repository.Store
	cache   ViewCache
	metrics MetricsRecorder
	logger  *zap.Logger
}

func NewQueryService(store *repository.Store, cache ViewCache, metrics MetricsRecorder, logger *zap.Logger) *QueryService {
	return &QueryService{store: store, cache: cache, metrics: metrics, logger: logger}
}

// Settlement returns the order's payment state with its charges, ledger
// legs and inbound events.
func (q *QueryService) Settlement(ctx context.Context, refCode string) (*models.SettlementView, error) {
	refCode = strings.TrimSpace(refCode)
	if refCode == "" {
		return nil, newError(KindInvalidPayload, "reference is required", nil)
	}

	if q.cache != nil {
		if view, err := q.cache.Get(ctx, refCode); err == nil && view != nil {
			return view, nil
		}
	}

	order, err := q.store.Orders.FindByRefCode(ctx, refCode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, fmt.Sprintf("order %s not found", refCode), err)
	}
	if err != nil {
		return nil, newError(KindInternal, "load order", err)
	}
	charges, err := q.store.Charges.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, newError(KindInternal, "load charges", err)
	}
	entries, err := q.store.Ledger.ListByReference(ctx, order.RefCode)
	if err != nil {
		return nil, newError(KindInternal, "load ledger", err)
	}
	events, err := q.store.Events.ListByReference(ctx, order.RefCode)
	if err != nil {
		return nil, newError(KindInternal, "load events", err)
	}

	view := &models.SettlementView{Order: *order, Charges: charges, Ledger: entries, Events: events}
	if q.cache != nil {
		if err := q.cache.Set(ctx, refCode, view); err != nil {
			q.logger.Warn("Failed to cache settlement view", zap.String("ref_code", refCode), zap.Error(err))
		}
	}
	return view, nil
}

// AuditLedger returns every reference whose debits and credits differ. The
// expected result is empty; anything else is raised as a critical alert.
func (q *QueryService) AuditLedger(ctx context.Context) ([]models.LedgerImbalance, error) {
	rows, err := q.store.Ledger.Imbalances(ctx)
	if err != nil {
		return nil, newError(KindInternal, "ledger audit", err)
	}
	if len(rows) == 0 {
		return rows, nil
	}

	for _, r := range rows {
		q.logger.Error("CRITICAL: unbalanced ledger reference",
			zap.Bool("alert", true),
			zap.String("reference_type", r.ReferenceType),
			zap.String("reference_id", r.ReferenceID),
			zap.String("currency", r.Currency),
			zap.Int64("net", r.Net),
		)
	}
	if q.metrics != nil {
		bg, cancel := detached(ctx)
		defer cancel()
		if err := q.metrics.RecordCount(bg, MetricLedgerImbalance, map[string]string{"Check": "audit"}); err != nil {
			q.logger.Warn("Failed to record metric", zap.String("metric", MetricLedgerImbalance), zap.Error(err))
		}
	}
	return rows, nil
}

// Events lists inbound events in one status, newest first.
func (q *QueryService) Events(ctx context.Context, status string, limit int) ([]models.InboundPaymentEvent, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	switch status {
	case models.EventStatusReceived, models.EventStatusProcessed, models.EventStatusFailed:
	default:
		return nil, newError(KindInvalidPayload, fmt.Sprintf("unknown event status %q", status), nil)
	}
	events, err := q.store.Events.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, newError(KindInternal, "list events", err)
	}
	return events, nil
}

// Requeue schedules an immediate retry of a FAILED event, for operators.
func (q *QueryService) Requeue(ctx context.Context, queue RetryQueue, provider, providerEventID string) (*models.RetryJob, error) {
	evt, err := q.store.Events.Find(ctx, provider, providerEventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, fmt.Sprintf("event %s/%s not found", provider, providerEventID), err)
	}
	if err != nil {
		return nil, newError(KindInternal, "load event", err)
	}
	if evt.Status != models.EventStatusFailed {
		return nil, newError(KindInvalidState, fmt.Sprintf("event is %s, only FAILED events can be retried", evt.Status), nil)
	}
	job := models.RetryJob{Provider: evt.Provider, ProviderEventID: evt.ProviderEventID, Attempt: evt.Attempts}
	if err := queue.Enqueue(ctx, job, 0); err != nil {
		return nil, newError(KindTransientProvider, "enqueue retry", err)
	}
	return &job, nil
}
