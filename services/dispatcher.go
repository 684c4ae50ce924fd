package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yashrajoria/settlement-service/models"
	"github.com/yashrajoria/settlement-service/providers"
	"github.com/yashrajoria/settlement-service/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Source is the ingress path that produced an event.
type Source string

const (
	SourceWebhook  Source = "webhook"
	SourceRedirect Source = "redirect"
	SourceRetry    Source = "retry"
)

// Outcome describes what a Process call did.
type Outcome string

const (
	OutcomeSettled        Outcome = "settled"
	OutcomeAlreadySettled Outcome = "already_settled"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeDeclined       Outcome = "declined"
	OutcomeRefunded       Outcome = "refunded"
	OutcomeIntentUpdated  Outcome = "intent_updated"
	OutcomeIgnored        Outcome = "ignored"
)

// Fee ledger policies.
const (
	FeePolicyNone     = "none"
	FeePolicyMerchant = "merchant"
)

// Result is the committed effect of one event.
type Result struct {
	Outcome Outcome
	EventID uuid.UUID
	Order   *models.Order
	Charge  *models.Charge

	notify *models.PaymentEvent
}

// Dispatcher is the single entry point that turns a verified provider event
// into order, charge and ledger changes. Every economic write for one event
// happens in one transaction; the event row commits with it.
type Dispatcher struct {
	store     *repository.Store
	ledger    *LedgerEngine
	effects   SideEffects
	retry     *RetryScheduler
	feePolicy string
	logger    *zap.Logger
	now       func() time.Time
}

func NewDispatcher(store *repository.Store, ledger *LedgerEngine, effects SideEffects, retry *RetryScheduler, feePolicy string, logger *zap.Logger) *Dispatcher {
	if feePolicy != FeePolicyMerchant {
		feePolicy = FeePolicyNone
	}
	return &Dispatcher{
		store:     store,
		ledger:    ledger,
		effects:   effects,
		retry:     retry,
		feePolicy: feePolicy,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Process records and applies ev exactly once per (provider, event id).
// raw is the verified body, stored for audit and retries.
func (d *Dispatcher) Process(ctx context.Context, ev providers.Event, source Source, raw []byte) (*Result, error) {
	if err := providers.Validate(ev); err != nil {
		return nil, newError(KindInvalidPayload, "invalid event", err)
	}
	meta := ev.Meta()

	record := &models.InboundPaymentEvent{
		Provider:        meta.Provider,
		ProviderEventID: meta.EventID,
		EventType:       meta.Type,
		Reference:       ev.Reference(),
		Source:          string(source),
		Payload:         jsonPayload(raw),
		Status:          models.EventStatusReceived,
		Attempts:        1,
		ReceivedAt:      d.now(),
	}

	var result *Result
	err := d.store.Transaction(ctx, func(tx *repository.Store) error {
		fresh, err := d.claim(ctx, tx, record)
		if err != nil {
			return err
		}
		if !fresh {
			result = &Result{Outcome: OutcomeDuplicate, EventID: record.ID}
			return nil
		}

		switch e := ev.(type) {
		case providers.ChargeSucceeded:
			result, err = d.settle(ctx, tx, e, source)
		case providers.ChargeFailed:
			result, err = d.decline(ctx, tx, e)
		case providers.IntentStatusChanged:
			result, err = d.mirrorIntent(ctx, tx, e)
		case providers.ChargeRefunded:
			result, err = d.refund(ctx, tx, e)
		default:
			result = &Result{Outcome: OutcomeIgnored}
		}
		if err != nil {
			return err
		}

		result.EventID = record.ID
		return tx.Events.MarkProcessed(ctx, record.ID, d.now())
	})
	if err != nil {
		return nil, d.fail(ctx, ev, record, source, raw, err)
	}

	d.afterCommit(ctx, meta, result, raw)
	return result, nil
}

// claim inserts the idempotency row, or reclaims it when a previous attempt
// failed. fresh is false for a duplicate delivery.
func (d *Dispatcher) claim(ctx context.Context, tx *repository.Store, record *models.InboundPaymentEvent) (bool, error) {
	inserted, err := tx.Events.Insert(ctx, record)
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}
	if inserted {
		return true, nil
	}

	existing, err := tx.Events.Find(ctx, record.Provider, record.ProviderEventID)
	if err != nil {
		return false, fmt.Errorf("load existing event: %w", err)
	}
	record.ID = existing.ID
	record.Attempts = existing.Attempts
	if existing.Status != models.EventStatusFailed {
		return false, nil
	}

	claimed, err := tx.Events.ClaimFailed(ctx, record.Provider, record.ProviderEventID)
	if err != nil {
		return false, fmt.Errorf("reclaim failed event: %w", err)
	}
	if claimed {
		record.Attempts = existing.Attempts + 1
	}
	return claimed, nil
}

func (d *Dispatcher) settle(ctx context.Context, tx *repository.Store, e providers.ChargeSucceeded, source Source) (*Result, error) {
	if e.OrderRef == "" {
		return nil, newError(KindInvalidPayload, "charge carries no order reference", nil)
	}
	order, err := d.lockOrder(ctx, tx, e.OrderRef)
	if err != nil {
		return nil, err
	}

	if order.IsSettled() {
		d.logger.Warn("Order already settled, skipping charge",
			zap.String("ref_code", order.RefCode),
			zap.String("provider", e.Provider),
			zap.String("charge_id", e.ChargeID),
			zap.String("payment_status", order.PaymentStatus),
		)
		return &Result{Outcome: OutcomeAlreadySettled, Order: order}, nil
	}
	if err := checkPayable(order); err != nil {
		return nil, err
	}

	if e.Currency != "" && e.Currency != providers.NormalizeCurrency(order.Currency) {
		return nil, newError(KindAmountMismatch,
			fmt.Sprintf("amount mismatch: currency %s does not match order currency %s", e.Currency, order.Currency), nil)
	}
	if !VerifyAmount(order.Total, e.Amount, order.Currency) {
		expected, _ := ToMinorUnits(order.Total, order.Currency)
		return nil, newError(KindAmountMismatch,
			fmt.Sprintf("amount mismatch: expected %d got %d %s", expected, e.Amount, order.Currency), nil)
	}

	paymentStatus := models.PaymentStatusSuccess
	if source == SourceRedirect {
		paymentStatus = models.PaymentStatusVerified
	}
	now := d.now()
	if err := tx.Orders.UpdatePayment(ctx, order.ID, settleUpdates(paymentStatus, now)); err != nil {
		if errors.Is(err, repository.ErrOrderAlreadySettled) {
			return nil, newError(KindInvariant, "order settled concurrently despite row lock", err)
		}
		return nil, fmt.Errorf("settle order: %w", err)
	}
	order.PaymentStatus = paymentStatus
	order.Status = models.OrderStatusPaid
	order.FailureReason = ""
	order.PaidAt = &now
	order.UpdatedAt = now

	chargeID := e.ChargeID
	if chargeID == "" {
		chargeID = e.IntentID
	}
	charge := &models.Charge{
		Provider:         e.Provider,
		ProviderChargeID: chargeID,
		ProviderIntentID: e.IntentID,
		OrderID:          order.ID,
		StoreID:          order.StoreID,
		Amount:           e.Amount,
		Fee:              e.Fee,
		Currency:         order.Currency,
		Status:           models.ChargeStatusSucceeded,
	}
	inserted, err := tx.Charges.Create(ctx, charge)
	if err != nil {
		return nil, fmt.Errorf("record charge: %w", err)
	}
	if !inserted {
		return nil, newError(KindInvariant, fmt.Sprintf("charge %s already recorded for an unsettled order", chargeID), nil)
	}

	if e.IntentID != "" {
		if _, err := d.advanceIntent(ctx, tx, e.Provider, e.IntentID, &order.ID, e.Amount, order.Currency, models.IntentStatusSucceeded); err != nil {
			return nil, err
		}
	}

	desc := fmt.Sprintf("%s charge %s for order %s", e.Provider, chargeID, order.RefCode)
	posted, err := d.ledger.PostDoubleEntry(ctx, tx.Ledger, order.StoreID, models.RefTypePayment, order.RefCode,
		SaleLegs(e.Amount, order.Currency, desc))
	if err != nil {
		return nil, err
	}
	if !posted {
		return nil, newError(KindInvariant, fmt.Sprintf("payment journal for %s exists on an unsettled order", order.RefCode), nil)
	}

	if d.feePolicy == FeePolicyMerchant && e.Fee > 0 {
		feeDesc := fmt.Sprintf("%s fee on charge %s", e.Provider, chargeID)
		if _, err := d.ledger.PostDoubleEntry(ctx, tx.Ledger, order.StoreID, models.RefTypePaymentFee, order.RefCode,
			FeeLegs(e.Fee, order.Currency, feeDesc)); err != nil {
			return nil, err
		}
	}

	return &Result{
		Outcome: OutcomeSettled,
		Order:   order,
		Charge:  charge,
		notify:  paymentEvent("payment_succeeded", order, e.Provider, chargeID, e.Amount, "", now),
	}, nil
}

func (d *Dispatcher) decline(ctx context.Context, tx *repository.Store, e providers.ChargeFailed) (*Result, error) {
	if e.OrderRef == "" {
		return nil, newError(KindInvalidPayload, "declined charge carries no order reference", nil)
	}
	order, err := d.lockOrder(ctx, tx, e.OrderRef)
	if err != nil {
		return nil, err
	}

	if e.IntentID != "" {
		status := models.IntentStatusFailed
		if e.Type == "payment_intent.canceled" {
			status = models.IntentStatusCanceled
		}
		if _, err := d.advanceIntent(ctx, tx, e.Provider, e.IntentID, &order.ID, e.Amount, order.Currency, status); err != nil {
			return nil, err
		}
	}

	if order.IsSettled() || order.Status == models.OrderStatusPaid {
		d.logger.Info("Ignoring decline for settled order",
			zap.String("ref_code", order.RefCode),
			zap.String("provider", e.Provider),
		)
		return &Result{Outcome: OutcomeAlreadySettled, Order: order}, nil
	}
	if err := checkPayable(order); err != nil {
		return nil, err
	}

	now := d.now()
	if err := tx.Orders.UpdatePayment(ctx, order.ID, declineUpdates(e.Reason, now)); err != nil {
		return nil, fmt.Errorf("decline order: %w", err)
	}
	order.PaymentStatus = models.PaymentStatusFailed
	order.Status = models.OrderStatusFailed
	order.FailureReason = truncateReason(e.Reason)
	order.FailedAt = &now
	order.UpdatedAt = now

	return &Result{
		Outcome: OutcomeDeclined,
		Order:   order,
		notify:  paymentEvent("payment_failed", order, e.Provider, e.ChargeID, e.Amount, e.Reason, now),
	}, nil
}

func (d *Dispatcher) mirrorIntent(ctx context.Context, tx *repository.Store, e providers.IntentStatusChanged) (*Result, error) {
	var orderID *uuid.UUID
	var order *models.Order
	if e.OrderRef != "" {
		o, err := tx.Orders.FindByRefCode(ctx, e.OrderRef)
		switch {
		case err == nil:
			order = o
			orderID = &o.ID
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("load order: %w", err)
		}
	}

	changed, err := d.advanceIntent(ctx, tx, e.Provider, e.IntentID, orderID, e.Amount, e.Currency, e.Status)
	if err != nil {
		return nil, err
	}
	if !changed {
		return &Result{Outcome: OutcomeIgnored, Order: order}, nil
	}
	return &Result{Outcome: OutcomeIntentUpdated, Order: order}, nil
}

// advanceIntent creates or moves the intent mirror forward. changed is false
// when the update was stale.
func (d *Dispatcher) advanceIntent(ctx context.Context, tx *repository.Store, provider, intentID string, orderID *uuid.UUID, amount int64, currency, status string) (bool, error) {
	if _, known := intentRank[status]; !known {
		d.logger.Warn("Unknown intent status", zap.String("intent_id", intentID), zap.String("status", status))
		return false, nil
	}

	intent, err := tx.Intents.LockByProviderID(ctx, provider, intentID)
	if errors.Is(err, repository.ErrNotFound) {
		err = tx.Intents.Create(ctx, &models.PaymentIntent{
			Provider:         provider,
			ProviderIntentID: intentID,
			OrderID:          orderID,
			Amount:           amount,
			Currency:         currency,
			Status:           status,
		})
		if err != nil {
			return false, fmt.Errorf("create intent: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load intent: %w", err)
	}

	if !CanAdvanceIntent(intent.Status, status) {
		d.logger.Info("Ignoring stale intent transition",
			zap.String("intent_id", intentID),
			zap.String("current", intent.Status),
			zap.String("received", status),
		)
		return false, nil
	}
	if intent.OrderID != nil {
		orderID = nil
	}
	if err := tx.Intents.UpdateStatus(ctx, intent.ID, status, orderID); err != nil {
		return false, fmt.Errorf("update intent: %w", err)
	}
	return true, nil
}

func (d *Dispatcher) refund(ctx context.Context, tx *repository.Store, e providers.ChargeRefunded) (*Result, error) {
	charge, err := tx.Charges.LockByProviderID(ctx, e.Provider, e.ChargeID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, fmt.Sprintf("charge %s not found", e.ChargeID), err)
	}
	if err != nil {
		return nil, fmt.Errorf("load charge: %w", err)
	}
	if e.Currency != "" && e.Currency != providers.NormalizeCurrency(charge.Currency) {
		return nil, newError(KindAmountMismatch,
			fmt.Sprintf("amount mismatch: refund currency %s does not match charge currency %s", e.Currency, charge.Currency), nil)
	}

	delta := e.Amount
	if e.Cumulative {
		delta = e.Amount - charge.AmountRefunded
		// a cumulative total at or below what is booked was overtaken by a later one
		if delta <= 0 {
			d.logger.Info("Ignoring stale cumulative refund",
				zap.String("charge_id", e.ChargeID),
				zap.Int64("reported_total", e.Amount),
				zap.Int64("refunded", charge.AmountRefunded),
			)
			return &Result{Outcome: OutcomeIgnored, Charge: charge}, nil
		}
	}
	remaining := charge.Amount - charge.AmountRefunded
	if delta <= 0 || delta > remaining {
		return nil, newError(KindAmountMismatch,
			fmt.Sprintf("amount mismatch: refund of %d exceeds refundable %d on charge %s", delta, remaining, e.ChargeID), nil)
	}

	desc := fmt.Sprintf("refund %s of %s charge %s", e.RefundID, e.Provider, e.ChargeID)
	posted, err := d.ledger.PostDoubleEntry(ctx, tx.Ledger, charge.StoreID, models.RefTypeRefund, e.RefundID,
		RefundLegs(delta, charge.Currency, desc))
	if err != nil {
		return nil, err
	}
	if !posted {
		return &Result{Outcome: OutcomeIgnored, Charge: charge}, nil
	}

	refunded := charge.AmountRefunded + delta
	status := models.ChargeStatusPartiallyRefunded
	if refunded == charge.Amount {
		status = models.ChargeStatusRefunded
	}
	if err := tx.Charges.UpdateRefund(ctx, charge.ID, refunded, status); err != nil {
		return nil, fmt.Errorf("update charge: %w", err)
	}
	charge.AmountRefunded = refunded
	charge.Status = status

	order, err := tx.Orders.FindByID(ctx, charge.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load refunded order: %w", err)
	}
	return &Result{
		Outcome: OutcomeRefunded,
		Order:   order,
		Charge:  charge,
		notify:  paymentEvent("payment_refunded", order, e.Provider, e.ChargeID, delta, "", d.now()),
	}, nil
}

func (d *Dispatcher) lockOrder(ctx context.Context, tx *repository.Store, refCode string) (*models.Order, error) {
	order, err := tx.Orders.LockByRefCode(ctx, refCode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, fmt.Sprintf("order %s not found", refCode), err)
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return order, nil
}

// fail records the failure outside the rolled-back transaction and schedules
// a retry for retryable webhook and queue failures.
func (d *Dispatcher) fail(ctx context.Context, ev providers.Event, record *models.InboundPaymentEvent, source Source, raw []byte, cause error) error {
	var re *ReconcileError
	if !errors.As(cause, &re) {
		re = newError(KindInternal, "settlement transaction failed", cause)
	}

	fields := []zap.Field{
		zap.String("provider", record.Provider),
		zap.String("provider_event_id", record.ProviderEventID),
		zap.String("event_type", record.EventType),
		zap.String("reference", record.Reference),
		zap.String("source", string(source)),
		zap.String("kind", re.Kind.String()),
		zap.Error(re),
	}
	if re.Kind == KindInvariant {
		d.logger.Error("CRITICAL: invariant violation, settlement rolled back", append(fields, zap.Bool("alert", true))...)
	} else {
		d.logger.Warn("Payment event failed", fields...)
	}

	bg, cancel := detached(ctx)
	defer cancel()

	if err := d.store.Events.MarkFailed(bg, record, re.Error()); err != nil {
		d.logger.Error("Failed to mark event FAILED", append(fields, zap.NamedError("mark_error", err))...)
	}
	d.archive(bg, record.Provider, record.ProviderEventID, raw)

	metric := MetricEventFailed
	if re.Kind == KindAmountMismatch {
		metric = MetricAmountMismatch
		if charge, ok := ev.(providers.ChargeSucceeded); ok && charge.OrderRef != "" {
			if err := d.store.Orders.NoteFailure(bg, charge.OrderRef, truncateReason(re.Message)); err != nil {
				d.logger.Error("Failed to record mismatch on order", append(fields, zap.NamedError("note_error", err))...)
			} else if d.effects.Cache != nil {
				if err := d.effects.Cache.Invalidate(bg, charge.OrderRef); err != nil {
					d.logger.Warn("Failed to invalidate settlement cache", append(fields, zap.NamedError("cache_error", err))...)
				}
			}
		}
	}
	d.count(bg, metric, record.Provider)

	if source != SourceRedirect && re.Kind.Retryable() && d.retry != nil {
		attempts := record.Attempts
		if stored, err := d.store.Events.Find(bg, record.Provider, record.ProviderEventID); err == nil {
			attempts = stored.Attempts
		}
		if err := d.retry.Schedule(bg, record.Provider, record.ProviderEventID, attempts); err != nil && !errors.Is(err, ErrRetryExhausted) {
			d.logger.Error("Failed to enqueue retry", append(fields, zap.NamedError("enqueue_error", err))...)
		}
	}
	return re
}

func (d *Dispatcher) afterCommit(ctx context.Context, meta providers.EventMeta, res *Result, raw []byte) {
	bg, cancel := detached(ctx)
	defer cancel()

	if res.Outcome == OutcomeDuplicate {
		d.logger.Info("Duplicate payment event ignored",
			zap.String("provider", meta.Provider),
			zap.String("provider_event_id", meta.EventID),
		)
		d.count(bg, MetricDuplicateEvent, meta.Provider)
		return
	}

	d.logger.Info("Payment event processed",
		zap.String("provider", meta.Provider),
		zap.String("provider_event_id", meta.EventID),
		zap.String("event_type", meta.Type),
		zap.String("outcome", string(res.Outcome)),
	)
	d.archive(bg, meta.Provider, meta.EventID, raw)

	switch res.Outcome {
	case OutcomeSettled:
		d.count(bg, MetricPaymentSucceeded, meta.Provider)
	case OutcomeDeclined:
		d.count(bg, MetricPaymentFailed, meta.Provider)
	case OutcomeRefunded:
		d.count(bg, MetricPaymentRefunded, meta.Provider)
	}

	if res.Order != nil && d.effects.Cache != nil {
		if err := d.effects.Cache.Invalidate(bg, res.Order.RefCode); err != nil {
			d.logger.Warn("Failed to invalidate settlement cache", zap.String("ref_code", res.Order.RefCode), zap.Error(err))
		}
	}
	if res.notify != nil {
		d.publish(bg, *res.notify)
	}
}

// publish is fire-and-forget: the settlement is already committed.
func (d *Dispatcher) publish(ctx context.Context, evt models.PaymentEvent) {
	if d.effects.Publisher == nil {
		return
	}
	if err := d.effects.Publisher.Publish(ctx, evt); err != nil {
		d.logger.Error("Failed to publish payment event",
			zap.String("event_type", evt.Type),
			zap.String("ref_code", evt.RefCode),
			zap.Error(err),
		)
		return
	}
	d.logger.Info("Payment event published",
		zap.String("event_type", evt.Type),
		zap.String("ref_code", evt.RefCode),
	)
}

func (d *Dispatcher) archive(ctx context.Context, provider, eventID string, raw []byte) {
	if d.effects.Archiver == nil || len(raw) == 0 {
		return
	}
	key := fmt.Sprintf("%s/%s/%s.json", provider, d.now().Format("2006/01/02"), eventID)
	if err := d.effects.Archiver.Archive(ctx, key, raw); err != nil {
		d.logger.Warn("Failed to archive raw payload", zap.String("key", key), zap.Error(err))
	}
}

func (d *Dispatcher) count(ctx context.Context, metric, provider string) {
	if d.effects.Metrics == nil {
		return
	}
	if err := d.effects.Metrics.RecordCount(ctx, metric, map[string]string{"Provider": provider}); err != nil {
		d.logger.Warn("Failed to record metric", zap.String("metric", metric), zap.Error(err))
	}
}

func paymentEvent(typ string, order *models.Order, provider, chargeID string, amount int64, reason string, at time.Time) *models.PaymentEvent {
	return &models.PaymentEvent{
		Type:      typ,
		OrderID:   order.ID.String(),
		StoreID:   order.StoreID.String(),
		RefCode:   order.RefCode,
		Provider:  provider,
		ChargeID:  chargeID,
		Status:    order.PaymentStatus,
		Amount:    amount,
		Currency:  order.Currency,
		Reason:    reason,
		Timestamp: at,
	}
}

func jsonPayload(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}
