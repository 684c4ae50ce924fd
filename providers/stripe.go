package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/webhook"
)

const (
	StripeName            = "stripe"
	StripeSignatureHeader = "Stripe-Signature"
)

// StripeProvider authenticates Stripe-Signature webhooks and reads payment
// intents through the Stripe API.
type StripeProvider struct {
	webhookSecret string
	intents       *paymentintent.Client
}

func NewStripeProvider(apiKey, webhookSecret string) *StripeProvider {
	return &StripeProvider{
		webhookSecret: webhookSecret,
		intents:       &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: apiKey},
	}
}

// NewStripeProviderWithBackend is used by tests to point lookups at a fake API.
func NewStripeProviderWithBackend(apiKey, webhookSecret string, backend stripe.Backend) *StripeProvider {
	return &StripeProvider{
		webhookSecret: webhookSecret,
		intents:       &paymentintent.Client{B: backend, Key: apiKey},
	}
}

func (p *StripeProvider) Name() string { return StripeName }

func (p *StripeProvider) VerifySignature(body []byte, header http.Header) error {
	if p.webhookSecret == "" {
		return ErrInvalidSignature
	}
	_, err := webhook.ConstructEventWithOptions(body, header.Get(StripeSignatureHeader), p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

func (p *StripeProvider) ParseEvent(body []byte) (Event, error) {
	var evt stripe.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if evt.ID == "" || evt.Data == nil {
		return nil, fmt.Errorf("%w: missing id or data", ErrMalformedPayload)
	}
	meta := EventMeta{Provider: StripeName, EventID: evt.ID, Type: string(evt.Type)}

	switch evt.Type {
	case "payment_intent.succeeded",
		"payment_intent.payment_failed",
		"payment_intent.processing",
		"payment_intent.requires_action",
		"payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if pi.ID == "" {
			return nil, fmt.Errorf("%w: payment intent id is empty", ErrMalformedPayload)
		}
		return intentEvent(meta, &pi), nil
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if ch.ID == "" || ch.AmountRefunded <= 0 {
			return nil, fmt.Errorf("%w: incomplete refund", ErrMalformedPayload)
		}
		return ChargeRefunded{
			EventMeta:  meta,
			ChargeID:   ch.ID,
			RefundID:   evt.ID,
			Amount:     ch.AmountRefunded,
			Cumulative: true,
			Currency:   NormalizeCurrency(string(ch.Currency)),
		}, nil
	default:
		return Unhandled{EventMeta: meta}, nil
	}
}

// fetchIntent reads an intent with its latest charge's balance transaction,
// which carries the processing fee.
func (p *StripeProvider) fetchIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge.balance_transaction")

	pi, err := p.intents.Get(id, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == http.StatusNotFound {
			return nil, ErrTransactionNotFound
		}
		return nil, &LookupError{Provider: StripeName, Err: err}
	}
	return pi, nil
}

func (p *StripeProvider) VerifyTransaction(ctx context.Context, reference string) (Event, error) {
	pi, err := p.fetchIntent(ctx, reference)
	if err != nil {
		return nil, err
	}
	meta := EventMeta{
		Provider: StripeName,
		EventID:  fmt.Sprintf("verify:%s:%s", pi.ID, pi.Status),
		Type:     "payment_intent." + string(pi.Status),
	}
	return intentEvent(meta, pi), nil
}

// intentEvent maps a payment intent snapshot onto the normalized events.
func intentEvent(meta EventMeta, pi *stripe.PaymentIntent) Event {
	orderRef := stripeOrderRef(pi.Metadata)
	currency := NormalizeCurrency(string(pi.Currency))

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		amount := pi.AmountReceived
		if amount == 0 {
			amount = pi.Amount
		}
		chargeID := pi.ID
		if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
			chargeID = pi.LatestCharge.ID
		}
		fee, known := stripeFee(pi)
		return ChargeSucceeded{
			EventMeta: meta,
			OrderRef:  orderRef,
			ChargeID:  chargeID,
			IntentID:  pi.ID,
			Amount:    amount,
			Currency:  currency,
			Fee:       fee,
			FeeKnown:  known,
		}
	case stripe.PaymentIntentStatusCanceled:
		reason := "payment canceled"
		if pi.CancellationReason != "" {
			reason += ": " + string(pi.CancellationReason)
		}
		return ChargeFailed{
			EventMeta: meta,
			OrderRef:  orderRef,
			IntentID:  pi.ID,
			Amount:    pi.Amount,
			Currency:  currency,
			Reason:    reason,
		}
	}

	if meta.Type == "payment_intent.payment_failed" {
		reason := "payment failed"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			reason = pi.LastPaymentError.Msg
		}
		return ChargeFailed{
			EventMeta: meta,
			OrderRef:  orderRef,
			IntentID:  pi.ID,
			Amount:    pi.Amount,
			Currency:  currency,
			Reason:    reason,
		}
	}

	return IntentStatusChanged{
		EventMeta: meta,
		OrderRef:  orderRef,
		IntentID:  pi.ID,
		Amount:    pi.Amount,
		Currency:  currency,
		Status:    string(pi.Status),
	}
}

func stripeOrderRef(md map[string]string) string {
	for _, key := range []string{"ref_code", "order_ref"} {
		if v := md[key]; v != "" {
			return v
		}
	}
	return ""
}

// stripeFee reads the fee from an expanded balance transaction. Webhook
// payloads carry latest_charge as a bare id, so known is false there.
func stripeFee(pi *stripe.PaymentIntent) (fee int64, known bool) {
	if pi.LatestCharge == nil || pi.LatestCharge.BalanceTransaction == nil {
		return 0, false
	}
	return pi.LatestCharge.BalanceTransaction.Fee, true
}

// Enrich fetches the fee for a succeeded intent whose webhook body did not
// expand it, through the same lookup the redirect path uses.
func (p *StripeProvider) Enrich(ctx context.Context, ev Event) (Event, error) {
	cs, ok := ev.(ChargeSucceeded)
	if !ok || cs.FeeKnown || cs.IntentID == "" {
		return ev, nil
	}
	pi, err := p.fetchIntent(ctx, cs.IntentID)
	if err != nil {
		return nil, err
	}
	fee, known := stripeFee(pi)
	if !known {
		return nil, &LookupError{Provider: StripeName, Err: fmt.Errorf("balance transaction for %s not available yet", cs.IntentID)}
	}
	cs.Fee = fee
	cs.FeeKnown = true
	if pi.LatestCharge.ID != "" {
		cs.ChargeID = pi.LatestCharge.ID
	}
	return cs, nil
}
