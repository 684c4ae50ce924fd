package providers

import "strings"

// EventMeta identifies one provider notification.
type EventMeta struct {
	Provider string `validate:"required,max=32"`
	EventID  string `validate:"required,max=191"` // idempotency key component, unique per provider
	Type     string `validate:"max=64"`           // provider event name, e.g. "charge.success"
}

// Event is a closed set of normalized provider events. Consumers switch on
// the concrete type.
type Event interface {
	Meta() EventMeta
	// Reference is the merchant order reference the event correlates to, if any.
	Reference() string
	isEvent()
}

// ChargeSucceeded reports money captured for an order.
type ChargeSucceeded struct {
	EventMeta
	OrderRef string `validate:"max=128"`
	ChargeID string `validate:"required,max=191"`
	IntentID string `validate:"max=191"`
	Amount   int64  `validate:"gt=0"` // minor units
	Currency string `validate:"omitempty,len=3"`
	Fee      int64  `validate:"gte=0"` // minor units
	// FeeKnown is set once Fee comes from the provider's settlement record.
	// Webhook bodies may omit it; Complete fills it before dispatch.
	FeeKnown bool
	Channel  string
}

// ChargeFailed reports a declined or abandoned payment attempt.
type ChargeFailed struct {
	EventMeta
	OrderRef string `validate:"max=128"`
	ChargeID string
	IntentID string
	Amount   int64  `validate:"gte=0"`
	Currency string `validate:"omitempty,len=3"`
	Reason   string
}

// IntentStatusChanged mirrors a non-terminal payment intent transition.
type IntentStatusChanged struct {
	EventMeta
	OrderRef string `validate:"max=128"`
	IntentID string `validate:"required,max=191"`
	Amount   int64  `validate:"gte=0"`
	Currency string `validate:"omitempty,len=3"`
	Status   string
}

// ChargeRefunded reports money returned against an existing charge.
type ChargeRefunded struct {
	EventMeta
	ChargeID string `validate:"required,max=191"`
	RefundID string `validate:"required,max=191"`
	// Amount is this refund alone, or the charge's running refunded total
	// when Cumulative is set.
	Amount     int64 `validate:"gt=0"`
	Cumulative bool
	Currency   string `validate:"omitempty,len=3"`
}

// Unhandled is any verified event type the pipeline does not act on.
type Unhandled struct {
	EventMeta
	OrderRef string
}

func (m EventMeta) Meta() EventMeta { return m }

func (e ChargeSucceeded) Reference() string     { return e.OrderRef }
func (e ChargeFailed) Reference() string        { return e.OrderRef }
func (e IntentStatusChanged) Reference() string { return e.OrderRef }
func (e ChargeRefunded) Reference() string      { return e.ChargeID }
func (e Unhandled) Reference() string           { return e.OrderRef }

func (ChargeSucceeded) isEvent()     {}
func (ChargeFailed) isEvent()        {}
func (IntentStatusChanged) isEvent() {}
func (ChargeRefunded) isEvent()      {}
func (Unhandled) isEvent()           {}

// NormalizeCurrency upper-cases ISO 4217 codes.
func NormalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
