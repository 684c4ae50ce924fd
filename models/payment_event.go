package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Inbound event processing statuses.
const (
	EventStatusReceived  = "RECEIVED"
	EventStatusProcessed = "PROCESSED"
	EventStatusFailed    = "FAILED"
)

// InboundPaymentEvent is the audit row for one provider notification. The
// (provider, provider_event_id) pair is the idempotency key.
type InboundPaymentEvent struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Provider        string         `gorm:"type:varchar(32);not null;uniqueIndex:ux_inbound_events_provider_event,priority:1" json:"provider"`
	ProviderEventID string         `gorm:"type:varchar(191);not null;uniqueIndex:ux_inbound_events_provider_event,priority:2" json:"provider_event_id"`
	EventType       string         `gorm:"type:varchar(64);not null;index" json:"event_type"`
	Reference       string         `gorm:"type:varchar(128);index" json:"reference"`
	Source          string         `gorm:"type:varchar(16);not null" json:"source"` // webhook | redirect | retry
	Payload         datatypes.JSON `json:"payload"`
	Status          string         `gorm:"type:varchar(16);not null;index" json:"status"`
	Attempts        int            `gorm:"not null;default:1" json:"attempts"`
	LastError       string         `gorm:"type:text" json:"last_error,omitempty"`
	ReceivedAt      time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *InboundPaymentEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// PaymentEvent is published to SNS/Kafka after a settlement commits.
type PaymentEvent struct {
	Type      string    `json:"type"` // payment_succeeded | payment_failed | payment_refunded
	OrderID   string    `json:"order_id"`
	StoreID   string    `json:"store_id"`
	RefCode   string    `json:"ref_code"`
	Provider  string    `json:"provider"`
	ChargeID  string    `json:"charge_id,omitempty"`
	Status    string    `json:"status"`
	Amount    int64     `json:"amount"`   // smallest currency unit
	Currency  string    `json:"currency"` // ISO 4217
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RetryJob is the SQS message body used to re-run a failed event.
type RetryJob struct {
	Provider        string `json:"provider"`
	ProviderEventID string `json:"provider_event_id"`
	Attempt         int    `json:"attempt"`
}
