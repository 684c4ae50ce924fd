package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentIntent statuses mirrored from the provider.
const (
	IntentStatusRequiresPaymentMethod = "requires_payment_method"
	IntentStatusRequiresAction        = "requires_action"
	IntentStatusProcessing            = "processing"
	IntentStatusSucceeded             = "succeeded"
	IntentStatusFailed                = "failed"
	IntentStatusCanceled              = "canceled"
)

// Charge statuses. Only succeeded -> partially_refunded -> refunded is allowed.
const (
	ChargeStatusSucceeded         = "succeeded"
	ChargeStatusPartiallyRefunded = "partially_refunded"
	ChargeStatusRefunded          = "refunded"
)

type PaymentIntent struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Provider         string     `gorm:"type:varchar(32);not null;uniqueIndex:ux_payment_intents_provider_intent,priority:1" json:"provider"`
	ProviderIntentID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_intents_provider_intent,priority:2" json:"provider_intent_id"`
	OrderID          *uuid.UUID `gorm:"type:uuid;index" json:"order_id,omitempty"`
	Amount           int64      `gorm:"not null" json:"amount"`
	Currency         string     `gorm:"type:varchar(3);not null" json:"currency"`
	Status           string     `gorm:"type:varchar(32);not null" json:"status"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *PaymentIntent) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Charge is immutable once created except for the refund transition.
type Charge struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Provider         string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_charges_provider_charge,priority:1" json:"provider"`
	ProviderChargeID string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_charges_provider_charge,priority:2" json:"provider_charge_id"`
	ProviderIntentID string    `gorm:"type:varchar(191)" json:"provider_intent_id,omitempty"`
	OrderID          uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	StoreID          uuid.UUID `gorm:"type:uuid;not null;index" json:"store_id"`
	Amount           int64     `gorm:"not null" json:"amount"`
	AmountRefunded   int64     `gorm:"not null;default:0" json:"amount_refunded"`
	Fee              int64     `gorm:"not null;default:0" json:"fee"`
	Currency         string    `gorm:"type:varchar(3);not null" json:"currency"`
	Status           string    `gorm:"type:varchar(32);not null" json:"status"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Charge) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
