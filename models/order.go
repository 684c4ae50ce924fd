package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order business lifecycle statuses.
const (
	OrderStatusDraft          = "DRAFT"
	OrderStatusPendingPayment = "PENDING_PAYMENT"
	OrderStatusPaid           = "PAID"
	OrderStatusFailed         = "FAILED"
)

// Order payment statuses. SUCCESS and VERIFIED are terminal.
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusSuccess  = "SUCCESS"
	PaymentStatusVerified = "VERIFIED"
	PaymentStatusFailed   = "FAILED"
)

// Order is owned by checkout; this service only mutates its payment fields.
type Order struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"store_id"`
	RefCode       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"ref_code"`
	Total         decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"total"`
	Currency      string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status        string          `gorm:"type:varchar(20);not null;default:'PENDING_PAYMENT'" json:"status"`
	PaymentStatus string          `gorm:"type:varchar(20);not null;default:'PENDING'" json:"payment_status"`
	FailureReason string          `gorm:"type:varchar(255)" json:"failure_reason,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	FailedAt      *time.Time      `json:"failed_at,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// IsSettled reports whether the order already reached a terminal success state.
func (o *Order) IsSettled() bool {
	return o.PaymentStatus == PaymentStatusSuccess || o.PaymentStatus == PaymentStatusVerified
}
