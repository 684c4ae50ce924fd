package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// Well-known ledger accounts.
const (
	AccountCash    = "cash"
	AccountRevenue = "revenue"
	AccountFees    = "fees"
)

// Ledger reference types.
const (
	RefTypePayment    = "payment"
	RefTypePaymentFee = "payment_fee"
	RefTypeRefund     = "refund"
)

// LedgerJournal groups the legs of one posting. The unique
// (reference_type, reference_id) index makes a posting write-once.
type LedgerJournal struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID       uuid.UUID `gorm:"type:uuid;not null;index" json:"store_id"`
	ReferenceType string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_ledger_journals_reference,priority:1" json:"reference_type"`
	ReferenceID   string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_ledger_journals_reference,priority:2" json:"reference_id"`
	Currency      string    `gorm:"type:varchar(3);not null" json:"currency"`
	Description   string    `gorm:"type:varchar(255)" json:"description"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (j *LedgerJournal) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// LedgerEntry is one immutable leg. Amounts are in minor units.
type LedgerEntry struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JournalID     uuid.UUID `gorm:"type:uuid;not null;index" json:"journal_id"`
	StoreID       uuid.UUID `gorm:"type:uuid;not null;index" json:"store_id"`
	ReferenceType string    `gorm:"type:varchar(32);not null;index:ix_ledger_entries_reference,priority:1" json:"reference_type"`
	ReferenceID   string    `gorm:"type:varchar(191);not null;index:ix_ledger_entries_reference,priority:2" json:"reference_id"`
	Direction     Direction `gorm:"type:varchar(6);not null" json:"direction"`
	Account       string    `gorm:"type:varchar(64);not null;index" json:"account"`
	Amount        int64     `gorm:"not null" json:"amount"`
	Currency      string    `gorm:"type:varchar(3);not null" json:"currency"`
	Description   string    `gorm:"type:varchar(255)" json:"description"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// LedgerImbalance is one row of the balance audit.
type LedgerImbalance struct {
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	Currency      string `json:"currency"`
	Net           int64  `json:"net"`
}

// SettlementView is the read model served for one order reference.
type SettlementView struct {
	Order   Order                 `json:"order"`
	Charges []Charge              `json:"charges"`
	Ledger  []LedgerEntry         `json:"ledger"`
	Events  []InboundPaymentEvent `json:"events"`
}
