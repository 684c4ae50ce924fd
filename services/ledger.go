package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/yashrajoria/settlement-service/models"
	"github.com/yashrajoria/settlement-service/repository"
	"go.uber.org/zap"
)

// Leg is one side of a double-entry posting. Amount is in minor units.
type Leg struct {
	Direction   models.Direction
	Account     string
	Amount      int64
	Currency    string
	Description string
}

// LedgerEngine appends balanced journals. It never updates or deletes rows;
// corrections are new offsetting journals.
type LedgerEngine struct {
	logger *zap.Logger
}

func NewLedgerEngine(logger *zap.Logger) *LedgerEngine {
	return &LedgerEngine{logger: logger}
}

// PostDoubleEntry writes legs under (referenceType, referenceID) at most once.
// posted is false when the journal already existed. Unbalanced or malformed
// legs are an invariant violation and must abort the caller's transaction.
func (l *LedgerEngine) PostDoubleEntry(ctx context.Context, ledger repository.LedgerRepository, storeID uuid.UUID, referenceType, referenceID string, legs []Leg) (bool, error) {
	currency, err := validateLegs(legs)
	if err != nil {
		l.logger.Error("CRITICAL: refusing unbalanced ledger posting",
			zap.Bool("alert", true),
			zap.String("reference_type", referenceType),
			zap.String("reference_id", referenceID),
			zap.Error(err),
		)
		return false, newError(KindInvariant, "ledger legs do not balance", err)
	}

	exists, err := ledger.JournalExists(ctx, referenceType, referenceID)
	if err != nil {
		return false, fmt.Errorf("check journal: %w", err)
	}
	if exists {
		l.logger.Info("Ledger journal already posted",
			zap.String("reference_type", referenceType),
			zap.String("reference_id", referenceID),
		)
		return false, nil
	}

	journal := &models.LedgerJournal{
		StoreID:       storeID,
		ReferenceType: referenceType,
		ReferenceID:   referenceID,
		Currency:      currency,
		Description:   legs[0].Description,
	}
	entries := make([]models.LedgerEntry, 0, len(legs))
	for _, leg := range legs {
		entries = append(entries, models.LedgerEntry{
			StoreID:       storeID,
			ReferenceType: referenceType,
			ReferenceID:   referenceID,
			Direction:     leg.Direction,
			Account:       leg.Account,
			Amount:        leg.Amount,
			Currency:      leg.Currency,
			Description:   leg.Description,
		})
	}

	inserted, err := ledger.Append(ctx, journal, entries)
	if err != nil {
		return false, fmt.Errorf("append journal: %w", err)
	}
	return inserted, nil
}

func validateLegs(legs []Leg) (string, error) {
	if len(legs) < 2 {
		return "", fmt.Errorf("a posting needs at least two legs, got %d", len(legs))
	}
	currency := legs[0].Currency
	var debits, credits int64
	for i, leg := range legs {
		if leg.Account == "" {
			return "", fmt.Errorf("leg %d has no account", i)
		}
		if leg.Amount <= 0 {
			return "", fmt.Errorf("leg %d amount must be positive, got %d", i, leg.Amount)
		}
		if leg.Currency == "" || leg.Currency != currency {
			return "", fmt.Errorf("leg %d currency %q differs from %q", i, leg.Currency, currency)
		}
		switch leg.Direction {
		case models.Debit:
			debits += leg.Amount
		case models.Credit:
			credits += leg.Amount
		default:
			return "", fmt.Errorf("leg %d has unknown direction %q", i, leg.Direction)
		}
	}
	if debits != credits {
		return "", fmt.Errorf("debits %d != credits %d %s", debits, credits, currency)
	}
	return currency, nil
}

// SaleLegs moves a settled payment into cash against revenue.
func SaleLegs(amount int64, currency, description string) []Leg {
	return []Leg{
		{Direction: models.Debit, Account: models.AccountCash, Amount: amount, Currency: currency, Description: description},
		{Direction: models.Credit, Account: models.AccountRevenue, Amount: amount, Currency: currency, Description: description},
	}
}

// RefundLegs offset a sale without touching its entries.
func RefundLegs(amount int64, currency, description string) []Leg {
	return []Leg{
		{Direction: models.Debit, Account: models.AccountRevenue, Amount: amount, Currency: currency, Description: description},
		{Direction: models.Credit, Account: models.AccountCash, Amount: amount, Currency: currency, Description: description},
	}
}

// FeeLegs record a provider fee borne by the merchant.
func FeeLegs(amount int64, currency, description string) []Leg {
	return []Leg{
		{Direction: models.Debit, Account: models.AccountFees, Amount: amount, Currency: currency, Description: description},
		{Direction: models.Credit, Account: models.AccountCash, Amount: amount, Currency: currency, Description: description},
	}
}
