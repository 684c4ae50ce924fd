package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/settlement-service/models"
	"github.com/yashrajoria/settlement-service/repository"
	"github.com/yashrajoria/settlement-service/services"
	"github.com/yashrajoria/settlement-service/testutil"
	"go.uber.org/zap"
)

func TestPostDoubleEntryWritesOnce(t *testing.T) {
	db := testutil.NewDB(t)
	store := repository.NewStore(db)
	engine := services.NewLedgerEngine(zap.NewNop())
	storeID := uuid.New()

	posted, err := engine.PostDoubleEntry(context.Background(), store.Ledger, storeID, models.RefTypePayment, "ORD-1", services.SaleLegs(500, "USD", "sale"))
	require.NoError(t, err)
	assert.True(t, posted)

	posted, err = engine.PostDoubleEntry(context.Background(), store.Ledger, storeID, models.RefTypePayment, "ORD-1", services.SaleLegs(500, "USD", "sale"))
	require.NoError(t, err)
	assert.False(t, posted)

	assert.Equal(t, int64(1), testutil.Count(t, db, &models.LedgerJournal{}, ""))
	assert.Equal(t, int64(2), testutil.Count(t, db, &models.LedgerEntry{}, ""))
}

func TestPostDoubleEntryRejectsBadLegs(t *testing.T) {
	db := testutil.NewDB(t)
	store := repository.NewStore(db)
	engine := services.NewLedgerEngine(zap.NewNop())

	tests := []struct {
		name string
		legs []services.Leg
	}{
		{"single leg", []services.Leg{{Direction: models.Debit, Account: models.AccountCash, Amount: 1, Currency: "USD"}}},
		{"unbalanced", []services.Leg{
			{Direction: models.Debit, Account: models.AccountCash, Amount: 100, Currency: "USD"},
			{Direction: models.Credit, Account: models.AccountRevenue, Amount: 90, Currency: "USD"},
		}},
		{"mixed currency", []services.Leg{
			{Direction: models.Debit, Account: models.AccountCash, Amount: 100, Currency: "USD"},
			{Direction: models.Credit, Account: models.AccountRevenue, Amount: 100, Currency: "EUR"},
		}},
		{"zero amount", services.SaleLegs(0, "USD", "")},
		{"no account", []services.Leg{
			{Direction: models.Debit, Amount: 100, Currency: "USD"},
			{Direction: models.Credit, Account: models.AccountRevenue, Amount: 100, Currency: "USD"},
		}},
		{"bad direction", []services.Leg{
			{Direction: "SIDEWAYS", Account: models.AccountCash, Amount: 100, Currency: "USD"},
			{Direction: models.Credit, Account: models.AccountRevenue, Amount: 100, Currency: "USD"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posted, err := engine.PostDoubleEntry(context.Background(), store.Ledger, uuid.New(), models.RefTypePayment, "ORD-X", tt.legs)
			require.Error(t, err)
			assert.False(t, posted)
			assert.True(t, services.IsKind(err, services.KindInvariant))
		})
	}
	assert.Zero(t, testutil.Count(t, db, &models.LedgerEntry{}, ""))
}

func TestPostingRollsBackWithTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	store := repository.NewStore(db)
	engine := services.NewLedgerEngine(zap.NewNop())

	err := store.Transaction(context.Background(), func(tx *repository.Store) error {
		if _, err := engine.PostDoubleEntry(context.Background(), tx.Ledger, uuid.New(), models.RefTypePayment, "ORD-RB", services.SaleLegs(100, "USD", "")); err != nil {
			return err
		}
		_, err := engine.PostDoubleEntry(context.Background(), tx.Ledger, uuid.New(), models.RefTypePaymentFee, "ORD-RB", []services.Leg{
			{Direction: models.Debit, Account: models.AccountFees, Amount: 3, Currency: "USD"},
			{Direction: models.Credit, Account: models.AccountCash, Amount: 2, Currency: "USD"},
		})
		return err
	})
	require.Error(t, err)
	assert.Zero(t, testutil.Count(t, db, &models.LedgerJournal{}, ""))
	assert.Zero(t, testutil.Count(t, db, &models.LedgerEntry{}, ""))
}
