package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/settlement-service/models"
	"github.com/yashrajoria/settlement-service/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestEventInsert_Conflict(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormEventRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT ("provider","provider_event_id") DO NOTHING`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	inserted, err := repo.Insert(context.Background(), &models.InboundPaymentEvent{
		Provider:        "paystack",
		ProviderEventID: "charge.success:trx_1",
		EventType:       "charge.success",
		Source:          "webhook",
		Status:          models.EventStatusReceived,
		ReceivedAt:      time.Now(),
	})
	assert.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventMarkFailed_UpsertSkipsProcessed(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormEventRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`ON CONFLICT \("provider","provider_event_id"\) DO UPDATE SET .*"inbound_payment_events"\."status" <> `).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.MarkFailed(context.Background(), &models.InboundPaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		EventType:       "payment_intent.succeeded",
		Source:          "webhook",
	}, "amount mismatch: expected 100 got 90 USD")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderLockByRefCode_UsesRowLock(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "store_id", "ref_code", "total", "currency", "status", "payment_status", "created_at", "updated_at"}).
		AddRow(id, uuid.New(), "ORD-77", "45000.00", "NGN", models.OrderStatusPendingPayment, models.PaymentStatusPending, now, now)

	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE ref_code = \$1 .*FOR UPDATE`).
		WillReturnRows(rows)

	order, err := repo.LockByRefCode(context.Background(), "ORD-77")
	require.NoError(t, err)
	assert.Equal(t, id, order.ID)
	assert.Equal(t, "45000", order.Total.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderFindByRefCode_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))

	o, err := repo.FindByRefCode(context.Background(), "ORD-404")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, o)
}

func TestOrderUpdatePayment_AlreadySettled(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.UpdatePayment(context.Background(), uuid.New(), map[string]interface{}{
		"payment_status": models.PaymentStatusSuccess,
		"status":         models.OrderStatusPaid,
	})
	assert.ErrorIs(t, err, repository.ErrOrderAlreadySettled)
}

func TestChargeLockByProviderID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormChargeRepository(gormDB)

	mock.ExpectQuery(`SELECT \* FROM "charges" WHERE provider = \$1 AND provider_charge_id = \$2 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{}))

	c, err := repo.LockByProviderID(context.Background(), "stripe", "ch_missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, c)
}

func TestLedgerAppend_ExistingJournal(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormLedgerRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ledger_journals"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	inserted, err := repo.Append(context.Background(), &models.LedgerJournal{
		StoreID:       uuid.New(),
		ReferenceType: models.RefTypePayment,
		ReferenceID:   "ORD-77",
		Currency:      "NGN",
	}, []models.LedgerEntry{{Direction: models.Debit}, {Direction: models.Credit}})
	assert.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerImbalances(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormLedgerRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT reference_type, reference_id, currency, SUM(CASE WHEN direction = 'DEBIT' THEN amount ELSE -amount END) AS net FROM "ledger_entries" GROUP BY reference_type, reference_id, currency HAVING`)).
		WillReturnRows(sqlmock.NewRows([]string{"reference_type", "reference_id", "currency", "net"}).
			AddRow("payment", "ORD-9", "USD", 5))

	rows, err := repo.Imbalances(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.LedgerImbalance{ReferenceType: "payment", ReferenceID: "ORD-9", Currency: "USD", Net: 5}, rows[0])
}

func TestEventListByStatus_DefaultLimit(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormEventRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "inbound_payment_events" WHERE status = $1 ORDER BY received_at DESC LIMIT $2`)).
		WithArgs(models.EventStatusFailed, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "provider", "provider_event_id", "status"}).
			AddRow(uuid.New(), "paystack", "charge.success:trx_1", models.EventStatusFailed))

	events, err := repo.ListByStatus(context.Background(), models.EventStatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "charge.success:trx_1", events[0].ProviderEventID)
}
