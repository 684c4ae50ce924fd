// Package testutil provides an in-memory database and fixtures for tests that
// need real transactions.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yashrajoria/settlement-service/database"
	"github.com/yashrajoria/settlement-service/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with the full schema.
// A single connection makes concurrent transactions queue behind each other.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_busy_timeout=5000", name, uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateOrder inserts a PENDING_PAYMENT order with the given total.
func CreateOrder(t *testing.T, db *gorm.DB, refCode, total, currency string) *models.Order {
	t.Helper()
	order := &models.Order{
		StoreID:       uuid.New(),
		RefCode:       refCode,
		Total:         decimal.RequireFromString(total),
		Currency:      currency,
		Status:        models.OrderStatusPendingPayment,
		PaymentStatus: models.PaymentStatusPending,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

// ReloadOrder reads the order back from the database.
func ReloadOrder(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	if err := db.First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return &order
}

// Count returns the number of rows of model matching an optional condition.
func Count(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
