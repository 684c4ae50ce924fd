package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned by finders when no row matches.
var ErrNotFound = errors.New("record not found")

// Store bundles the repositories that share one connection or transaction.
type Store struct {
	db      *gorm.DB
	Orders  OrderRepository
	Events  EventRepository
	Intents IntentRepository
	Charges ChargeRepository
	Ledger  LedgerRepository
}

// NewStore wires every repository onto db. Passing a *gorm.DB that is a
// transaction yields a Store whose writes all belong to that transaction.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:      db,
		Orders:  NewGormOrderRepository(db),
		Events:  NewGormEventRepository(db),
		Intents: NewGormIntentRepository(db),
		Charges: NewGormChargeRepository(db),
		Ledger:  NewGormLedgerRepository(db),
	}
}

// Transaction runs fn inside one database transaction. Any error returned by
// fn rolls every write back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// DB exposes the underlying handle for health checks and migrations.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
