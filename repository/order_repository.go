package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yashrajoria/settlement-service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrOrderAlreadySettled is returned when a conditional payment update finds
// the order already in a terminal success state.
var ErrOrderAlreadySettled = errors.New("order already settled")

// OrderRepository defines the data access the settlement pipeline needs on orders.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByRefCode(ctx context.Context, refCode string) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// LockByRefCode reads the order with a row lock held until the surrounding
	// transaction ends.
	LockByRefCode(ctx context.Context, refCode string) (*models.Order, error)
	// UpdatePayment applies updates only while the order is not yet settled.
	UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	// NoteFailure records why a payment attempt was rejected without
	// changing the order's status. Settled orders are left alone.
	NoteFailure(ctx context.Context, refCode, reason string) error
}

type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *GormOrderRepository) FindByRefCode(ctx context.Context, refCode string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("ref_code = ?", refCode).First(&order).Error; err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (r *GormOrderRepository) LockByRefCode(ctx context.Context, refCode string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("ref_code = ?", refCode).
		First(&order).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (r *GormOrderRepository) UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status NOT IN ?", id, []string{models.PaymentStatusSuccess, models.PaymentStatusVerified}).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOrderAlreadySettled
	}
	return nil
}

func (r *GormOrderRepository) NoteFailure(ctx context.Context, refCode, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("ref_code = ? AND payment_status NOT IN ?", refCode, []string{models.PaymentStatusSuccess, models.PaymentStatusVerified}).
		Updates(map[string]interface{}{
			"failure_reason": reason,
			"updated_at":     time.Now().UTC(),
		}).Error
}
