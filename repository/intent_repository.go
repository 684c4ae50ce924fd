package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yashrajoria/settlement-service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IntentRepository interface {
	// LockByProviderID returns ErrNotFound when the intent has not been mirrored yet.
	LockByProviderID(ctx context.Context, provider, providerIntentID string) (*models.PaymentIntent, error)
	Create(ctx context.Context, intent *models.PaymentIntent) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, orderID *uuid.UUID) error
}

type GormIntentRepository struct {
	db *gorm.DB
}

func NewGormIntentRepository(db *gorm.DB) IntentRepository {
	return &GormIntentRepository{db: db}
}

func (r *GormIntentRepository) LockByProviderID(ctx context.Context, provider, providerIntentID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider = ? AND provider_intent_id = ?", provider, providerIntentID).
		First(&intent).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &intent, nil
}

func (r *GormIntentRepository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *GormIntentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, orderID *uuid.UUID) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if orderID != nil {
		updates["order_id"] = *orderID
	}
	return r.db.WithContext(ctx).Model(&models.PaymentIntent{}).Where("id = ?", id).Updates(updates).Error
}
