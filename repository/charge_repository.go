package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yashrajoria/settlement-service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChargeRepository interface {
	// Create inserts the charge once per (provider, provider_charge_id).
	Create(ctx context.Context, charge *models.Charge) (inserted bool, err error)
	LockByProviderID(ctx context.Context, provider, providerChargeID string) (*models.Charge, error)
	UpdateRefund(ctx context.Context, id uuid.UUID, amountRefunded int64, status string) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Charge, error)
}

type GormChargeRepository struct {
	db *gorm.DB
}

func NewGormChargeRepository(db *gorm.DB) ChargeRepository {
	return &GormChargeRepository{db: db}
}

func (r *GormChargeRepository) Create(ctx context.Context, charge *models.Charge) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_charge_id"}},
			DoNothing: true,
		}).
		Create(charge)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormChargeRepository) LockByProviderID(ctx context.Context, provider, providerChargeID string) (*models.Charge, error) {
	var charge models.Charge
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider = ? AND provider_charge_id = ?", provider, providerChargeID).
		First(&charge).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &charge, nil
}

func (r *GormChargeRepository) UpdateRefund(ctx context.Context, id uuid.UUID, amountRefunded int64, status string) error {
	return r.db.WithContext(ctx).
		Model(&models.Charge{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"amount_refunded": amountRefunded,
			"status":          status,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *GormChargeRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Charge, error) {
	var charges []models.Charge
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&charges).Error
	return charges, err
}
