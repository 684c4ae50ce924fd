package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yashrajoria/settlement-service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventRepository persists inbound provider events keyed by (provider, provider_event_id).
type EventRepository interface {
	// Insert adds the event unless the idempotency key already exists.
	// inserted is false when another row holds the key.
	Insert(ctx context.Context, evt *models.InboundPaymentEvent) (inserted bool, err error)
	Find(ctx context.Context, provider, providerEventID string) (*models.InboundPaymentEvent, error)
	// ClaimFailed moves a FAILED event back to RECEIVED so it can be
	// reprocessed. claimed is false when the event is not FAILED.
	ClaimFailed(ctx context.Context, provider, providerEventID string) (claimed bool, err error)
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkFailed records a failure for the key, creating the row when the
	// failed transaction rolled it back and counting an attempt otherwise.
	// PROCESSED rows are never touched.
	MarkFailed(ctx context.Context, evt *models.InboundPaymentEvent, reason string) error
	ListByStatus(ctx context.Context, status string, limit int) ([]models.InboundPaymentEvent, error)
	ListByReference(ctx context.Context, reference string) ([]models.InboundPaymentEvent, error)
}

type GormEventRepository struct {
	db *gorm.DB
}

func NewGormEventRepository(db *gorm.DB) EventRepository {
	return &GormEventRepository{db: db}
}

func eventKeyColumns() []clause.Column {
	return []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}}
}

func (r *GormEventRepository) Insert(ctx context.Context, evt *models.InboundPaymentEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: eventKeyColumns(), DoNothing: true}).
		Create(evt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormEventRepository) Find(ctx context.Context, provider, providerEventID string) (*models.InboundPaymentEvent, error) {
	var evt models.InboundPaymentEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&evt).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &evt, nil
}

func (r *GormEventRepository) ClaimFailed(ctx context.Context, provider, providerEventID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InboundPaymentEvent{}).
		Where("provider = ? AND provider_event_id = ? AND status = ?", provider, providerEventID, models.EventStatusFailed).
		Updates(map[string]interface{}{
			"status":     models.EventStatusReceived,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.InboundPaymentEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.EventStatusProcessed,
			"processed_at": at,
			"last_error":   "",
			"updated_at":   at,
		}).Error
}

func (r *GormEventRepository) MarkFailed(ctx context.Context, evt *models.InboundPaymentEvent, reason string) error {
	row := *evt
	row.ID = uuid.Nil
	row.Status = models.EventStatusFailed
	row.LastError = reason
	row.ProcessedAt = nil
	if row.ReceivedAt.IsZero() {
		row.ReceivedAt = time.Now().UTC()
	}
	if row.Attempts == 0 {
		row.Attempts = 1
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: eventKeyColumns(),
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status":     models.EventStatusFailed,
				"last_error": reason,
				"attempts":   gorm.Expr("inbound_payment_events.attempts + 1"),
				"updated_at": time.Now().UTC(),
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Neq{Column: clause.Column{Table: "inbound_payment_events", Name: "status"}, Value: models.EventStatusProcessed},
			}},
		}).
		Create(&row).Error
}

func (r *GormEventRepository) ListByStatus(ctx context.Context, status string, limit int) ([]models.InboundPaymentEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.InboundPaymentEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("received_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *GormEventRepository) ListByReference(ctx context.Context, reference string) ([]models.InboundPaymentEvent, error) {
	var events []models.InboundPaymentEvent
	err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("received_at ASC").
		Find(&events).Error
	return events, err
}
