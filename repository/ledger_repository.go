package repository

import (
	"context"

	"github.com/yashrajoria/settlement-service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository is append-only: there is no update or delete.
type LedgerRepository interface {
	JournalExists(ctx context.Context, referenceType, referenceID string) (bool, error)
	// Append writes the journal header and its legs. inserted is false when a
	// journal for the same reference already exists; no legs are written then.
	Append(ctx context.Context, journal *models.LedgerJournal, entries []models.LedgerEntry) (inserted bool, err error)
	ListByReference(ctx context.Context, referenceID string) ([]models.LedgerEntry, error)
	ListByStore(ctx context.Context, storeID string, limit int) ([]models.LedgerEntry, error)
	// Imbalances returns every (reference, currency) whose debits and credits differ.
	Imbalances(ctx context.Context) ([]models.LedgerImbalance, error)
}

type GormLedgerRepository struct {
	db *gorm.DB
}

func NewGormLedgerRepository(db *gorm.DB) LedgerRepository {
	return &GormLedgerRepository{db: db}
}

func (r *GormLedgerRepository) JournalExists(ctx context.Context, referenceType, referenceID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerJournal{}).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceID).
		Count(&count).Error
	return count > 0, err
}

func (r *GormLedgerRepository) Append(ctx context.Context, journal *models.LedgerJournal, entries []models.LedgerEntry) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference_type"}, {Name: "reference_id"}},
			DoNothing: true,
		}).
		Create(journal)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	for i := range entries {
		entries[i].JournalID = journal.ID
	}
	if err := r.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *GormLedgerRepository) ListByReference(ctx context.Context, referenceID string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		Order("created_at ASC, direction DESC").
		Find(&entries).Error
	return entries, err
}

func (r *GormLedgerRepository) ListByStore(ctx context.Context, storeID string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *GormLedgerRepository) Imbalances(ctx context.Context) ([]models.LedgerImbalance, error) {
	var rows []models.LedgerImbalance
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("reference_type, reference_id, currency, " +
			"SUM(CASE WHEN direction = 'DEBIT' THEN amount ELSE -amount END) AS net").
		Group("reference_type, reference_id, currency").
		Having("SUM(CASE WHEN direction = 'DEBIT' THEN amount ELSE -amount END) <> 0").
		Scan(&rows).Error
	return rows, err
}
