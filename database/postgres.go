package database

import (
	"fmt"
	"time"

	"github.com/yashrajoria/settlement-service/config"
	"github.com/yashrajoria/settlement-service/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const connectAttempts = 10

// ConnectPostgres opens the settlement database, retrying while the server
// comes up, and migrates the schema.
func ConnectPostgres(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	if cfg.IsProduction() {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Error)
	}

	var db *gorm.DB
	var err error
	for i := 0; i < connectAttempts; i++ {
		db, err = gorm.Open(postgres.Open(cfg.PostgresDSN()), gormCfg)
		if err == nil {
			sqlDB, poolErr := db.DB()
			if poolErr == nil {
				sqlDB.SetMaxOpenConns(25)
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetConnMaxLifetime(5 * time.Minute)
			}
			logger.Info("Connected to PostgreSQL successfully", zap.String("host", cfg.PostgresHost), zap.String("db", cfg.PostgresDB))

			if err := Migrate(db); err != nil {
				return nil, err
			}
			return db, nil
		}

		logger.Warn("DB connection failed, retrying", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(time.Duration(i+1) * 2 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to PostgreSQL after retries: %w", err)
}

// Migrate creates or updates every settlement table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Order{},
		&models.InboundPaymentEvent{},
		&models.PaymentIntent{},
		&models.Charge{},
		&models.LedgerJournal{},
		&models.LedgerEntry{},
	); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
