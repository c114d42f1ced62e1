package database

import (
	"fmt"

	"github.com/kevrollin/fhs/internal/config"
	"github.com/kevrollin/fhs/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 自动迁移
	if err := db.AutoMigrate(
		&model.StudentModel{},
		&model.ProjectModel{},
		&model.WalletModel{},
		&model.DonationIntentModel{},
		&model.MilestoneModel{},
		&model.EscrowDepositModel{},
		&model.CampaignModel{},
		&model.CampaignDistributionModel{},
		&model.TaskCursorModel{},
		&model.AnalyticsSummaryModel{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}
