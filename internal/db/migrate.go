package db

import (
	"fmt"

	"github.com/councilhq/councilapi/internal/models"
	"gorm.io/gorm"
)

// Migrate applies schema migrations for all pipeline entities.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.User{},
		&models.CreditLedger{},
		&models.BillingTransaction{},
		&models.UsageCounters{},
		&models.ModelPrice{},
		&models.CouncilSlot{},
		&models.AnalyticsEvent{},
		&models.ActivityLog{},
		&models.CostAlert{},
		&models.SecurityLog{},
		&models.TrainingRecord{},
		&models.BackgroundTask{},
		&models.CreditVoucher{},
		&models.ConversationContext{},
		&models.BrandDocument{},
	)
}
