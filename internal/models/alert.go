package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Cost alert types.
const (
	// AlertTypePerAudit fires when one run exceeds the per-audit threshold.
	AlertTypePerAudit = "per_audit"
	// AlertTypeDaily fires at most once per user per calendar day.
	AlertTypeDaily = "daily"
	// AlertTypeBudgetForecast fires when projected month-end spend exceeds the budget.
	AlertTypeBudgetForecast = "budget_forecast"
)

// CostAlert records a tripped spending threshold.
type CostAlert struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID    uint64 `gorm:"not null;index:idx_cost_alerts_user_type_day,priority:1"` // Owning user.
	AlertType string `gorm:"type:text;not null;index:idx_cost_alerts_user_type_day,priority:2"` // Alert kind.
	AlertDay  string `gorm:"type:text;not null;index:idx_cost_alerts_user_type_day,priority:3"` // Calendar day "2006-01-02", dedup key for daily alerts.

	EstimatedCost decimal.Decimal `gorm:"type:decimal(20,10);not null"` // Cost that tripped the rule.
	Threshold     decimal.Decimal `gorm:"type:decimal(20,10);not null"` // Configured threshold.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// SecurityLog records a prompt rejected by content moderation.
type SecurityLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"` // Owning user.

	Prompt     string         `gorm:"type:text;not null"` // The flagged prompt text.
	Categories string         `gorm:"type:text"`          // Comma-separated matched categories.
	Scores     datatypes.JSON `gorm:"type:jsonb"`         // Raw per-category scores.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
