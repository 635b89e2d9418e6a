package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageCounters tracks lifetime and monthly audit counts plus the optional
// cost thresholds a user has configured. Mutated only by the ledger updater
// after a successful run; lazily provisioned by the eligibility gate.
type UsageCounters struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Owning user.

	AuditCount      int64  `gorm:"not null;default:0"`          // Lifetime completed audits.
	AuditsThisMonth int64  `gorm:"not null;default:0"`          // Audits in the current month.
	MonthAnchor     string `gorm:"type:text;not null;index"`    // Month the monthly counter belongs to, "2006-01".
	Tier            string `gorm:"type:text;not null;default:'free'"` // Subscription tier.

	DailyCostThreshold    *decimal.Decimal `gorm:"type:decimal(20,10)"` // Optional daily spend alert threshold.
	PerAuditCostThreshold *decimal.Decimal `gorm:"type:decimal(20,10)"` // Optional per-audit alert threshold.
	MonthlyBudgetLimit    *decimal.Decimal `gorm:"type:decimal(20,10)"` // Optional monthly budget for forecasting.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
