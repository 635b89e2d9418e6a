package models

import (
	"time"

	"gorm.io/datatypes"
)

// Background task types processed by the outbox worker.
const (
	TaskTypeAutoRecharge    = "auto_recharge"
	TaskTypeLowBalanceEmail = "low_balance_email"
	TaskTypeCostAlertEmail  = "cost_alert_email"
	TaskTypeVerdictEmail    = "verdict_email"
	TaskTypeTrainingCapture = "training_capture"
)

// Background task statuses.
const (
	TaskStatusPending = "pending"
	TaskStatusDone    = "done"
	TaskStatusFailed  = "failed"
)

// BackgroundTask is an outbox row. The pipeline persists tasks synchronously
// and a separate worker executes them with its own retry policy, so side
// effects survive a process restart instead of living in detached goroutines.
type BackgroundTask struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   uint64         `gorm:"not null;index"`                   // Owning user.
	TaskType string         `gorm:"type:text;not null;index"`         // Handler selector.
	Payload  datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Handler input.

	Status    string    `gorm:"type:text;not null;default:'pending';index"` // Lifecycle state.
	Attempts  int       `gorm:"not null;default:0"`                         // Executions so far.
	NextRunAt time.Time `gorm:"not null;index"`                             // Earliest next execution.
	LastError string    `gorm:"type:text"`                                  // Most recent handler error.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
