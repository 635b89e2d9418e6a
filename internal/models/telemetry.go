package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AnalyticsEvent records one model invocation within an audit run.
type AnalyticsEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID         uint64 `gorm:"not null;index"`           // Owning user.
	ConversationID string `gorm:"type:text;index"`          // Conversation the run belongs to.
	ModelID        string `gorm:"type:text;not null;index"` // Invoked model.
	Role           string `gorm:"type:text;not null"`       // Slot role: drafter or auditor.
	SlotPosition   int    `gorm:"not null"`                 // Slot order within the council.

	LatencyMS    int64 `gorm:"not null;default:0"` // Wall-clock call latency in milliseconds.
	InputTokens  int64 `gorm:"not null;default:0"` // Estimated input token count.
	OutputTokens int64 `gorm:"not null;default:0"` // Estimated output token count.

	Cost decimal.Decimal `gorm:"type:decimal(20,10);not null;default:0"` // Per-model cost share.

	Failed bool `gorm:"not null;default:false"` // Whether the call was substituted with a placeholder.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// Activity log event names used by the pipeline.
const (
	ActivityAuditCompleted      = "audit_completed"
	ActivityAuditRejected       = "audit_rejected"
	ActivityModerationFlagged   = "moderation_flagged"
	ActivityModerationFailOpen  = "moderation_fail_open"
	ActivityModerationFailClose = "moderation_fail_closed"
)

// ActivityLog is one human-readable record per completed or rejected run.
// Daily threshold evaluation sums EstimatedCost over today's rows.
type ActivityLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`           // Owning user.
	Event  string `gorm:"type:text;not null;index"` // Event name.

	Description    string          `gorm:"type:text"`                              // Human-readable summary.
	ConversationID string          `gorm:"type:text;index"`                        // Conversation the run belongs to.
	EstimatedCost  decimal.Decimal `gorm:"type:decimal(20,10);not null;default:0"` // Charged estimate for the run.
	Metadata       datatypes.JSON  `gorm:"type:jsonb"`                             // Free-form payload for audit trails.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
