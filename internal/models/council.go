package models

import "time"

// Council slot roles.
const (
	// SlotRoleDrafter marks a slot whose output is one of several candidate answers.
	SlotRoleDrafter = "drafter"
	// SlotRoleAuditor marks the single slot that synthesizes drafts into the verdict.
	SlotRoleAuditor = "auditor"
)

// CouncilSlot is one entry in the persisted default council configuration.
// Requests may override the council inline; this table backs runs that do not.
type CouncilSlot struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Position    int    `gorm:"not null;uniqueIndex"` // Slot order within the council.
	ModelID     string `gorm:"type:text;not null"`   // Model invoked for this slot.
	DisplayName string `gorm:"type:text;not null"`   // Name shown in the response payload.
	Role        string `gorm:"type:text;not null"`   // Tagged role: drafter or auditor.
	// No column default: GORM drops zero-valued fields that carry one on
	// insert, which would make a disabled slot impossible to persist.
	IsEnabled bool `gorm:"not null"` // Whether the slot participates in runs.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
