package models

import "time"

// TrainingRecord is a best-effort snapshot of one audit run kept for future
// fine-tuning. Writes never block the response path and the table is capped.
type TrainingRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	DatasetID string `gorm:"type:text;uniqueIndex"` // Correlation id returned to the caller at run time.

	Prompt string `gorm:"type:text;not null"` // The wrapped user prompt.

	DraftOneModel  string `gorm:"type:text"` // First drafter model.
	DraftOneText   string `gorm:"type:text"` // First drafter output.
	DraftTwoModel  string `gorm:"type:text"` // Second drafter model.
	DraftTwoText   string `gorm:"type:text"` // Second drafter output.
	VerdictModel   string `gorm:"type:text"` // Auditor model.
	VerdictText    string `gorm:"type:text"` // Final verdict.
	CouncilSource  string `gorm:"type:text"` // Origin of the council configuration.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
