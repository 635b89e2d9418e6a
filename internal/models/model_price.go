package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ModelPrice stores per-token unit prices for a model. Rows are refreshed
// out-of-band by the pricing refresher; the pipeline only reads them.
type ModelPrice struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ModelID string `gorm:"type:text;not null;uniqueIndex"` // Model identifier, e.g. "gpt-5.2".

	InputPricePerToken  decimal.Decimal `gorm:"type:decimal(20,12);not null"` // Price per input token in dollars.
	OutputPricePerToken decimal.Decimal `gorm:"type:decimal(20,12);not null"` // Price per output token in dollars.

	LastUpdated time.Time `gorm:"not null"`                // Last refresh from the upstream sheet.
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
