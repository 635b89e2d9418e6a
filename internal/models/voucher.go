package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditVoucher is a prepaid top-up code. Redeeming one credits the owner's
// ledger through the same append-only transaction path as every other credit.
type CreditVoucher struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name     string          `gorm:"type:text;not null"`             // Voucher display name.
	Code     string          `gorm:"type:text;not null;uniqueIndex"` // Unique redemption code.
	Password string          `gorm:"type:text;not null"`             // Redemption password.
	Amount   decimal.Decimal `gorm:"type:decimal(20,10);not null"`   // Credit granted on redemption.

	// No column default: GORM drops zero-valued fields that carry one on
	// insert, which would make a disabled voucher impossible to persist.
	IsEnabled bool       `gorm:"not null"` // Whether the voucher can be redeemed.
	ExpiresAt *time.Time // Expiration time, if any.

	RedeemedUserID *uint64    `gorm:"index"` // User who redeemed the voucher.
	RedeemedAt     *time.Time // Redemption time, if redeemed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// ConversationContext stores document context extracted for a conversation so
// follow-up runs can reuse it without re-reading the attachment.
type ConversationContext struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID         uint64 `gorm:"not null;index"`                 // Owning user.
	ConversationID string `gorm:"type:text;not null;uniqueIndex"` // Conversation identifier.
	Context        string `gorm:"type:text;not null"`             // Extracted document context.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// BrandDocument holds a user's active brand-guideline document reference and
// the cached guideline summary extracted from it.
type BrandDocument struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   uint64 `gorm:"not null;index"`        // Owning user.
	FileURL  string `gorm:"type:text;not null"`    // Source document location.
	Summary  string `gorm:"type:text"`             // Cached guideline summary, refreshed on extraction.
	IsActive bool   `gorm:"not null;default:true"` // Whether the document applies to new runs.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
