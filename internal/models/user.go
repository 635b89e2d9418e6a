package models

import "time"

// AccountStatus describes the lifecycle state of a user account.
type AccountStatus string

// Account status values.
const (
	// AccountStatusActive allows the user to run audits.
	AccountStatusActive AccountStatus = "active"
	// AccountStatusInactive marks an account that has not completed activation.
	AccountStatusInactive AccountStatus = "inactive"
	// AccountStatusDisabled marks an administratively disabled account.
	AccountStatusDisabled AccountStatus = "disabled"
)

// Subscription tier names. Each tier maps to a monthly audit quota.
const (
	TierFree   = "free"
	TierPro    = "pro"
	TierMax    = "max"
	TierTeam   = "team"
	TierAgency = "agency"
)

// User represents an account that owns a credit ledger and usage counters.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Login name.
	Email    string `gorm:"type:text;index"`                // Contact email.
	Password string `gorm:"type:text;not null"`             // Bcrypt password hash.

	Status  AccountStatus `gorm:"type:text;not null;default:'active'"` // Account lifecycle state.
	Premium bool          `gorm:"not null;default:false"`              // Premium flag bypasses monthly quotas.

	Banned    bool       `gorm:"not null;default:false"` // Ban flag.
	BanReason string     `gorm:"type:text"`              // Reason recorded when the ban was applied.
	BannedAt  *time.Time // Ban timestamp, if banned.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
