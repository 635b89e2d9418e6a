package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// CreditLedger holds the prepaid balance for a billing owner.
//
// The balance is only ever mutated through a single conditional UPDATE inside
// the ledger updater; nothing else in the pipeline writes this row.
type CreditLedger struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Owning user.

	Balance decimal.Decimal `gorm:"type:decimal(20,10);not null;default:0"` // Remaining credit in dollars.

	AutoRechargeEnabled   bool            `gorm:"not null;default:false"`                 // Whether auto-recharge is on.
	AutoRechargeThreshold decimal.Decimal `gorm:"type:decimal(20,10);not null;default:0"` // Balance that triggers a recharge.
	AutoRechargeAmount    decimal.Decimal `gorm:"type:decimal(20,10);not null;default:0"` // Amount credited per recharge.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Billing transaction types.
const (
	// TransactionTypeAuditCharge is a deduction for a completed audit run.
	TransactionTypeAuditCharge = "audit_charge"
	// TransactionTypeAutoRecharge is a credit applied by the auto-recharge task.
	TransactionTypeAutoRecharge = "auto_recharge"
	// TransactionTypeVoucherRedeem is a credit applied by redeeming a voucher.
	TransactionTypeVoucherRedeem = "voucher_redeem"
)

// BillingTransaction is an append-only ledger entry. Rows are never updated
// or deleted; BalanceAfter always equals the ledger balance immediately after
// the entry was applied.
type BillingTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"` // Owning user.

	Amount          decimal.Decimal `gorm:"type:decimal(20,10);not null"` // Signed amount; negative for charges.
	TransactionType string          `gorm:"type:text;not null;index"`     // Transaction type marker.
	BalanceAfter    decimal.Decimal `gorm:"type:decimal(20,10);not null"` // Ledger balance after this entry.

	Description string         `gorm:"type:text"`  // Human-readable summary.
	Metadata    datatypes.JSON `gorm:"type:jsonb"` // Free-form metadata payload.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
