package audit

import (
	"context"
	"fmt"

	dbpkg "github.com/councilhq/councilapi/internal/db"
	"github.com/councilhq/councilapi/internal/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskDispatcher enqueues background work without blocking the response path.
type TaskDispatcher interface {
	Enqueue(ctx context.Context, userID uint64, taskType string, payload map[string]any) error
}

// LedgerResult reports the ledger state after a successful deduction.
type LedgerResult struct {
	NewBalance      decimal.Decimal
	AuditsThisMonth int64
}

// Updater applies the post-synthesis ledger and usage writes.
type Updater struct {
	db         *gorm.DB
	dispatcher TaskDispatcher
}

// NewUpdater constructs an Updater.
func NewUpdater(db *gorm.DB, dispatcher TaskDispatcher) *Updater {
	return &Updater{db: db, dispatcher: dispatcher}
}

// Apply runs only after synthesis succeeds. It increments usage counters,
// deducts the estimate, and appends the billing transaction. The new balance
// is computed in decimal and written with a conditional update guarded on the
// balance just read; in-database arithmetic would run in float on SQLite's
// numeric affinity and drift the stored balance. A balance below the estimate
// at commit time means another run drained it since the reservation check,
// surfaced as InsufficientCredits.
func (u *Updater) Apply(ctx context.Context, admission Admission, estimate decimal.Decimal, description string) (LedgerResult, *Error) {
	var out LedgerResult
	userID := admission.User.ID
	drained := decimal.Zero

	errTx := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCounters := tx.Model(&models.UsageCounters{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"audit_count":       gorm.Expr("audit_count + 1"),
				"audits_this_month": gorm.Expr("audits_this_month + 1"),
			}).Error; errCounters != nil {
			return errCounters
		}

		// SQLite serializes writers on its own and rejects FOR UPDATE.
		lookup := tx
		if !dbpkg.IsSQLite(tx) {
			lookup = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var ledger models.CreditLedger
		if errRead := lookup.Where("user_id = ?", userID).First(&ledger).Error; errRead != nil {
			return errRead
		}
		if ledger.Balance.LessThan(estimate) {
			drained = ledger.Balance
			return errBalanceDrained
		}

		newBalance := ledger.Balance.Sub(estimate)
		res := tx.Model(&models.CreditLedger{}).
			Where("user_id = ? AND balance = ?", userID, ledger.Balance).
			Update("balance", newBalance)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			drained = ledger.Balance
			return errBalanceDrained
		}
		out.NewBalance = newBalance

		entry := models.BillingTransaction{
			UserID:          userID,
			Amount:          estimate.Neg(),
			TransactionType: models.TransactionTypeAuditCharge,
			BalanceAfter:    newBalance,
			Description:     description,
		}
		return tx.Create(&entry).Error
	})
	if errTx != nil {
		if errTx == errBalanceDrained {
			return out, ErrInsufficientCredits(drained.String(), estimate.String())
		}
		return out, ErrInternal("ledger update failed", errTx)
	}

	out.AuditsThisMonth = admission.Counters.AuditsThisMonth + 1

	u.dispatchBalanceTasks(ctx, admission, out.NewBalance)
	return out, nil
}

// dispatchBalanceTasks enqueues the auto-recharge task or, when auto-recharge
// is disabled, the low-balance notification. The paths are mutually exclusive.
func (u *Updater) dispatchBalanceTasks(ctx context.Context, admission Admission, newBalance decimal.Decimal) {
	ledger := admission.Ledger
	if newBalance.GreaterThanOrEqual(ledger.AutoRechargeThreshold) {
		return
	}

	if ledger.AutoRechargeEnabled {
		payload := map[string]any{
			"amount":  ledger.AutoRechargeAmount.String(),
			"balance": newBalance.String(),
		}
		if errEnqueue := u.dispatcher.Enqueue(ctx, admission.User.ID, models.TaskTypeAutoRecharge, payload); errEnqueue != nil {
			log.WithError(errEnqueue).Warn("auto-recharge enqueue failed")
		}
		return
	}

	payload := map[string]any{
		"balance":   newBalance.String(),
		"threshold": ledger.AutoRechargeThreshold.String(),
		"email":     admission.User.Email,
	}
	if errEnqueue := u.dispatcher.Enqueue(ctx, admission.User.ID, models.TaskTypeLowBalanceEmail, payload); errEnqueue != nil {
		log.WithError(errEnqueue).Warn("low-balance notification enqueue failed")
	}
}

// errBalanceDrained is the internal marker for a lost compare-and-swap.
var errBalanceDrained = fmt.Errorf("balance drained concurrently")
