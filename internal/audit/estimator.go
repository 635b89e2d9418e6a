package audit

import (
	"github.com/councilhq/councilapi/internal/models"
	"github.com/councilhq/councilapi/internal/pricing"
	"github.com/shopspring/decimal"
)

// Fixed token assumptions for pre-execution estimates. Drafters are assumed
// to read and write about a thousand tokens each; the auditor reads roughly
// three times the text and writes less. Actual token counts are recorded in
// analytics for future calibration but do not feed billing.
var (
	drafterInputTokens  = decimal.NewFromInt(1000)
	drafterOutputTokens = decimal.NewFromInt(1000)
	auditorInputTokens  = decimal.NewFromInt(3000)
	auditorOutputTokens = decimal.NewFromInt(1500)
)

// Estimator computes pre-execution cost estimates from the price table.
type Estimator struct {
	table *pricing.Table
}

// NewEstimator constructs an Estimator.
func NewEstimator(table *pricing.Table) *Estimator {
	return &Estimator{table: table}
}

// SlotCost returns the estimated cost of a single slot.
func (e *Estimator) SlotCost(slot Slot) decimal.Decimal {
	price, _ := e.table.Lookup(slot.ModelID)
	if slot.Role == models.SlotRoleAuditor {
		return price.InputPerToken.Mul(auditorInputTokens).
			Add(price.OutputPerToken.Mul(auditorOutputTokens))
	}
	return price.InputPerToken.Mul(drafterInputTokens).
		Add(price.OutputPerToken.Mul(drafterOutputTokens))
}

// Estimate sums slot costs across the whole council.
func (e *Estimator) Estimate(council Council) decimal.Decimal {
	total := decimal.Zero
	for _, drafter := range council.Drafters {
		total = total.Add(e.SlotCost(drafter))
	}
	return total.Add(e.SlotCost(council.Auditor))
}

// CheckBalance verifies the ledger can cover the estimate. This is a
// reservation check only; the deduction happens after synthesis succeeds.
func (e *Estimator) CheckBalance(ledger models.CreditLedger, estimate decimal.Decimal) *Error {
	if ledger.Balance.LessThanOrEqual(decimal.Zero) {
		return ErrNoCredits()
	}
	if ledger.Balance.LessThan(estimate) {
		return ErrInsufficientCredits(ledger.Balance.String(), estimate.String())
	}
	return nil
}
