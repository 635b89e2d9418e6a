package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/councilhq/councilapi/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func seedAdmission(t *testing.T, conn *gorm.DB, balance string, mutateLedger func(*models.CreditLedger)) Admission {
	t.Helper()
	user := createTestUser(t, conn, nil)
	counters := models.UsageCounters{
		UserID:      user.ID,
		Tier:        models.TierFree,
		MonthAnchor: time.Now().UTC().Format("2006-01"),
	}
	if errCreate := conn.Create(&counters).Error; errCreate != nil {
		t.Fatalf("create counters: %v", errCreate)
	}
	ledger := seedLedger(t, conn, user.ID, balance, mutateLedger)
	return Admission{User: user, Counters: counters, Ledger: ledger}
}

func TestApplyDeductsAndRecordsTransaction(t *testing.T) {
	conn := openTestDB(t)
	dispatcher := &recordingDispatcher{}
	updater := NewUpdater(conn, dispatcher)
	admission := seedAdmission(t, conn, "0.05", nil)
	estimate := decimal.RequireFromString("0.012")

	result, errApply := updater.Apply(context.Background(), admission, estimate, "test run")
	if errApply != nil {
		t.Fatalf("apply: %v", errApply)
	}
	want := decimal.RequireFromString("0.038")
	if !result.NewBalance.Equal(want) {
		t.Fatalf("expected balance %s, got %s", want, result.NewBalance)
	}
	if result.AuditsThisMonth != 1 {
		t.Fatalf("expected 1 audit this month, got %d", result.AuditsThisMonth)
	}

	var entry models.BillingTransaction
	if errFind := conn.Where("user_id = ?", admission.User.ID).First(&entry).Error; errFind != nil {
		t.Fatalf("find transaction: %v", errFind)
	}
	if !entry.Amount.Equal(estimate.Neg()) {
		t.Fatalf("expected amount %s, got %s", estimate.Neg(), entry.Amount)
	}
	if !entry.BalanceAfter.Equal(want) {
		t.Fatalf("expected balance_after %s, got %s", want, entry.BalanceAfter)
	}
	if entry.TransactionType != models.TransactionTypeAuditCharge {
		t.Fatalf("expected audit_charge, got %s", entry.TransactionType)
	}

	var counters models.UsageCounters
	if errFind := conn.Where("user_id = ?", admission.User.ID).First(&counters).Error; errFind != nil {
		t.Fatalf("find counters: %v", errFind)
	}
	if counters.AuditCount != 1 || counters.AuditsThisMonth != 1 {
		t.Fatalf("expected counters incremented, got %+v", counters)
	}
}

func TestApplyKeepsBalanceExactAcrossCharges(t *testing.T) {
	conn := openTestDB(t)
	dispatcher := &recordingDispatcher{}
	updater := NewUpdater(conn, dispatcher)
	admission := seedAdmission(t, conn, "0.05", nil)
	estimate := decimal.RequireFromString("0.012")

	for i, want := range []string{"0.038", "0.026", "0.014"} {
		result, errApply := updater.Apply(context.Background(), admission, estimate, "test run")
		if errApply != nil {
			t.Fatalf("apply %d: %v", i, errApply)
		}
		if result.NewBalance.String() != want {
			t.Fatalf("charge %d: expected balance %s, got %s", i, want, result.NewBalance)
		}
	}

	var ledger models.CreditLedger
	if errFind := conn.Where("user_id = ?", admission.User.ID).First(&ledger).Error; errFind != nil {
		t.Fatalf("find ledger: %v", errFind)
	}
	if ledger.Balance.String() != "0.014" {
		t.Fatalf("expected stored balance 0.014, got %s", ledger.Balance)
	}
}

func TestApplyLosesRaceWhenBalanceDrained(t *testing.T) {
	conn := openTestDB(t)
	dispatcher := &recordingDispatcher{}
	updater := NewUpdater(conn, dispatcher)
	// Reservation saw 0.05, but the stored balance has since dropped.
	admission := seedAdmission(t, conn, "0.005", nil)
	admission.Ledger.Balance = decimal.RequireFromString("0.05")

	_, errApply := updater.Apply(context.Background(), admission, decimal.RequireFromString("0.012"), "test run")
	if errApply == nil || errApply.Kind != KindInsufficientCredits {
		t.Fatalf("expected INSUFFICIENT_CREDITS, got %v", errApply)
	}
	// The detail must report what the account holds now, not the stale
	// reservation-time balance.
	if !strings.Contains(errApply.Detail, "$0.005") {
		t.Fatalf("expected commit-time balance in detail, got %q", errApply.Detail)
	}

	var count int64
	if errCount := conn.Model(&models.BillingTransaction{}).Count(&count).Error; errCount != nil || count != 0 {
		t.Fatalf("expected no transaction after failed swap, got %d (err %v)", count, errCount)
	}
	var ledger models.CreditLedger
	if errFind := conn.Where("user_id = ?", admission.User.ID).First(&ledger).Error; errFind != nil {
		t.Fatalf("find ledger: %v", errFind)
	}
	if !ledger.Balance.Equal(decimal.RequireFromString("0.005")) {
		t.Fatalf("expected balance untouched, got %s", ledger.Balance)
	}
}

func TestApplyEnqueuesAutoRechargeBelowThreshold(t *testing.T) {
	conn := openTestDB(t)
	dispatcher := &recordingDispatcher{}
	updater := NewUpdater(conn, dispatcher)
	admission := seedAdmission(t, conn, "0.05", func(l *models.CreditLedger) {
		l.AutoRechargeEnabled = true
		l.AutoRechargeThreshold = decimal.RequireFromString("0.10")
		l.AutoRechargeAmount = decimal.RequireFromString("10")
	})

	if _, errApply := updater.Apply(context.Background(), admission, decimal.RequireFromString("0.012"), "test run"); errApply != nil {
		t.Fatalf("apply: %v", errApply)
	}

	if len(dispatcher.byType(models.TaskTypeAutoRecharge)) != 1 {
		t.Fatalf("expected auto_recharge task, got %+v", dispatcher.tasks)
	}
	if len(dispatcher.byType(models.TaskTypeLowBalanceEmail)) != 0 {
		t.Fatalf("expected no low-balance email when auto-recharge is on")
	}
}

func TestApplyEnqueuesLowBalanceEmailWhenRechargeDisabled(t *testing.T) {
	conn := openTestDB(t)
	dispatcher := &recordingDispatcher{}
	updater := NewUpdater(conn, dispatcher)
	admission := seedAdmission(t, conn, "0.05", func(l *models.CreditLedger) {
		l.AutoRechargeThreshold = decimal.RequireFromString("0.10")
	})

	if _, errApply := updater.Apply(context.Background(), admission, decimal.RequireFromString("0.012"), "test run"); errApply != nil {
		t.Fatalf("apply: %v", errApply)
	}

	if len(dispatcher.byType(models.TaskTypeLowBalanceEmail)) != 1 {
		t.Fatalf("expected low_balance_email task, got %+v", dispatcher.tasks)
	}
}

func TestApplyAboveThresholdEnqueuesNothing(t *testing.T) {
	conn := openTestDB(t)
	dispatcher := &recordingDispatcher{}
	updater := NewUpdater(conn, dispatcher)
	admission := seedAdmission(t, conn, "5.00", func(l *models.CreditLedger) {
		l.AutoRechargeEnabled = true
		l.AutoRechargeThreshold = decimal.RequireFromString("0.10")
		l.AutoRechargeAmount = decimal.RequireFromString("10")
	})

	if _, errApply := updater.Apply(context.Background(), admission, decimal.RequireFromString("0.012"), "test run"); errApply != nil {
		t.Fatalf("apply: %v", errApply)
	}
	if len(dispatcher.tasks) != 0 {
		t.Fatalf("expected no tasks, got %+v", dispatcher.tasks)
	}
}
