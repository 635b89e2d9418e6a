package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	dbpkg "github.com/councilhq/councilapi/internal/db"
	"github.com/councilhq/councilapi/internal/mailer"
	"github.com/councilhq/councilapi/internal/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollInterval = 15 * time.Second
	defaultBatchSize    = 20
	maxAttempts         = 5
	trainingRecordCap   = 10000
)

// PaymentCharger executes an auto-recharge against the payment processor.
type PaymentCharger interface {
	Charge(ctx context.Context, userID uint64, amount decimal.Decimal) error
}

// NoopCharger refuses every charge. It is the default when no payment
// processor is wired, so auto-recharge tasks fail loudly instead of
// crediting balances nobody paid for.
type NoopCharger struct{}

// Charge always fails.
func (NoopCharger) Charge(_ context.Context, _ uint64, _ decimal.Decimal) error {
	return fmt.Errorf("no payment processor configured")
}

// Worker polls the outbox table and executes due pending tasks. Failed tasks
// retry with exponential backoff until maxAttempts, then land in the failed
// state for operator inspection.
type Worker struct {
	db      *gorm.DB
	mailer  mailer.Mailer
	charger PaymentCharger

	interval time.Duration
	batch    int
}

// NewWorker constructs a Worker. charger may be nil, which substitutes the
// refusing NoopCharger.
func NewWorker(db *gorm.DB, m mailer.Mailer, charger PaymentCharger) *Worker {
	if charger == nil {
		charger = NoopCharger{}
	}
	return &Worker{
		db:       db,
		mailer:   m,
		charger:  charger,
		interval: defaultPollInterval,
		batch:    defaultBatchSize,
	}
}

// Start launches the polling loop in a background goroutine.
func (w *Worker) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go w.run(ctx)
	log.Infof("task worker started (interval=%s)", w.interval)
}

func (w *Worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if errDrain := w.Drain(ctx); errDrain != nil {
			log.WithError(errDrain).Warn("task poll failed")
		}
		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// Drain executes every currently due pending task, one batch at a time.
func (w *Worker) Drain(ctx context.Context) error {
	for {
		var due []models.BackgroundTask
		errFind := w.db.WithContext(ctx).
			Where("status = ? AND next_run_at <= ?", models.TaskStatusPending, time.Now().UTC()).
			Order("next_run_at ASC").
			Limit(w.batch).
			Find(&due).Error
		if errFind != nil {
			return errFind
		}
		if len(due) == 0 {
			return nil
		}
		for i := range due {
			w.execute(ctx, &due[i])
		}
		if len(due) < w.batch {
			return nil
		}
	}
}

func (w *Worker) execute(ctx context.Context, task *models.BackgroundTask) {
	errHandle := w.handle(ctx, task)
	task.Attempts++

	updates := map[string]any{"attempts": task.Attempts}
	if errHandle == nil {
		updates["status"] = models.TaskStatusDone
		updates["last_error"] = ""
	} else {
		log.WithError(errHandle).
			WithFields(log.Fields{"task_id": task.ID, "task_type": task.TaskType, "attempts": task.Attempts}).
			Warn("task execution failed")
		updates["last_error"] = errHandle.Error()
		if task.Attempts >= maxAttempts {
			updates["status"] = models.TaskStatusFailed
		} else {
			updates["next_run_at"] = time.Now().UTC().Add(backoff(task.Attempts))
		}
	}

	if errUpdate := w.db.WithContext(ctx).
		Model(&models.BackgroundTask{}).
		Where("id = ?", task.ID).
		Updates(updates).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("task_id", task.ID).Error("task state update failed")
	}
}

// backoff doubles per attempt: 1m, 2m, 4m, 8m.
func backoff(attempts int) time.Duration {
	d := time.Minute
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}

func (w *Worker) handle(ctx context.Context, task *models.BackgroundTask) error {
	var payload map[string]string
	if len(task.Payload) > 0 {
		if errUnmarshal := json.Unmarshal(task.Payload, &payload); errUnmarshal != nil {
			return fmt.Errorf("payload decode: %w", errUnmarshal)
		}
	}

	switch task.TaskType {
	case models.TaskTypeAutoRecharge:
		return w.handleAutoRecharge(ctx, task.UserID, payload)
	case models.TaskTypeLowBalanceEmail:
		body, errRender := mailer.RenderLowBalance(payload["balance"], payload["threshold"])
		if errRender != nil {
			return errRender
		}
		return w.mailer.Send(ctx, payload["email"], "Low credit balance", body)
	case models.TaskTypeCostAlertEmail:
		body, errRender := mailer.RenderCostAlert(payload["alert_type"], payload["cost"], payload["threshold"])
		if errRender != nil {
			return errRender
		}
		return w.mailer.Send(ctx, payload["email"], "Spending threshold exceeded", body)
	case models.TaskTypeVerdictEmail:
		body, errRender := mailer.RenderVerdict(payload["conversation_id"], payload["verdict"])
		if errRender != nil {
			return errRender
		}
		return w.mailer.Send(ctx, payload["email"], "Your audit verdict is ready", body)
	case models.TaskTypeTrainingCapture:
		return w.handleTrainingCapture(ctx, payload)
	default:
		return fmt.Errorf("unknown task type %q", task.TaskType)
	}
}

// handleAutoRecharge charges the payment processor first and credits the
// ledger only after the charge succeeds. A failed charge retries through the
// normal backoff path.
func (w *Worker) handleAutoRecharge(ctx context.Context, userID uint64, payload map[string]string) error {
	amount, errParse := decimal.NewFromString(payload["amount"])
	if errParse != nil {
		return fmt.Errorf("recharge amount: %w", errParse)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("recharge amount must be positive, got %s", amount)
	}

	if errCharge := w.charger.Charge(ctx, userID, amount); errCharge != nil {
		return fmt.Errorf("payment charge: %w", errCharge)
	}

	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// SQLite serializes writers on its own and rejects FOR UPDATE.
		lookup := tx
		if !dbpkg.IsSQLite(tx) {
			lookup = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var ledger models.CreditLedger
		if errRead := lookup.Where("user_id = ?", userID).First(&ledger).Error; errRead != nil {
			return errRead
		}

		// Add in decimal and store the result; in-database arithmetic runs
		// in float on SQLite's numeric affinity and drifts the balance.
		newBalance := ledger.Balance.Add(amount)
		if errCredit := tx.Model(&models.CreditLedger{}).
			Where("user_id = ?", userID).
			Update("balance", newBalance).Error; errCredit != nil {
			return errCredit
		}
		entry := models.BillingTransaction{
			UserID:          userID,
			Amount:          amount,
			TransactionType: models.TransactionTypeAutoRecharge,
			BalanceAfter:    newBalance,
			Description:     "Automatic recharge",
		}
		return tx.Create(&entry).Error
	})
}

// handleTrainingCapture appends one training record and trims the capped
// table from the oldest end.
func (w *Worker) handleTrainingCapture(ctx context.Context, payload map[string]string) error {
	record := models.TrainingRecord{
		DatasetID:     payload["dataset_id"],
		Prompt:        payload["prompt"],
		DraftOneModel: payload["draft_one_model"],
		DraftOneText:  payload["draft_one_text"],
		DraftTwoModel: payload["draft_two_model"],
		DraftTwoText:  payload["draft_two_text"],
		VerdictModel:  payload["verdict_model"],
		VerdictText:   payload["verdict_text"],
		CouncilSource: payload["council_source"],
	}
	if errCreate := w.db.WithContext(ctx).Create(&record).Error; errCreate != nil {
		return errCreate
	}

	var count int64
	if errCount := w.db.WithContext(ctx).Model(&models.TrainingRecord{}).Count(&count).Error; errCount != nil {
		return errCount
	}
	if count > trainingRecordCap {
		excess := count - trainingRecordCap
		var victims []uint64
		if errFind := w.db.WithContext(ctx).Model(&models.TrainingRecord{}).
			Order("id ASC").
			Limit(int(excess)).
			Pluck("id", &victims).Error; errFind != nil {
			return errFind
		}
		if len(victims) > 0 {
			return w.db.WithContext(ctx).Delete(&models.TrainingRecord{}, victims).Error
		}
	}
	return nil
}
