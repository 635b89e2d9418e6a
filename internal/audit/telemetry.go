package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/councilhq/councilapi/internal/llm"
	"github.com/councilhq/councilapi/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const dailyAlertKeyTTL = 48 * time.Hour

// Recorder writes per-run analytics and evaluates cost thresholds. All of its
// writes are telemetry: failures are logged and never fail the response.
type Recorder struct {
	db         *gorm.DB
	redis      *redis.Client
	estimator  *Estimator
	dispatcher TaskDispatcher
}

// NewRecorder constructs a Recorder. redisClient may be nil; daily alert
// dedup then relies on the database uniqueness check alone.
func NewRecorder(db *gorm.DB, redisClient *redis.Client, estimator *Estimator, dispatcher TaskDispatcher) *Recorder {
	return &Recorder{db: db, redis: redisClient, estimator: estimator, dispatcher: dispatcher}
}

// RunRecord carries everything the recorder needs about a completed run.
type RunRecord struct {
	Admission      Admission
	Council        Council
	Drafts         []Draft
	Verdict        Verdict
	WrappedPrompt  string
	Estimate       decimal.Decimal
	ConversationID string
}

// Record writes one AnalyticsEvent per council slot and one ActivityLog entry
// for the run, then evaluates the cost threshold rules.
func (r *Recorder) Record(ctx context.Context, run RunRecord) {
	userID := run.Admission.User.ID

	promptTokens := llm.EstimateTokens(run.WrappedPrompt)
	for _, draft := range run.Drafts {
		event := models.AnalyticsEvent{
			UserID:         userID,
			ConversationID: run.ConversationID,
			ModelID:        draft.Slot.ModelID,
			Role:           models.SlotRoleDrafter,
			SlotPosition:   draft.Slot.Position,
			LatencyMS:      draft.LatencyMS,
			InputTokens:    promptTokens,
			OutputTokens:   llm.EstimateTokens(draft.Text),
			Cost:           r.estimator.SlotCost(draft.Slot),
			Failed:         draft.Failed,
		}
		if errCreate := r.db.WithContext(ctx).Create(&event).Error; errCreate != nil {
			log.WithError(errCreate).Warn("analytics event write failed")
		}
	}

	auditorEvent := models.AnalyticsEvent{
		UserID:         userID,
		ConversationID: run.ConversationID,
		ModelID:        run.Council.Auditor.ModelID,
		Role:           models.SlotRoleAuditor,
		SlotPosition:   run.Council.Auditor.Position,
		LatencyMS:      run.Verdict.LatencyMS,
		InputTokens:    promptTokens * int64(len(run.Drafts)+1),
		OutputTokens:   llm.EstimateTokens(run.Verdict.Text),
		Cost:           r.estimator.SlotCost(run.Council.Auditor),
	}
	if errCreate := r.db.WithContext(ctx).Create(&auditorEvent).Error; errCreate != nil {
		log.WithError(errCreate).Warn("analytics event write failed")
	}

	r.writeActivityLog(ctx, run)
	r.evaluateThresholds(ctx, run)
}

func (r *Recorder) writeActivityLog(ctx context.Context, run RunRecord) {
	modelIDs := make([]string, 0, len(run.Drafts)+1)
	for _, draft := range run.Drafts {
		modelIDs = append(modelIDs, draft.Slot.ModelID)
	}
	modelIDs = append(modelIDs, run.Council.Auditor.ModelID)

	metadata, _ := json.Marshal(map[string]any{
		"models":          modelIDs,
		"council_source":  run.Council.Source,
		"conversation_id": run.ConversationID,
	})
	entry := models.ActivityLog{
		UserID:         run.Admission.User.ID,
		Event:          models.ActivityAuditCompleted,
		Description:    fmt.Sprintf("Audit completed with %d drafters, estimated cost $%s", len(run.Drafts), run.Estimate.String()),
		ConversationID: run.ConversationID,
		EstimatedCost:  run.Estimate,
		Metadata:       datatypes.JSON(metadata),
	}
	if errCreate := r.db.WithContext(ctx).Create(&entry).Error; errCreate != nil {
		log.WithError(errCreate).Warn("activity log write failed")
	}
}

// evaluateThresholds checks the per-audit, daily, and budget forecast rules
// independently. Each tripped rule inserts a CostAlert and enqueues an alert
// email.
func (r *Recorder) evaluateThresholds(ctx context.Context, run RunRecord) {
	counters := run.Admission.Counters
	userID := run.Admission.User.ID
	today := time.Now().UTC().Format("2006-01-02")

	if counters.PerAuditCostThreshold != nil && run.Estimate.GreaterThan(*counters.PerAuditCostThreshold) {
		r.raiseAlert(ctx, run, models.AlertTypePerAudit, today, run.Estimate, *counters.PerAuditCostThreshold)
	}

	if counters.DailyCostThreshold != nil {
		spentToday, errSum := r.sumSpentSince(ctx, userID, startOfDayUTC())
		if errSum != nil {
			log.WithError(errSum).Warn("daily spend aggregation failed")
		} else if spentToday.GreaterThan(*counters.DailyCostThreshold) && r.claimDailyAlert(ctx, userID, today) {
			r.raiseAlert(ctx, run, models.AlertTypeDaily, today, spentToday, *counters.DailyCostThreshold)
		}
	}

	if counters.MonthlyBudgetLimit != nil {
		forecast, errForecast := r.forecastMonthSpend(ctx, userID)
		if errForecast != nil {
			log.WithError(errForecast).Warn("budget forecast aggregation failed")
		} else if forecast.GreaterThan(*counters.MonthlyBudgetLimit) && !r.alertExistsToday(ctx, userID, models.AlertTypeBudgetForecast, today) {
			r.raiseAlert(ctx, run, models.AlertTypeBudgetForecast, today, forecast, *counters.MonthlyBudgetLimit)
		}
	}
}

// claimDailyAlert enforces the at-most-one-daily-alert invariant. Redis SETNX
// is the fast path shared across replicas; the database existence check backs
// it up when redis is absent.
func (r *Recorder) claimDailyAlert(ctx context.Context, userID uint64, day string) bool {
	if r.redis != nil {
		key := fmt.Sprintf("alert:daily:%d:%s", userID, day)
		claimed, errSet := r.redis.SetNX(ctx, key, "1", dailyAlertKeyTTL).Result()
		if errSet == nil {
			if !claimed {
				return false
			}
			// Fall through to the DB check so a redis flush cannot double-alert.
		} else {
			log.WithError(errSet).Debug("daily alert redis claim failed, using db check")
		}
	}
	return !r.alertExistsToday(ctx, userID, models.AlertTypeDaily, day)
}

func (r *Recorder) alertExistsToday(ctx context.Context, userID uint64, alertType, day string) bool {
	var count int64
	errCount := r.db.WithContext(ctx).Model(&models.CostAlert{}).
		Where("user_id = ? AND alert_type = ? AND alert_day = ?", userID, alertType, day).
		Count(&count).Error
	if errCount != nil {
		log.WithError(errCount).Warn("cost alert existence check failed")
		return true
	}
	return count > 0
}

func (r *Recorder) raiseAlert(ctx context.Context, run RunRecord, alertType, day string, cost, threshold decimal.Decimal) {
	alert := models.CostAlert{
		UserID:        run.Admission.User.ID,
		AlertType:     alertType,
		AlertDay:      day,
		EstimatedCost: cost,
		Threshold:     threshold,
	}
	if errCreate := r.db.WithContext(ctx).Create(&alert).Error; errCreate != nil {
		log.WithError(errCreate).Warn("cost alert write failed")
		return
	}

	payload := map[string]any{
		"alert_type": alertType,
		"cost":       cost.String(),
		"threshold":  threshold.String(),
		"email":      run.Admission.User.Email,
	}
	if errEnqueue := r.dispatcher.Enqueue(ctx, run.Admission.User.ID, models.TaskTypeCostAlertEmail, payload); errEnqueue != nil {
		log.WithError(errEnqueue).Warn("cost alert email enqueue failed")
	}
}

func (r *Recorder) sumSpentSince(ctx context.Context, userID uint64, since time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	errSum := r.db.WithContext(ctx).Model(&models.ActivityLog{}).
		Where("user_id = ? AND event = ? AND created_at >= ?", userID, models.ActivityAuditCompleted, since).
		Select("COALESCE(SUM(estimated_cost), 0)").
		Scan(&total).Error
	if errSum != nil {
		return decimal.Zero, errSum
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// forecastMonthSpend projects month-end spend linearly from the month so far.
func (r *Recorder) forecastMonthSpend(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	spent, errSum := r.sumSpentSince(ctx, userID, monthStart)
	if errSum != nil {
		return decimal.Zero, errSum
	}

	daysElapsed := decimal.NewFromInt(int64(now.Day()))
	daysInMonth := decimal.NewFromInt(int64(daysInMonth(now)))
	return spent.Div(daysElapsed).Mul(daysInMonth), nil
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func startOfDayUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
