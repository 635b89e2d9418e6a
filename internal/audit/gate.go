package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/councilhq/councilapi/internal/llm"
	"github.com/councilhq/councilapi/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// tierQuotas maps subscription tiers to monthly audit limits.
var tierQuotas = map[string]int64{
	models.TierFree:   3,
	models.TierPro:    200,
	models.TierMax:    800,
	models.TierTeam:   1500,
	models.TierAgency: 5000,
}

// MonthlyQuota returns the audit quota for a tier; unknown tiers get the free
// quota.
func MonthlyQuota(tier string) int64 {
	if limit, ok := tierQuotas[strings.ToLower(strings.TrimSpace(tier))]; ok {
		return limit
	}
	return tierQuotas[models.TierFree]
}

// Gate runs the eligibility checks that precede any paid work. It is the only
// component allowed to provision UsageCounters and CreditLedger rows.
type Gate struct {
	db         *gorm.DB
	moderator  llm.Moderator
	failClosed bool
}

// NewGate constructs a Gate. moderator may be nil, which skips moderation
// entirely (local development only).
func NewGate(db *gorm.DB, moderator llm.Moderator, failClosed bool) *Gate {
	return &Gate{db: db, moderator: moderator, failClosed: failClosed}
}

// Admission is the gate's successful output: the resolved account and its
// lazily provisioned billing rows.
type Admission struct {
	User     models.User
	Counters models.UsageCounters
	Ledger   models.CreditLedger
}

// Check runs the eligibility sequence for userID and prompt, short-circuiting
// on the first failure. A nil error means the request may proceed to costing.
func (g *Gate) Check(ctx context.Context, userID uint64, prompt string) (Admission, *Error) {
	var admission Admission

	if userID == 0 {
		return admission, ErrUnauthenticated()
	}
	var user models.User
	if errFind := g.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return admission, ErrUnauthenticated()
		}
		return admission, internalError("account lookup failed", errFind)
	}
	admission.User = user

	if user.Banned {
		since := ""
		if user.BannedAt != nil {
			since = user.BannedAt.UTC().Format(time.RFC3339)
		}
		return admission, ErrAccountSuspended(user.BanReason, since)
	}

	switch user.Status {
	case models.AccountStatusActive:
	case models.AccountStatusDisabled:
		return admission, ErrAccountDisabled()
	case models.AccountStatusInactive:
		return admission, ErrAccountInactive()
	default:
		return admission, ErrAccountDisabled()
	}

	if errModeration := g.moderate(ctx, userID, prompt); errModeration != nil {
		return admission, errModeration
	}

	counters, errCounters := g.resolveCounters(ctx, userID)
	if errCounters != nil {
		return admission, internalError("usage counters lookup failed", errCounters)
	}
	admission.Counters = counters

	ledger, errLedger := g.resolveLedger(ctx, userID)
	if errLedger != nil {
		return admission, internalError("credit ledger lookup failed", errLedger)
	}
	admission.Ledger = ledger

	if !user.Premium {
		limit := MonthlyQuota(counters.Tier)
		if counters.AuditsThisMonth >= limit {
			return admission, ErrQuotaExceeded(counters.AuditsThisMonth, limit, counters.Tier)
		}
	}

	return admission, nil
}

// moderate submits the prompt to the moderation capability. A flagged verdict
// writes a SecurityLog row and rejects; a capability error fails open unless
// the gate is configured to fail closed. Either outcome emits a
// distinguishable activity event.
func (g *Gate) moderate(ctx context.Context, userID uint64, prompt string) *Error {
	if g.moderator == nil {
		return nil
	}

	verdict, errModerate := g.moderator.Moderate(ctx, prompt)
	if errModerate != nil {
		if g.failClosed {
			g.logModerationOutage(ctx, userID, models.ActivityModerationFailClose, errModerate)
			return ErrModerationUnavailable(errModerate)
		}
		log.WithError(errModerate).Warn("moderation unavailable, failing open")
		g.logModerationOutage(ctx, userID, models.ActivityModerationFailOpen, errModerate)
		return nil
	}
	if !verdict.Flagged {
		return nil
	}

	categories := strings.Join(verdict.Categories, ",")
	scores, _ := json.Marshal(verdict.Scores)
	entry := models.SecurityLog{
		UserID:     userID,
		Prompt:     prompt,
		Categories: categories,
		Scores:     datatypes.JSON(scores),
	}
	if errCreate := g.db.WithContext(ctx).Create(&entry).Error; errCreate != nil {
		log.WithError(errCreate).Warn("security log write failed")
	}
	g.logActivity(ctx, userID, models.ActivityModerationFlagged, "prompt rejected by content policy", categories)

	return ErrContentPolicyViolation(categories)
}

func (g *Gate) logModerationOutage(ctx context.Context, userID uint64, event string, cause error) {
	g.logActivity(ctx, userID, event, "moderation capability errored: "+cause.Error(), "")
}

func (g *Gate) logActivity(ctx context.Context, userID uint64, event, description, categories string) {
	metadata := datatypes.JSON([]byte("{}"))
	if categories != "" {
		if payload, errMarshal := json.Marshal(map[string]string{"categories": categories}); errMarshal == nil {
			metadata = datatypes.JSON(payload)
		}
	}
	entry := models.ActivityLog{
		UserID:      userID,
		Event:       event,
		Description: description,
		Metadata:    metadata,
	}
	if errCreate := g.db.WithContext(ctx).Create(&entry).Error; errCreate != nil {
		log.WithError(errCreate).Warn("activity log write failed")
	}
}

// resolveCounters loads the user's usage counters, creating the row with free
// tier defaults on first use. The monthly counter resets when the stored
// month anchor is stale.
func (g *Gate) resolveCounters(ctx context.Context, userID uint64) (models.UsageCounters, error) {
	anchor := time.Now().UTC().Format("2006-01")

	var counters models.UsageCounters
	errFind := g.db.WithContext(ctx).Where("user_id = ?", userID).First(&counters).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return counters, errFind
		}
		counters = models.UsageCounters{
			UserID:      userID,
			Tier:        models.TierFree,
			MonthAnchor: anchor,
		}
		if errCreate := g.db.WithContext(ctx).Create(&counters).Error; errCreate != nil {
			return counters, errCreate
		}
		return counters, nil
	}

	if counters.MonthAnchor != anchor {
		if errUpdate := g.db.WithContext(ctx).Model(&counters).Updates(map[string]any{
			"audits_this_month": 0,
			"month_anchor":      anchor,
		}).Error; errUpdate != nil {
			return counters, errUpdate
		}
		counters.AuditsThisMonth = 0
		counters.MonthAnchor = anchor
	}
	return counters, nil
}

// resolveLedger loads the user's credit ledger, creating a zero-balance row
// on first use.
func (g *Gate) resolveLedger(ctx context.Context, userID uint64) (models.CreditLedger, error) {
	var ledger models.CreditLedger
	errFind := g.db.WithContext(ctx).Where("user_id = ?", userID).First(&ledger).Error
	if errFind == nil {
		return ledger, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return ledger, errFind
	}
	ledger = models.CreditLedger{UserID: userID}
	if errCreate := g.db.WithContext(ctx).Create(&ledger).Error; errCreate != nil {
		return ledger, errCreate
	}
	return ledger, nil
}

func internalError(detail string, cause error) *Error {
	return ErrInternal(detail, cause)
}
