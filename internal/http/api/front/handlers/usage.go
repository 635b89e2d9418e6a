package handlers

import (
	"errors"
	"net/http"

	"github.com/councilhq/councilapi/internal/audit"
	"github.com/councilhq/councilapi/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UsageHandler handles usage counter and threshold endpoints.
type UsageHandler struct {
	db *gorm.DB
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(db *gorm.DB) *UsageHandler {
	return &UsageHandler{db: db}
}

// Get returns the user's audit counters, quota, and alert thresholds.
func (h *UsageHandler) Get(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var counters models.UsageCounters
	errFind := h.db.WithContext(c.Request.Context()).Where("user_id = ?", userID).First(&counters).Error
	if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query usage failed"})
		return
	}
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		counters = models.UsageCounters{UserID: userID, Tier: models.TierFree}
	}

	quota := audit.MonthlyQuota(counters.Tier)
	remaining := quota - counters.AuditsThisMonth
	if remaining < 0 {
		remaining = 0
	}

	c.JSON(http.StatusOK, gin.H{
		"tier":              counters.Tier,
		"audit_count":       counters.AuditCount,
		"audits_this_month": counters.AuditsThisMonth,
		"monthly_quota":     quota,
		"remaining_audits":  remaining,
		"thresholds": gin.H{
			"daily":          decimalString(counters.DailyCostThreshold),
			"per_audit":      decimalString(counters.PerAuditCostThreshold),
			"monthly_budget": decimalString(counters.MonthlyBudgetLimit),
		},
	})
}

// thresholdsRequest defines the alert threshold settings body. Null fields
// clear the corresponding threshold.
type thresholdsRequest struct {
	Daily         *string `json:"daily"`
	PerAudit      *string `json:"per_audit"`
	MonthlyBudget *string `json:"monthly_budget"`
}

// UpdateThresholds stores the user's spending alert thresholds.
func (h *UsageHandler) UpdateThresholds(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body thresholdsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	daily, errDaily := parseThreshold(body.Daily)
	if errDaily != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid daily threshold"})
		return
	}
	perAudit, errPerAudit := parseThreshold(body.PerAudit)
	if errPerAudit != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid per-audit threshold"})
		return
	}
	budget, errBudget := parseThreshold(body.MonthlyBudget)
	if errBudget != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid monthly budget"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var counters models.UsageCounters
		errFind := tx.Where("user_id = ?", userID).First(&counters).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			counters = models.UsageCounters{UserID: userID, Tier: models.TierFree}
			if errCreate := tx.Create(&counters).Error; errCreate != nil {
				return errCreate
			}
		} else if errFind != nil {
			return errFind
		}
		return tx.Model(&models.UsageCounters{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"daily_cost_threshold":     daily,
				"per_audit_cost_threshold": perAudit,
				"monthly_budget_limit":     budget,
			}).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update thresholds failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func parseThreshold(raw *string) (*decimal.Decimal, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	value, errParse := decimal.NewFromString(*raw)
	if errParse != nil {
		return nil, errParse
	}
	if value.IsNegative() {
		return nil, errors.New("negative threshold")
	}
	return &value, nil
}

func decimalString(value *decimal.Decimal) *string {
	if value == nil {
		return nil
	}
	s := value.String()
	return &s
}
