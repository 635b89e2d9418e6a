package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/councilhq/councilapi/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerHandler handles credit balance endpoints.
type LedgerHandler struct {
	db *gorm.DB
}

// NewLedgerHandler constructs a LedgerHandler.
func NewLedgerHandler(db *gorm.DB) *LedgerHandler {
	return &LedgerHandler{db: db}
}

// Get returns the current balance and auto-recharge settings.
func (h *LedgerHandler) Get(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var ledger models.CreditLedger
	if errFind := h.db.WithContext(c.Request.Context()).Where("user_id = ?", userID).First(&ledger).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, gin.H{
				"balance":                 "0",
				"auto_recharge_enabled":   false,
				"auto_recharge_threshold": "0",
				"auto_recharge_amount":    "0",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query ledger failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":                 ledger.Balance.String(),
		"auto_recharge_enabled":   ledger.AutoRechargeEnabled,
		"auto_recharge_threshold": ledger.AutoRechargeThreshold.String(),
		"auto_recharge_amount":    ledger.AutoRechargeAmount.String(),
	})
}

// transactionDTO defines the transaction list payload.
type transactionDTO struct {
	ID            uint64 `json:"id"`
	Amount        string `json:"amount"`
	Type          string `json:"type"`
	BalanceAfter  string `json:"balance_after"`
	Description   string `json:"description"`
	CreatedAtUnix int64  `json:"created_at"`
}

// Transactions returns the user's ledger history, newest first.
func (h *LedgerHandler) Transactions(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, errLimit := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if errLimit != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, errOffset := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if errOffset != nil || offset < 0 {
		offset = 0
	}

	var rows []models.BillingTransaction
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query transactions failed"})
		return
	}

	out := make([]transactionDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, transactionDTO{
			ID:            row.ID,
			Amount:        row.Amount.String(),
			Type:          row.TransactionType,
			BalanceAfter:  row.BalanceAfter.String(),
			Description:   row.Description,
			CreatedAtUnix: row.CreatedAt.Unix(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

// autoRechargeRequest defines the auto-recharge settings body.
type autoRechargeRequest struct {
	Enabled   bool   `json:"enabled"`
	Threshold string `json:"threshold"`
	Amount    string `json:"amount"`
}

// UpdateAutoRecharge stores the user's auto-recharge settings, creating the
// ledger row when it does not exist yet.
func (h *LedgerHandler) UpdateAutoRecharge(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body autoRechargeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	threshold, errThreshold := decimal.NewFromString(body.Threshold)
	if errThreshold != nil || threshold.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold"})
		return
	}
	amount, errAmount := decimal.NewFromString(body.Amount)
	if errAmount != nil || amount.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	if body.Enabled && amount.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive when auto-recharge is enabled"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var ledger models.CreditLedger
		errFind := tx.Where("user_id = ?", userID).First(&ledger).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			ledger = models.CreditLedger{UserID: userID, Balance: decimal.Zero}
			if errCreate := tx.Create(&ledger).Error; errCreate != nil {
				return errCreate
			}
		} else if errFind != nil {
			return errFind
		}
		return tx.Model(&models.CreditLedger{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"auto_recharge_enabled":   body.Enabled,
				"auto_recharge_threshold": threshold,
				"auto_recharge_amount":    amount,
			}).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update auto-recharge failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
