package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	dbpkg "github.com/councilhq/councilapi/internal/db"
	"github.com/councilhq/councilapi/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoucherHandler handles credit voucher endpoints.
type VoucherHandler struct {
	db *gorm.DB
}

// NewVoucherHandler constructs a VoucherHandler.
func NewVoucherHandler(db *gorm.DB) *VoucherHandler {
	return &VoucherHandler{db: db}
}

// redeemVoucherRequest defines the request body for voucher redemption.
type redeemVoucherRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

// Redeem redeems a voucher and credits the user's ledger in one transaction.
// The voucher row is locked for update so a code can only be redeemed once.
func (h *VoucherHandler) Redeem(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body redeemVoucherRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.TrimSpace(body.Code)
	password := strings.TrimSpace(body.Password)
	if code == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and password are required"})
		return
	}

	var result gin.H
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		// SQLite serializes writers on its own and rejects FOR UPDATE.
		lookup := tx
		if !dbpkg.IsSQLite(tx) {
			lookup = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var voucher models.CreditVoucher
		if errFind := lookup.
			Where("code = ?", code).
			First(&voucher).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "voucher not found"})
				return errFind
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query voucher failed"})
			return errFind
		}

		if voucher.Password != password {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
			return errors.New("invalid password")
		}
		if !voucher.IsEnabled {
			c.JSON(http.StatusBadRequest, gin.H{"error": "voucher is disabled"})
			return errors.New("voucher disabled")
		}
		if voucher.ExpiresAt != nil && voucher.ExpiresAt.Before(time.Now().UTC()) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "voucher expired"})
			return errors.New("voucher expired")
		}
		if voucher.RedeemedUserID != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "voucher already redeemed"})
			return errors.New("voucher redeemed")
		}

		now := time.Now().UTC()
		if errUpdate := tx.Model(&voucher).Updates(map[string]any{
			"redeemed_user_id": userID,
			"redeemed_at":      now,
		}).Error; errUpdate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redeem failed"})
			return errUpdate
		}

		var ledger models.CreditLedger
		errLedger := lookup.Where("user_id = ?", userID).First(&ledger).Error
		if errors.Is(errLedger, gorm.ErrRecordNotFound) {
			ledger = models.CreditLedger{UserID: userID, Balance: decimal.Zero}
			if errCreate := tx.Create(&ledger).Error; errCreate != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "redeem failed"})
				return errCreate
			}
		} else if errLedger != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redeem failed"})
			return errLedger
		}

		// Add in decimal and store the result; in-database arithmetic runs
		// in float on SQLite's numeric affinity and drifts the balance.
		newBalance := ledger.Balance.Add(voucher.Amount)
		if errCredit := tx.Model(&models.CreditLedger{}).
			Where("user_id = ?", userID).
			Update("balance", newBalance).Error; errCredit != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redeem failed"})
			return errCredit
		}
		entry := models.BillingTransaction{
			UserID:          userID,
			Amount:          voucher.Amount,
			TransactionType: models.TransactionTypeVoucherRedeem,
			BalanceAfter:    newBalance,
			Description:     "Voucher " + voucher.Code,
		}
		if errEntry := tx.Create(&entry).Error; errEntry != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redeem failed"})
			return errEntry
		}

		result = gin.H{
			"code":    voucher.Code,
			"amount":  voucher.Amount.String(),
			"balance": newBalance.String(),
		}
		return nil
	})
	if errTx != nil {
		return
	}
	c.JSON(http.StatusOK, result)
}

// List returns the vouchers the user has redeemed.
func (h *VoucherHandler) List(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var rows []models.CreditVoucher
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("redeemed_user_id = ?", userID).
		Order("redeemed_at DESC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query vouchers failed"})
		return
	}

	type voucherDTO struct {
		Name       string     `json:"name"`
		Code       string     `json:"code"`
		Amount     string     `json:"amount"`
		RedeemedAt *time.Time `json:"redeemed_at"`
	}
	out := make([]voucherDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, voucherDTO{
			Name:       row.Name,
			Code:       row.Code,
			Amount:     row.Amount.String(),
			RedeemedAt: row.RedeemedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"vouchers": out})
}
