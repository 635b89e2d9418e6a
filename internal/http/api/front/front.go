// Package front registers the public HTTP surface: authentication, audit
// submission, and the billing/usage endpoints behind bearer auth.
package front

import (
	"net/http"
	"strings"

	"github.com/councilhq/councilapi/internal/audit"
	"github.com/councilhq/councilapi/internal/config"
	"github.com/councilhq/councilapi/internal/http/api/front/handlers"
	"github.com/councilhq/councilapi/internal/models"
	"github.com/councilhq/councilapi/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterRoutes registers public and authenticated routes.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, pipeline *audit.Pipeline) {
	if r == nil || db == nil {
		return
	}

	v1 := r.Group("/v1")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	v1.POST("/auth/register", authHandler.Register)
	v1.POST("/auth/login", authHandler.Login)

	authed := v1.Group("")
	authed.Use(userAuthMiddleware(db, jwtCfg))

	auditHandler := handlers.NewAuditHandler(pipeline)
	authed.POST("/audits", auditHandler.Create)

	ledgerHandler := handlers.NewLedgerHandler(db)
	authed.GET("/ledger", ledgerHandler.Get)
	authed.GET("/ledger/transactions", ledgerHandler.Transactions)
	authed.PUT("/ledger/auto-recharge", ledgerHandler.UpdateAutoRecharge)

	usageHandler := handlers.NewUsageHandler(db)
	authed.GET("/usage", usageHandler.Get)
	authed.PUT("/usage/thresholds", usageHandler.UpdateThresholds)

	voucherHandler := handlers.NewVoucherHandler(db)
	authed.POST("/vouchers/redeem", voucherHandler.Redeem)
	authed.GET("/vouchers", voucherHandler.List)

	councilHandler := handlers.NewCouncilHandler(db)
	authed.GET("/council", councilHandler.Get)
}

// userAuthMiddleware validates user JWTs and loads the user into context.
func userAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if user.Status == models.AccountStatusDisabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}

		c.Set("userID", user.ID)
		c.Next()
	}
}
