package handlers

import (
	"net/http"

	"github.com/councilhq/councilapi/internal/audit"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// AuditHandler handles audit run submission.
type AuditHandler struct {
	pipeline *audit.Pipeline
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(pipeline *audit.Pipeline) *AuditHandler {
	return &AuditHandler{pipeline: pipeline}
}

// Create runs one audit and returns the verdict payload.
//
// Unexpected internal failures return HTTP 200 with an error body. Callers
// render that message directly instead of a transport-level error page; the
// convention predates this server and is load-bearing for existing clients.
func (h *AuditHandler) Create(c *gin.Context) {
	var req audit.Request
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	resp, errRun := h.pipeline.Run(c.Request.Context(), getUserID(c), req)
	if errRun != nil {
		if errRun.Kind == audit.KindInternal {
			log.WithError(errRun).Error("audit run failed")
			c.JSON(http.StatusOK, gin.H{"error": errRun.Detail})
			return
		}
		c.JSON(errRun.Status, gin.H{"error": string(errRun.Kind), "details": errRun.Detail})
		return
	}
	c.JSON(http.StatusOK, resp)
}
