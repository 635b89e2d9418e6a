package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/councilhq/councilapi/internal/models"
)

func TestUpdateThresholdsThenGet(t *testing.T) {
	conn := openTestDB(t)
	user := createTestUser(t, conn, "alice", "hunter2")
	h := NewUsageHandler(conn)

	c, w := jsonContext(t, http.MethodPut, "/v1/usage/thresholds", `{"daily":"2.50","per_audit":"0.10","monthly_budget":"40"}`, user.ID)
	h.UpdateThresholds(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	c, w = jsonContext(t, http.MethodGet, "/v1/usage", "", user.ID)
	h.Get(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Tier       string `json:"tier"`
		Thresholds struct {
			Daily         *string `json:"daily"`
			PerAudit      *string `json:"per_audit"`
			MonthlyBudget *string `json:"monthly_budget"`
		} `json:"thresholds"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.Tier != models.TierFree {
		t.Fatalf("expected free tier, got %q", resp.Tier)
	}
	if resp.Thresholds.Daily == nil || *resp.Thresholds.Daily != "2.5" {
		t.Fatalf("unexpected daily threshold: %v", resp.Thresholds.Daily)
	}
	if resp.Thresholds.MonthlyBudget == nil || *resp.Thresholds.MonthlyBudget != "40" {
		t.Fatalf("unexpected monthly budget: %v", resp.Thresholds.MonthlyBudget)
	}
}

func TestUpdateThresholdsClearsWithNull(t *testing.T) {
	conn := openTestDB(t)
	user := createTestUser(t, conn, "alice", "hunter2")
	h := NewUsageHandler(conn)

	c, w := jsonContext(t, http.MethodPut, "/v1/usage/thresholds", `{"daily":"2.50"}`, user.ID)
	h.UpdateThresholds(c)
	if w.Code != http.StatusOK {
		t.Fatalf("set: expected 200, got %d", w.Code)
	}

	c, w = jsonContext(t, http.MethodPut, "/v1/usage/thresholds", `{"daily":null}`, user.ID)
	h.UpdateThresholds(c)
	if w.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", w.Code)
	}

	var counters models.UsageCounters
	if errFind := conn.Where("user_id = ?", user.ID).First(&counters).Error; errFind != nil {
		t.Fatalf("find counters: %v", errFind)
	}
	if counters.DailyCostThreshold != nil {
		t.Fatalf("expected cleared threshold, got %v", counters.DailyCostThreshold)
	}
}

func TestUpdateThresholdsRejectsNegative(t *testing.T) {
	conn := openTestDB(t)
	user := createTestUser(t, conn, "alice", "hunter2")
	h := NewUsageHandler(conn)

	c, w := jsonContext(t, http.MethodPut, "/v1/usage/thresholds", `{"daily":"-1"}`, user.ID)
	h.UpdateThresholds(c)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetUsageReportsRemainingQuota(t *testing.T) {
	conn := openTestDB(t)
	user := createTestUser(t, conn, "alice", "hunter2")
	counters := models.UsageCounters{
		UserID:          user.ID,
		Tier:            models.TierPro,
		AuditsThisMonth: 50,
		AuditCount:      120,
		MonthAnchor:     time.Now().UTC().Format("2006-01"),
	}
	if errCreate := conn.Create(&counters).Error; errCreate != nil {
		t.Fatalf("create counters: %v", errCreate)
	}
	h := NewUsageHandler(conn)

	c, w := jsonContext(t, http.MethodGet, "/v1/usage", "", user.ID)
	h.Get(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		MonthlyQuota    int64 `json:"monthly_quota"`
		RemainingAudits int64 `json:"remaining_audits"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.MonthlyQuota != 200 || resp.RemainingAudits != 150 {
		t.Fatalf("unexpected quota payload: %+v", resp)
	}
}
