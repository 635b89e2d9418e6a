package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	dbpkg "github.com/councilhq/councilapi/internal/db"
	"github.com/councilhq/councilapi/internal/llm"
	"github.com/councilhq/councilapi/internal/models"
	"github.com/councilhq/councilapi/internal/pricing"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := dbpkg.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := dbpkg.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func createTestUser(t *testing.T, conn *gorm.DB, mutate func(*models.User)) models.User {
	t.Helper()
	user := models.User{
		Username: fmt.Sprintf("user-%d", time.Now().UnixNano()),
		Email:    "user@example.com",
		Password: "hash",
		Status:   models.AccountStatusActive,
	}
	if mutate != nil {
		mutate(&user)
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user
}

func seedLedger(t *testing.T, conn *gorm.DB, userID uint64, balance string, mutate func(*models.CreditLedger)) models.CreditLedger {
	t.Helper()
	ledger := models.CreditLedger{
		UserID:  userID,
		Balance: decimal.RequireFromString(balance),
	}
	if mutate != nil {
		mutate(&ledger)
	}
	if errCreate := conn.Create(&ledger).Error; errCreate != nil {
		t.Fatalf("create ledger: %v", errCreate)
	}
	return ledger
}

func seedPrice(t *testing.T, conn *gorm.DB, modelID, input, output string) {
	t.Helper()
	price := models.ModelPrice{
		ModelID:             modelID,
		InputPricePerToken:  decimal.RequireFromString(input),
		OutputPricePerToken: decimal.RequireFromString(output),
		LastUpdated:         time.Now().UTC(),
	}
	if errCreate := conn.Create(&price).Error; errCreate != nil {
		t.Fatalf("create price: %v", errCreate)
	}
}

func testPriceTable(t *testing.T, conn *gorm.DB) *pricing.Table {
	t.Helper()
	table := pricing.NewTable(conn, nil, pricing.Price{
		InputPerToken:  decimal.RequireFromString("0.000001"),
		OutputPerToken: decimal.RequireFromString("0.000002"),
	})
	if errRefresh := table.Refresh(context.Background()); errRefresh != nil {
		t.Fatalf("refresh prices: %v", errRefresh)
	}
	return table
}

// stubInvoker returns canned responses per model, and errors for models
// listed in fail.
type stubInvoker struct {
	responses map[string]string
	fail      map[string]bool
}

func (s *stubInvoker) Invoke(_ context.Context, modelID string, _ []llm.Message) (llm.Result, error) {
	if s.fail[modelID] {
		return llm.Result{}, fmt.Errorf("model %s unavailable", modelID)
	}
	text, ok := s.responses[modelID]
	if !ok {
		text = "response from " + modelID
	}
	return llm.Result{Text: text, LatencyMS: 5}, nil
}

// stubModerator returns a fixed verdict or error.
type stubModerator struct {
	result llm.ModerationResult
	err    error
}

func (s *stubModerator) Moderate(context.Context, string) (llm.ModerationResult, error) {
	return s.result, s.err
}

// recordingDispatcher captures enqueued tasks.
type recordingDispatcher struct {
	tasks []recordedTask
}

type recordedTask struct {
	UserID   uint64
	TaskType string
	Payload  map[string]any
}

func (r *recordingDispatcher) Enqueue(_ context.Context, userID uint64, taskType string, payload map[string]any) error {
	r.tasks = append(r.tasks, recordedTask{UserID: userID, TaskType: taskType, Payload: payload})
	return nil
}

func (r *recordingDispatcher) byType(taskType string) []recordedTask {
	var out []recordedTask
	for _, task := range r.tasks {
		if task.TaskType == taskType {
			out = append(out, task)
		}
	}
	return out
}

func testCouncil() Council {
	return Council{
		Drafters: []Slot{
			{ModelID: "model-a", DisplayName: "Model A", Role: models.SlotRoleDrafter, Position: 0},
			{ModelID: "model-b", DisplayName: "Model B", Role: models.SlotRoleDrafter, Position: 1},
		},
		Auditor: Slot{ModelID: "model-c", DisplayName: "Model C", Role: models.SlotRoleAuditor, Position: 2},
		Source:  "test",
	}
}
