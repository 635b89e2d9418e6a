// Package tasks persists and executes the pipeline's detached side effects.
// The outbox pattern replaces fire-and-forget goroutines: the request path
// inserts a row, and a worker with its own retry policy executes it, so an
// enqueued side effect survives a crash between response and execution.
package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/councilhq/councilapi/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outbox enqueues background tasks. It implements the dispatcher interface
// the pipeline stages depend on.
type Outbox struct {
	db *gorm.DB
}

// NewOutbox constructs an Outbox.
func NewOutbox(db *gorm.DB) *Outbox {
	return &Outbox{db: db}
}

// Enqueue inserts one pending task due immediately.
func (o *Outbox) Enqueue(ctx context.Context, userID uint64, taskType string, payload map[string]any) error {
	raw, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return errMarshal
	}
	task := models.BackgroundTask{
		UserID:    userID,
		TaskType:  taskType,
		Payload:   datatypes.JSON(raw),
		Status:    models.TaskStatusPending,
		NextRunAt: time.Now().UTC(),
	}
	return o.db.WithContext(ctx).Create(&task).Error
}
