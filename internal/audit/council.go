package audit

import (
	"context"
	"strings"

	"github.com/councilhq/councilapi/internal/models"
	"gorm.io/gorm"
)

// Slot is one validated council member.
type Slot struct {
	ModelID     string
	DisplayName string
	Role        string // models.SlotRoleDrafter or models.SlotRoleAuditor.
	Position    int
}

// Council is a validated configuration: at least one drafter and exactly one
// auditor.
type Council struct {
	Drafters []Slot
	Auditor  Slot
	Source   string // Origin marker carried into training records.
}

// SlotInput is a caller-supplied council slot before validation.
type SlotInput struct {
	ModelID     string `json:"model"`
	DisplayName string `json:"name"`
	Role        string `json:"role"`
}

// ResolveCouncil validates caller-supplied slots into a Council. Roles are
// tagged explicitly; when no slot is tagged auditor, the last slot is
// promoted. More than one tagged auditor is a configuration error.
func ResolveCouncil(inputs []SlotInput, source string) (Council, *Error) {
	if len(inputs) < 2 {
		return Council{}, ErrBadRequest("A council needs at least two slots: one drafter and one auditor.")
	}

	slots := make([]Slot, 0, len(inputs))
	auditorIdx := -1
	for i, input := range inputs {
		modelID := strings.TrimSpace(input.ModelID)
		if modelID == "" {
			return Council{}, ErrBadRequest("Every council slot needs a model id.")
		}
		role := strings.ToLower(strings.TrimSpace(input.Role))
		switch role {
		case models.SlotRoleAuditor:
			if auditorIdx >= 0 {
				return Council{}, ErrBadRequest("A council can have only one auditor slot.")
			}
			auditorIdx = i
		case models.SlotRoleDrafter, "":
			role = models.SlotRoleDrafter
		default:
			return Council{}, ErrBadRequest("Slot roles must be \"drafter\" or \"auditor\".")
		}

		name := strings.TrimSpace(input.DisplayName)
		if name == "" {
			name = modelID
		}
		slots = append(slots, Slot{ModelID: modelID, DisplayName: name, Role: role, Position: i})
	}

	// No explicit auditor: the last slot is promoted.
	if auditorIdx < 0 {
		auditorIdx = len(slots) - 1
		slots[auditorIdx].Role = models.SlotRoleAuditor
	}

	council := Council{Source: source}
	for i, slot := range slots {
		if i == auditorIdx {
			council.Auditor = slot
			continue
		}
		council.Drafters = append(council.Drafters, slot)
	}
	if len(council.Drafters) == 0 {
		return Council{}, ErrBadRequest("A council needs at least one drafter slot besides the auditor.")
	}
	return council, nil
}

// LoadDefaultCouncil builds the Council from persisted default slots.
func LoadDefaultCouncil(ctx context.Context, db *gorm.DB) (Council, *Error) {
	var rows []models.CouncilSlot
	if errFind := db.WithContext(ctx).
		Where("is_enabled = ?", true).
		Order("position ASC").
		Find(&rows).Error; errFind != nil {
		return Council{}, ErrInternal("Council configuration could not be loaded.", errFind)
	}
	inputs := make([]SlotInput, 0, len(rows))
	for _, row := range rows {
		inputs = append(inputs, SlotInput{ModelID: row.ModelID, DisplayName: row.DisplayName, Role: row.Role})
	}
	return ResolveCouncil(inputs, "default")
}
