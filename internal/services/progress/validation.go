package progress

import (
	"fmt"
	"strings"

	"mason-engine/internal/models"
)

// phaseRank orders the execution phases; complete is terminal.
var phaseRank = map[string]int{
	models.PhaseSiteReview: 0,
	models.PhaseFoundation: 1,
	models.PhaseBuilding:   2,
	models.PhaseInspection: 3,
	models.PhaseComplete:   4,
}

var validWaveStatuses = map[string]bool{
	models.WaveStatusPending:    true,
	models.WaveStatusInProgress: true,
	models.WaveStatusCompleted:  true,
}

var validValidationStates = map[string]bool{
	models.ValidationPending: true,
	models.ValidationRunning: true,
	models.ValidationPass:    true,
	models.ValidationFail:    true,
}

// ValidationError represents a validation error with field context
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validateItemID(itemID string) error {
	if strings.TrimSpace(itemID) == "" {
		return &ValidationError{"itemId", "required"}
	}
	return nil
}

// validateUpdateFields rejects unknown enum values before they reach the
// store. Nil fields are skipped.
func validateUpdateFields(fields UpdateFields) error {
	if fields.Phase != nil {
		if _, ok := phaseRank[*fields.Phase]; !ok {
			return &ValidationError{"phase", fmt.Sprintf("unknown phase %q", *fields.Phase)}
		}
	}
	if fields.WaveStatus != nil && !validWaveStatuses[*fields.WaveStatus] {
		return &ValidationError{"waveStatus", fmt.Sprintf("unknown wave status %q", *fields.WaveStatus)}
	}
	for field, value := range map[string]*string{
		"validationTypescript": fields.ValidationTypescript,
		"validationEslint":     fields.ValidationEslint,
		"validationBuild":      fields.ValidationBuild,
		"validationTests":      fields.ValidationTests,
	} {
		if value != nil && !validValidationStates[*value] {
			return &ValidationError{field, fmt.Sprintf("unknown validation state %q", *value)}
		}
	}
	if fields.WaveCurrent != nil && *fields.WaveCurrent < 1 {
		return &ValidationError{"waveCurrent", "must be at least 1"}
	}
	if fields.CheckpointIndex != nil && *fields.CheckpointIndex < 0 {
		return &ValidationError{"checkpointIndex", "must not be negative"}
	}
	return nil
}

// phaseAdvances reports whether moving from current to next goes forward
// in the lifecycle. Unknown phases never advance.
func phaseAdvances(current, next string) bool {
	currentRank, ok := phaseRank[current]
	if !ok {
		return false
	}
	nextRank, ok := phaseRank[next]
	if !ok {
		return false
	}
	return nextRank >= currentRank
}
