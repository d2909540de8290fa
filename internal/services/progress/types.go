package progress

import (
	"fmt"
	"time"

	"mason-engine/internal/models"
)

// Defaults applied by Ensure when options are omitted.
const (
	DefaultTotalWaves       = 4
	DefaultTotalCheckpoints = 12
	DefaultMaxIterations    = 3
	DefaultInitialTask      = "Initializing execution"
	DefaultCompleteTask     = "Execution complete"
)

// Store operations named in ProgressError.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ProgressError is raised by the throwing entry points (Ensure, Update,
// Complete). Op identifies the store operation that failed.
type ProgressError struct {
	ItemID string
	Op     string // create, update, delete
	Err    error
}

func (e *ProgressError) Error() string {
	return fmt.Sprintf("progress %s failed for item %s: %v", e.Op, e.ItemID, e.Err)
}

func (e *ProgressError) Unwrap() error {
	return e.Err
}

// EnsureOptions tunes the record Ensure creates. Zero values fall back
// to the defaults above.
type EnsureOptions struct {
	RunID            string
	TotalWaves       int
	TotalCheckpoints int
	InitialTask      string
}

// UpdateFields is a partial update of a progress record. Nil fields are
// left untouched; id, item id and started_at are not updatable.
type UpdateFields struct {
	RunID                *string
	Phase                *string
	WaveCurrent          *int
	WaveTotal            *int
	WaveStatus           *string
	CheckpointIndex      *int
	CheckpointTotal      *int
	CheckpointsCompleted *[]models.CheckpointEntry
	CurrentTask          *string
	CheckpointMessage    *string
	CurrentFile          *string
	FilesTouched         *[]string
	LinesChanged         *int
	ValidationTypescript *string
	ValidationEslint     *string
	ValidationBuild      *string
	ValidationTests      *string
	InspectorFindings    *[]string
	FixIteration         *int
	MaxIterations        *int
	CompletedAt          *time.Time
}

// Checkpoint is a named milestone with a stable id.
type Checkpoint struct {
	ID   int
	Name string
}

// CheckpointOptions carries the optional side details recorded with a
// checkpoint. Zero values are skipped.
type CheckpointOptions struct {
	CurrentFile  string
	LinesChanged int // cumulative total, not a delta
	Phase        string
	Wave         int
}
