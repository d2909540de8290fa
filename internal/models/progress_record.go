package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Execution phases, in lifecycle order. PhaseComplete is terminal.
const (
	PhaseSiteReview = "site_review"
	PhaseFoundation = "foundation"
	PhaseBuilding   = "building"
	PhaseInspection = "inspection"
	PhaseComplete   = "complete"
)

// Wave statuses shown by the dashboard.
const (
	WaveStatusPending    = "pending"
	WaveStatusInProgress = "in_progress"
	WaveStatusCompleted  = "completed"
)

// Validation check states for the four post-build checks.
const (
	ValidationPending = "pending"
	ValidationRunning = "running"
	ValidationPass    = "pass"
	ValidationFail    = "fail"
)

// CheckpointEntry is one completed milestone in the checkpoint trail.
// JSON keys are the dashboard's contract.
type CheckpointEntry struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	CompletedAt time.Time `json:"completedAt"`
}

// ProgressRecord tracks the live execution state of one backlog item.
// At most one row exists per item; a completed row may be superseded
// when a new run picks the item up again.
type ProgressRecord struct {
	ID                   string                               `gorm:"primaryKey" json:"id"` // UUID
	ItemID               string                               `gorm:"uniqueIndex;not null;column:item_id" json:"item_id"`
	RunID                string                               `gorm:"column:run_id" json:"run_id"`
	Phase                string                               `gorm:"not null;default:site_review" json:"phase"` // site_review, foundation, building, inspection, complete
	WaveCurrent          int                                  `gorm:"not null;default:1;column:wave_current" json:"wave_current"`
	WaveTotal            int                                  `gorm:"not null;default:4;column:wave_total" json:"wave_total"`
	WaveStatus           string                               `gorm:"not null;default:pending;column:wave_status" json:"wave_status"` // pending, in_progress, completed
	CheckpointIndex      int                                  `gorm:"not null;default:0;column:checkpoint_index" json:"checkpoint_index"`
	CheckpointTotal      int                                  `gorm:"not null;default:12;column:checkpoint_total" json:"checkpoint_total"`
	CheckpointsCompleted datatypes.JSONSlice[CheckpointEntry] `gorm:"column:checkpoints_completed" json:"checkpoints_completed"`
	CurrentTask          string                               `gorm:"column:current_task" json:"current_task"`
	CheckpointMessage    string                               `gorm:"column:checkpoint_message" json:"checkpoint_message"`
	CurrentFile          string                               `gorm:"column:current_file" json:"current_file"`
	FilesTouched         datatypes.JSONSlice[string]          `gorm:"column:files_touched" json:"files_touched"`
	LinesChanged         int                                  `gorm:"not null;default:0;column:lines_changed" json:"lines_changed"`
	ValidationTypescript string                               `gorm:"not null;default:pending;column:validation_typescript" json:"validation_typescript"` // pending, running, pass, fail
	ValidationEslint     string                               `gorm:"not null;default:pending;column:validation_eslint" json:"validation_eslint"`
	ValidationBuild      string                               `gorm:"not null;default:pending;column:validation_build" json:"validation_build"`
	ValidationTests      string                               `gorm:"not null;default:pending;column:validation_tests" json:"validation_tests"`
	InspectorFindings    datatypes.JSONSlice[string]          `gorm:"column:inspector_findings" json:"inspector_findings"`
	FixIteration         int                                  `gorm:"not null;default:0;column:fix_iteration" json:"fix_iteration"`
	MaxIterations        int                                  `gorm:"not null;default:3;column:max_iterations" json:"max_iterations"`
	StartedAt            time.Time                            `gorm:"not null;column:started_at" json:"started_at"`
	UpdatedAt            time.Time                            `json:"updated_at"`
	CompletedAt          *time.Time                           `gorm:"column:completed_at" json:"completed_at"` // set iff phase == complete
}

// BeforeCreate hook to generate UUID before creating record
func (pr *ProgressRecord) BeforeCreate(tx *gorm.DB) error {
	if pr.ID == "" {
		pr.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (ProgressRecord) TableName() string {
	return TableExecutionProgress
}

// IsComplete reports whether the record is terminal.
func (pr *ProgressRecord) IsComplete() bool {
	return pr.Phase == PhaseComplete
}

// HasCheckpoint reports whether a checkpoint id is already in the trail.
func (pr *ProgressRecord) HasCheckpoint(id int) bool {
	for _, entry := range pr.CheckpointsCompleted {
		if entry.ID == id {
			return true
		}
	}
	return false
}

// HasFileTouched reports whether a path is already in the touched set.
func (pr *ProgressRecord) HasFileTouched(path string) bool {
	for _, f := range pr.FilesTouched {
		if f == path {
			return true
		}
	}
	return false
}
