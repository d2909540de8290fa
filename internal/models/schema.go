package models

// Table names shared by the models and every raw query/update call site.
const (
	TableExecutionProgress = "execution_progress"
	TableBacklogItems      = "backlog_items"
)

// Column names for execution_progress. Update call sites build their
// column maps from these instead of hard-coding strings.
const (
	ColID                   = "id"
	ColItemID               = "item_id"
	ColRunID                = "run_id"
	ColPhase                = "phase"
	ColWaveCurrent          = "wave_current"
	ColWaveTotal            = "wave_total"
	ColWaveStatus           = "wave_status"
	ColCheckpointIndex      = "checkpoint_index"
	ColCheckpointTotal      = "checkpoint_total"
	ColCheckpointsCompleted = "checkpoints_completed"
	ColCurrentTask          = "current_task"
	ColCheckpointMessage    = "checkpoint_message"
	ColCurrentFile          = "current_file"
	ColFilesTouched         = "files_touched"
	ColLinesChanged         = "lines_changed"
	ColValidationTypescript = "validation_typescript"
	ColValidationEslint     = "validation_eslint"
	ColValidationBuild      = "validation_build"
	ColValidationTests      = "validation_tests"
	ColInspectorFindings    = "inspector_findings"
	ColFixIteration         = "fix_iteration"
	ColMaxIterations        = "max_iterations"
	ColStartedAt            = "started_at"
	ColUpdatedAt            = "updated_at"
	ColCompletedAt          = "completed_at"
)
