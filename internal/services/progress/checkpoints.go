package progress

import (
	"log"
	"time"

	"mason-engine/internal/models"
)

// Fixed milestones, grouped in banded id ranges. File checkpoints are
// generated per file starting at FileCheckpointBase; the gap before the
// validation band is headroom for them.
var (
	CheckpointInitWorkspace  = Checkpoint{ID: 1, Name: "Initializing workspace"}
	CheckpointLoadPlan       = Checkpoint{ID: 2, Name: "Loading plan document"}
	CheckpointReviewRepo     = Checkpoint{ID: 3, Name: "Reviewing repository structure"}
	CheckpointPlanChanges    = Checkpoint{ID: 4, Name: "Planning file changes"}
	CheckpointEnumerateFiles = Checkpoint{ID: 5, Name: "Enumerating target files"}
	CheckpointValidateTS     = Checkpoint{ID: 100, Name: "Running TypeScript check"}
	CheckpointValidateLint   = Checkpoint{ID: 101, Name: "Running ESLint"}
	CheckpointValidateBuild  = Checkpoint{ID: 102, Name: "Running build"}
	CheckpointValidateTests  = Checkpoint{ID: 103, Name: "Running tests"}
	CheckpointCommit         = Checkpoint{ID: 110, Name: "Committing changes"}
	CheckpointOpenPR         = Checkpoint{ID: 111, Name: "Opening pull request"}
	CheckpointComplete       = Checkpoint{ID: 120, Name: "Execution complete"}
)

// FileCheckpointBase is the id of the first dynamic file checkpoint.
const FileCheckpointBase = 6

// Static milestone counts around the dynamic file band.
const (
	setupCheckpoints        = 5
	validationCheckpoints   = 4
	finalizationCheckpoints = 2
	terminalCheckpoints     = 1
)

// CalculateTotalCheckpoints returns the real checkpoint count once the
// number of files to write is known.
func CalculateTotalCheckpoints(fileCount int) int {
	return setupCheckpoints + fileCount + validationCheckpoints + finalizationCheckpoints + terminalCheckpoints
}

// CreateFileCheckpoint builds the dynamic milestone for the index-th
// file to write (0-based).
func CreateFileCheckpoint(index int, fileName string) Checkpoint {
	return Checkpoint{ID: FileCheckpointBase + index, Name: "Writing " + fileName}
}

// UpdateCheckpoint records a completed milestone: appends it to the
// trail (skipping ids already present), advances checkpoint_index, and
// mirrors the name into checkpoint_message and current_task. Optional
// details ride along. Best effort: failures only log.
func (s *Service) UpdateCheckpoint(itemID string, cp Checkpoint, opts *CheckpointOptions) {
	rec, err := s.fetch(itemID)
	if err != nil {
		log.Printf("[progress] WARNING: checkpoint %d load for %s: %v", cp.ID, itemID, err)
		return
	}

	if !rec.HasCheckpoint(cp.ID) {
		rec.CheckpointsCompleted = append(rec.CheckpointsCompleted, models.CheckpointEntry{
			ID:          cp.ID,
			Name:        cp.Name,
			CompletedAt: time.Now(),
		})
	}
	// The index never moves backwards, even when a checkpoint is replayed
	if cp.ID > rec.CheckpointIndex {
		rec.CheckpointIndex = cp.ID
	}
	rec.CheckpointMessage = cp.Name
	rec.CurrentTask = cp.Name

	if opts != nil {
		if opts.CurrentFile != "" {
			rec.CurrentFile = opts.CurrentFile
			if !rec.HasFileTouched(opts.CurrentFile) {
				rec.FilesTouched = append(rec.FilesTouched, opts.CurrentFile)
			}
		}
		if opts.LinesChanged > 0 {
			rec.LinesChanged = opts.LinesChanged
		}
		if opts.Phase != "" && phaseAdvances(rec.Phase, opts.Phase) {
			rec.Phase = opts.Phase
		}
		if opts.Wave > 0 {
			rec.WaveCurrent = opts.Wave
			rec.WaveStatus = models.WaveStatusInProgress
		}
	}

	if err := s.db.Save(rec).Error; err != nil {
		log.Printf("[progress] WARNING: failed to persist checkpoint %d for %s: %v", cp.ID, itemID, err)
	}
}

// SetTotalCheckpoints revises the checkpoint total once the true file
// count is known. Touches nothing else. Best effort.
func (s *Service) SetTotalCheckpoints(itemID string, total int) {
	tx := s.db.Model(&models.ProgressRecord{}).
		Where(models.ColItemID+" = ?", itemID).
		Updates(map[string]any{
			models.ColCheckpointTotal: total,
			models.ColUpdatedAt:       time.Now(),
		})
	if tx.Error != nil {
		log.Printf("[progress] WARNING: set checkpoint total for %s: %v", itemID, tx.Error)
	}
}
