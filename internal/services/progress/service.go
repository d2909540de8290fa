package progress

import (
	"errors"
	"fmt"
	"log"
	"time"

	"mason-engine/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service reads and writes execution progress rows for backlog items.
// Ensure, Update and Complete raise typed errors; everything else is
// best effort and only logs.
type Service struct {
	db *gorm.DB
}

// NewService creates a new progress service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Ensure returns the progress record for an item, creating it when
// missing. A mid-run record is returned unchanged. A completed record
// from an earlier run is deleted and replaced by a fresh one; if that
// delete fails the stale record is returned instead.
func (s *Service) Ensure(itemID string, opts *EnsureOptions) (*models.ProgressRecord, error) {
	if err := validateItemID(itemID); err != nil {
		return nil, &ProgressError{ItemID: itemID, Op: OpCreate, Err: err}
	}

	existing, err := s.fetch(itemID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ProgressError{ItemID: itemID, Op: OpCreate, Err: fmt.Errorf("lookup failed: %w", err)}
		}
		return s.create(itemID, opts)
	}

	if !existing.IsComplete() {
		return existing, nil
	}

	// Terminal record from an earlier run: supersede it
	if err := s.db.Where(models.ColItemID+" = ?", itemID).Delete(&models.ProgressRecord{}).Error; err != nil {
		log.Printf("[progress] WARNING: failed to delete completed record for %s, returning stale record: %v", itemID, err)
		return existing, nil
	}

	return s.create(itemID, opts)
}

// Update applies a partial update and stamps updated_at. A missing row
// is fatal: callers that can tolerate absence use the best-effort
// operations instead.
func (s *Service) Update(itemID string, fields UpdateFields) (*models.ProgressRecord, error) {
	if err := validateItemID(itemID); err != nil {
		return nil, &ProgressError{ItemID: itemID, Op: OpUpdate, Err: err}
	}
	if err := validateUpdateFields(fields); err != nil {
		return nil, &ProgressError{ItemID: itemID, Op: OpUpdate, Err: err}
	}

	cols := fields.columns()
	cols[models.ColUpdatedAt] = time.Now()

	tx := s.db.Model(&models.ProgressRecord{}).
		Where(models.ColItemID+" = ?", itemID).
		Updates(cols)
	if tx.Error != nil {
		return nil, &ProgressError{ItemID: itemID, Op: OpUpdate, Err: tx.Error}
	}
	if tx.RowsAffected == 0 {
		return nil, &ProgressError{ItemID: itemID, Op: OpUpdate, Err: gorm.ErrRecordNotFound}
	}

	rec, err := s.fetch(itemID)
	if err != nil {
		return nil, &ProgressError{ItemID: itemID, Op: OpUpdate, Err: err}
	}
	return rec, nil
}

// Complete marks an execution successfully finished: terminal phase,
// all validations passed, completed_at stamped.
func (s *Service) Complete(itemID string, task string) (*models.ProgressRecord, error) {
	if task == "" {
		task = DefaultCompleteTask
	}
	now := time.Now()
	phase := models.PhaseComplete
	waveStatus := models.WaveStatusCompleted
	pass := models.ValidationPass
	return s.Update(itemID, UpdateFields{
		Phase:                &phase,
		WaveStatus:           &waveStatus,
		CurrentTask:          &task,
		ValidationTypescript: &pass,
		ValidationEslint:     &pass,
		ValidationBuild:      &pass,
		ValidationTests:      &pass,
		CompletedAt:          &now,
	})
}

// Cleanup removes the record for an item. Best effort; deleting a
// missing record is a no-op.
func (s *Service) Cleanup(itemID string) {
	if err := s.db.Where(models.ColItemID+" = ?", itemID).Delete(&models.ProgressRecord{}).Error; err != nil {
		log.Printf("[progress] WARNING: cleanup failed for %s: %v", itemID, err)
	}
}

// Fail marks an execution failed. It is the crash-path helper: a record
// is ensured first (the run may have died before one existed), then
// driven to a terminal all-fail state. Every error is logged and
// swallowed so the caller's own error handling never trips over
// progress reporting.
func (s *Service) Fail(itemID string, errorMessage string) {
	if _, err := s.Ensure(itemID, nil); err != nil {
		log.Printf("[progress] WARNING: ensure during fail for %s: %v", itemID, err)
	}

	task := "Execution failed"
	if errorMessage != "" {
		task = "Execution failed: " + errorMessage
	}
	now := time.Now()
	phase := models.PhaseComplete
	waveStatus := models.WaveStatusCompleted
	fail := models.ValidationFail
	if _, err := s.Update(itemID, UpdateFields{
		Phase:                &phase,
		WaveStatus:           &waveStatus,
		CurrentTask:          &task,
		ValidationTypescript: &fail,
		ValidationEslint:     &fail,
		ValidationBuild:      &fail,
		ValidationTests:      &fail,
		CompletedAt:          &now,
	}); err != nil {
		log.Printf("[progress] WARNING: fail update for %s: %v", itemID, err)
	}
}

// Get returns the record for an item, or an error when none exists.
func (s *Service) Get(itemID string) (*models.ProgressRecord, error) {
	rec, err := s.fetch(itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress for %s: %w", itemID, err)
	}
	return rec, nil
}

// AddInspectorFinding appends one finding from the inspection loop and
// advances the fix iteration counter. Best effort.
func (s *Service) AddInspectorFinding(itemID string, finding string) {
	rec, err := s.fetch(itemID)
	if err != nil {
		log.Printf("[progress] WARNING: add finding for %s: %v", itemID, err)
		return
	}
	rec.InspectorFindings = append(rec.InspectorFindings, finding)
	rec.FixIteration++
	if err := s.db.Save(rec).Error; err != nil {
		log.Printf("[progress] WARNING: failed to persist finding for %s: %v", itemID, err)
	}
}

// WriteTask updates only the current task and timestamp. The heartbeat
// manager uses it; the error is returned so the caller decides how to
// handle it.
func (s *Service) WriteTask(itemID string, task string) error {
	tx := s.db.Model(&models.ProgressRecord{}).
		Where(models.ColItemID+" = ?", itemID).
		Updates(map[string]any{
			models.ColCurrentTask: task,
			models.ColUpdatedAt:   time.Now(),
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Service) fetch(itemID string) (*models.ProgressRecord, error) {
	var rec models.ProgressRecord
	if err := s.db.Where(models.ColItemID+" = ?", itemID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// create inserts a fresh record. When another writer wins the insert
// race the unique index trips and the winner's row is returned.
func (s *Service) create(itemID string, opts *EnsureOptions) (*models.ProgressRecord, error) {
	rec := newRecord(itemID, opts)
	if err := s.db.Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			winner, ferr := s.fetch(itemID)
			if ferr != nil {
				return nil, &ProgressError{ItemID: itemID, Op: OpCreate, Err: fmt.Errorf("refetch after duplicate: %w", ferr)}
			}
			return winner, nil
		}
		return nil, &ProgressError{ItemID: itemID, Op: OpCreate, Err: err}
	}
	return rec, nil
}

func newRecord(itemID string, opts *EnsureOptions) *models.ProgressRecord {
	if opts == nil {
		opts = &EnsureOptions{}
	}
	totalWaves := opts.TotalWaves
	if totalWaves <= 0 {
		totalWaves = DefaultTotalWaves
	}
	totalCheckpoints := opts.TotalCheckpoints
	if totalCheckpoints <= 0 {
		totalCheckpoints = DefaultTotalCheckpoints
	}
	initialTask := opts.InitialTask
	if initialTask == "" {
		initialTask = DefaultInitialTask
	}

	return &models.ProgressRecord{
		ItemID:               itemID,
		RunID:                opts.RunID,
		Phase:                models.PhaseSiteReview,
		WaveCurrent:          1,
		WaveTotal:            totalWaves,
		WaveStatus:           models.WaveStatusPending,
		CheckpointTotal:      totalCheckpoints,
		CheckpointsCompleted: datatypes.NewJSONSlice([]models.CheckpointEntry{}),
		CurrentTask:          initialTask,
		FilesTouched:         datatypes.NewJSONSlice([]string{}),
		InspectorFindings:    datatypes.NewJSONSlice([]string{}),
		ValidationTypescript: models.ValidationPending,
		ValidationEslint:     models.ValidationPending,
		ValidationBuild:      models.ValidationPending,
		ValidationTests:      models.ValidationPending,
		MaxIterations:        DefaultMaxIterations,
		StartedAt:            time.Now(),
	}
}

// columns maps the non-nil fields to their column names for a partial
// update. JSON list fields are converted at this boundary.
func (f UpdateFields) columns() map[string]any {
	cols := map[string]any{}
	if f.RunID != nil {
		cols[models.ColRunID] = *f.RunID
	}
	if f.Phase != nil {
		cols[models.ColPhase] = *f.Phase
	}
	if f.WaveCurrent != nil {
		cols[models.ColWaveCurrent] = *f.WaveCurrent
	}
	if f.WaveTotal != nil {
		cols[models.ColWaveTotal] = *f.WaveTotal
	}
	if f.WaveStatus != nil {
		cols[models.ColWaveStatus] = *f.WaveStatus
	}
	if f.CheckpointIndex != nil {
		cols[models.ColCheckpointIndex] = *f.CheckpointIndex
	}
	if f.CheckpointTotal != nil {
		cols[models.ColCheckpointTotal] = *f.CheckpointTotal
	}
	if f.CheckpointsCompleted != nil {
		cols[models.ColCheckpointsCompleted] = datatypes.NewJSONSlice(*f.CheckpointsCompleted)
	}
	if f.CurrentTask != nil {
		cols[models.ColCurrentTask] = *f.CurrentTask
	}
	if f.CheckpointMessage != nil {
		cols[models.ColCheckpointMessage] = *f.CheckpointMessage
	}
	if f.CurrentFile != nil {
		cols[models.ColCurrentFile] = *f.CurrentFile
	}
	if f.FilesTouched != nil {
		cols[models.ColFilesTouched] = datatypes.NewJSONSlice(*f.FilesTouched)
	}
	if f.LinesChanged != nil {
		cols[models.ColLinesChanged] = *f.LinesChanged
	}
	if f.ValidationTypescript != nil {
		cols[models.ColValidationTypescript] = *f.ValidationTypescript
	}
	if f.ValidationEslint != nil {
		cols[models.ColValidationEslint] = *f.ValidationEslint
	}
	if f.ValidationBuild != nil {
		cols[models.ColValidationBuild] = *f.ValidationBuild
	}
	if f.ValidationTests != nil {
		cols[models.ColValidationTests] = *f.ValidationTests
	}
	if f.InspectorFindings != nil {
		cols[models.ColInspectorFindings] = datatypes.NewJSONSlice(*f.InspectorFindings)
	}
	if f.FixIteration != nil {
		cols[models.ColFixIteration] = *f.FixIteration
	}
	if f.MaxIterations != nil {
		cols[models.ColMaxIterations] = *f.MaxIterations
	}
	if f.CompletedAt != nil {
		cols[models.ColCompletedAt] = *f.CompletedAt
	}
	return cols
}
