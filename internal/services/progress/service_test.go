package progress

import (
	"errors"
	"testing"
	"time"

	"mason-engine/internal/database"
	"mason-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// One connection keeps every query on the same in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func ptr[T any](v T) *T {
	return &v
}

func TestEnsure(t *testing.T) {
	t.Run("Should create a record with defaults", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		rec, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		assert.NotEmpty(t, rec.ID, "record should get a UUID")
		assert.Equal(t, "item-1", rec.ItemID)
		assert.Equal(t, models.PhaseSiteReview, rec.Phase)
		assert.Equal(t, 1, rec.WaveCurrent)
		assert.Equal(t, DefaultTotalWaves, rec.WaveTotal)
		assert.Equal(t, models.WaveStatusPending, rec.WaveStatus)
		assert.Equal(t, 0, rec.CheckpointIndex)
		assert.Equal(t, DefaultTotalCheckpoints, rec.CheckpointTotal)
		assert.Empty(t, rec.CheckpointsCompleted)
		assert.Equal(t, DefaultInitialTask, rec.CurrentTask)
		assert.Equal(t, models.ValidationPending, rec.ValidationTypescript)
		assert.Equal(t, models.ValidationPending, rec.ValidationTests)
		assert.Equal(t, DefaultMaxIterations, rec.MaxIterations)
		assert.False(t, rec.StartedAt.IsZero())
		assert.Nil(t, rec.CompletedAt)
	})

	t.Run("Should apply ensure options", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		rec, err := svc.Ensure("item-1", &EnsureOptions{
			RunID:            "run-42",
			TotalWaves:       6,
			TotalCheckpoints: 20,
			InitialTask:      "Reviewing the site",
		})
		require.NoError(t, err)

		assert.Equal(t, "run-42", rec.RunID)
		assert.Equal(t, 6, rec.WaveTotal)
		assert.Equal(t, 20, rec.CheckpointTotal)
		assert.Equal(t, "Reviewing the site", rec.CurrentTask)
	})

	t.Run("Should be idempotent", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		first, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		second, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID, "same record should come back")
		assert.Equal(t, first.StartedAt.Unix(), second.StartedAt.Unix())
	})

	t.Run("Should not reset a mid-run record", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)
		svc.UpdateCheckpoint("item-1", CheckpointInitWorkspace, nil)
		svc.UpdateCheckpoint("item-1", CheckpointLoadPlan, nil)

		rec, err := svc.Ensure("item-1", &EnsureOptions{InitialTask: "should be ignored"})
		require.NoError(t, err)

		assert.Equal(t, 2, rec.CheckpointIndex, "progress must survive re-ensure")
		assert.Len(t, rec.CheckpointsCompleted, 2)
		assert.NotEqual(t, "should be ignored", rec.CurrentTask)
	})

	t.Run("Should supersede a completed record", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		old, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)
		_, err = svc.Complete("item-1", "")
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		fresh, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		assert.NotEqual(t, old.ID, fresh.ID, "a new record should replace the terminal one")
		assert.Equal(t, models.PhaseSiteReview, fresh.Phase)
		assert.Equal(t, 0, fresh.CheckpointIndex)
		assert.Empty(t, fresh.CheckpointsCompleted)
		assert.Nil(t, fresh.CompletedAt)
		assert.True(t, fresh.StartedAt.After(old.StartedAt), "started_at should be refreshed")
	})

	t.Run("Should return the winner when the insert races an existing row", func(t *testing.T) {
		db := newTestDB(t)
		svc := NewService(db)

		winner, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		// Drive the create path directly against the existing row: the
		// unique index trips and the winner's record comes back.
		rec, err := svc.create("item-1", nil)
		require.NoError(t, err)
		assert.Equal(t, winner.ID, rec.ID)

		var count int64
		db.Model(&models.ProgressRecord{}).Count(&count)
		assert.EqualValues(t, 1, count)
	})

	t.Run("Should reject an empty item id", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("  ", nil)
		require.Error(t, err)

		var perr *ProgressError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, OpCreate, perr.Op)
	})
}

func TestUpdate(t *testing.T) {
	t.Run("Should apply a partial update and leave the rest alone", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		before, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		rec, err := svc.Update("item-1", UpdateFields{
			CurrentTask: ptr("Quick task swap"),
		})
		require.NoError(t, err)

		assert.Equal(t, "Quick task swap", rec.CurrentTask)
		assert.Equal(t, before.Phase, rec.Phase)
		assert.Equal(t, before.CheckpointTotal, rec.CheckpointTotal)
		assert.Equal(t, before.StartedAt.Unix(), rec.StartedAt.Unix())
	})

	t.Run("Should stamp updated_at on every write", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		before, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		rec, err := svc.Update("item-1", UpdateFields{FixIteration: ptr(1)})
		require.NoError(t, err)

		assert.True(t, rec.UpdatedAt.After(before.UpdatedAt))
	})

	t.Run("Should update wave and validation fields", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		rec, err := svc.Update("item-1", UpdateFields{
			Phase:                ptr(models.PhaseInspection),
			WaveCurrent:          ptr(3),
			WaveStatus:           ptr(models.WaveStatusInProgress),
			ValidationTypescript: ptr(models.ValidationRunning),
			InspectorFindings:    ptr([]string{"unused import in api.ts"}),
			FixIteration:         ptr(1),
		})
		require.NoError(t, err)

		assert.Equal(t, models.PhaseInspection, rec.Phase)
		assert.Equal(t, 3, rec.WaveCurrent)
		assert.Equal(t, models.ValidationRunning, rec.ValidationTypescript)
		assert.Equal(t, []string{"unused import in api.ts"}, []string(rec.InspectorFindings))
		assert.Equal(t, 1, rec.FixIteration)
	})

	t.Run("Should fail with a typed error when the record is missing", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Update("nope", UpdateFields{CurrentTask: ptr("x")})
		require.Error(t, err)

		var perr *ProgressError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, OpUpdate, perr.Op)
		assert.Equal(t, "nope", perr.ItemID)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("Should reject unknown enum values", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		_, err = svc.Update("item-1", UpdateFields{Phase: ptr("demolition")})
		require.Error(t, err)

		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestComplete(t *testing.T) {
	t.Run("Should mark the record terminal with all validations passed", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		rec, err := svc.Complete("item-1", "")
		require.NoError(t, err)

		assert.Equal(t, models.PhaseComplete, rec.Phase)
		assert.Equal(t, models.WaveStatusCompleted, rec.WaveStatus)
		assert.Equal(t, DefaultCompleteTask, rec.CurrentTask)
		assert.Equal(t, models.ValidationPass, rec.ValidationTypescript)
		assert.Equal(t, models.ValidationPass, rec.ValidationEslint)
		assert.Equal(t, models.ValidationPass, rec.ValidationBuild)
		assert.Equal(t, models.ValidationPass, rec.ValidationTests)
		require.NotNil(t, rec.CompletedAt)
		assert.False(t, rec.CompletedAt.Before(rec.StartedAt))
	})

	t.Run("Should keep a caller-supplied task message", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		rec, err := svc.Complete("item-1", "Opened PR #12")
		require.NoError(t, err)
		assert.Equal(t, "Opened PR #12", rec.CurrentTask)
	})

	t.Run("Should fail when no record exists", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Complete("missing", "")
		var perr *ProgressError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, OpUpdate, perr.Op)
	})
}

func TestCleanup(t *testing.T) {
	t.Run("Should delete the record", func(t *testing.T) {
		db := newTestDB(t)
		svc := NewService(db)

		_, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		svc.Cleanup("item-1")

		var count int64
		db.Model(&models.ProgressRecord{}).Count(&count)
		assert.EqualValues(t, 0, count)
	})

	t.Run("Should tolerate a missing record", func(t *testing.T) {
		svc := NewService(newTestDB(t))
		assert.NotPanics(t, func() {
			svc.Cleanup("never-existed")
		})
	})
}

func TestFail(t *testing.T) {
	t.Run("Should create the record when execution died before one existed", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		svc.Fail("item-1", "compile error in wave 2")

		rec, err := svc.Get("item-1")
		require.NoError(t, err)
		assert.Equal(t, models.PhaseComplete, rec.Phase)
		assert.Equal(t, models.ValidationFail, rec.ValidationTypescript)
		assert.Equal(t, models.ValidationFail, rec.ValidationEslint)
		assert.Equal(t, models.ValidationFail, rec.ValidationBuild)
		assert.Equal(t, models.ValidationFail, rec.ValidationTests)
		assert.Contains(t, rec.CurrentTask, "compile error in wave 2")
		assert.NotNil(t, rec.CompletedAt)
	})

	t.Run("Should mark an in-flight record failed", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)
		svc.UpdateCheckpoint("item-1", CheckpointInitWorkspace, nil)

		svc.Fail("item-1", "")

		rec, err := svc.Get("item-1")
		require.NoError(t, err)
		assert.Equal(t, models.PhaseComplete, rec.Phase)
		assert.Equal(t, "Execution failed", rec.CurrentTask)
		assert.Len(t, rec.CheckpointsCompleted, 1, "the trail up to the crash should survive")
	})

	t.Run("Should never panic or raise even when the store is broken", func(t *testing.T) {
		db := newTestDB(t)
		svc := NewService(db)

		sqlDB, err := db.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())

		assert.NotPanics(t, func() {
			svc.Fail("item-1", "store is gone too")
		})
	})
}

func TestWriteTask(t *testing.T) {
	t.Run("Should write only the task and timestamp", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		before, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, svc.WriteTask("item-1", "Running tests (1:30)"))

		rec, err := svc.Get("item-1")
		require.NoError(t, err)
		assert.Equal(t, "Running tests (1:30)", rec.CurrentTask)
		assert.True(t, rec.UpdatedAt.After(before.UpdatedAt))
		assert.Equal(t, before.CheckpointIndex, rec.CheckpointIndex)
	})

	t.Run("Should report a missing record", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		err := svc.WriteTask("missing", "anything")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestAddInspectorFinding(t *testing.T) {
	t.Run("Should append findings in order and advance the fix iteration", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		svc.AddInspectorFinding("item-1", "missing null check in parser")
		svc.AddInspectorFinding("item-1", "dead branch in reducer")

		rec, err := svc.Get("item-1")
		require.NoError(t, err)
		require.Len(t, rec.InspectorFindings, 2)
		assert.Equal(t, "missing null check in parser", rec.InspectorFindings[0])
		assert.Equal(t, "dead branch in reducer", rec.InspectorFindings[1])
		assert.Equal(t, 2, rec.FixIteration)
	})

	t.Run("Should swallow a missing record", func(t *testing.T) {
		svc := NewService(newTestDB(t))
		assert.NotPanics(t, func() {
			svc.AddInspectorFinding("missing", "anything")
		})
	})
}

func TestExecutionLifecycle(t *testing.T) {
	t.Run("Should track a run end to end", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("item-1", &EnsureOptions{RunID: "run-7"})
		require.NoError(t, err)

		svc.UpdateCheckpoint("item-1", CheckpointInitWorkspace, nil)
		svc.UpdateCheckpoint("item-1", CheckpointLoadPlan, nil)

		rec, err := svc.Complete("item-1", "")
		require.NoError(t, err)

		assert.Equal(t, models.PhaseComplete, rec.Phase)
		require.Len(t, rec.CheckpointsCompleted, 2)
		assert.Equal(t, CheckpointInitWorkspace.ID, rec.CheckpointsCompleted[0].ID)
		assert.Equal(t, CheckpointLoadPlan.ID, rec.CheckpointsCompleted[1].ID)
		assert.Equal(t, models.ValidationPass, rec.ValidationTypescript)
		assert.Equal(t, models.ValidationPass, rec.ValidationTests)
		require.NotNil(t, rec.CompletedAt)
		assert.False(t, rec.CompletedAt.Before(rec.StartedAt))

		// A later run supersedes the terminal record
		fresh, err := svc.Ensure("item-1", &EnsureOptions{RunID: "run-8"})
		require.NoError(t, err)
		assert.Equal(t, "run-8", fresh.RunID)
		assert.Empty(t, fresh.CheckpointsCompleted)
	})
}
