package progress

import (
	"testing"

	"mason-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateTotalCheckpoints(t *testing.T) {
	t.Run("Should count setup, files, validation, finalization and complete", func(t *testing.T) {
		assert.Equal(t, 15, CalculateTotalCheckpoints(3))
	})

	t.Run("Should match the default estimate with no files", func(t *testing.T) {
		assert.Equal(t, DefaultTotalCheckpoints, CalculateTotalCheckpoints(0))
	})
}

func TestCreateFileCheckpoint(t *testing.T) {
	t.Run("Should build ids from the file band base", func(t *testing.T) {
		cp := CreateFileCheckpoint(0, "src/api/client.ts")
		assert.Equal(t, 6, cp.ID)
		assert.Equal(t, "Writing src/api/client.ts", cp.Name)

		cp = CreateFileCheckpoint(2, "src/components/Card.tsx")
		assert.Equal(t, 8, cp.ID)
	})
}

func TestUpdateCheckpoint(t *testing.T) {
	t.Run("Should append checkpoints in call order and mirror the task", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		svc.UpdateCheckpoint("item-1", CheckpointInitWorkspace, nil)
		svc.UpdateCheckpoint("item-1", CheckpointLoadPlan, nil)

		rec, err := svc.Get("item-1")
		require.NoError(t, err)

		require.Len(t, rec.CheckpointsCompleted, 2)
		assert.Equal(t, 1, rec.CheckpointsCompleted[0].ID)
		assert.Equal(t, 2, rec.CheckpointsCompleted[1].ID)
		assert.Equal(t, 2, rec.CheckpointIndex)
		assert.Equal(t, CheckpointLoadPlan.Name, rec.CheckpointMessage)
		assert.Equal(t, CheckpointLoadPlan.Name, rec.CurrentTask)
		assert.False(t, rec.CheckpointsCompleted[0].CompletedAt.IsZero())
	})

	t.Run("Should never duplicate a checkpoint id", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		svc.UpdateCheckpoint("item-1", CheckpointInitWorkspace, nil)
		svc.UpdateCheckpoint("item-1", CheckpointInitWorkspace, nil)

		rec, err := svc.Get("item-1")
		require.NoError(t, err)
		assert.Len(t, rec.CheckpointsCompleted, 1)
	})

	t.Run("Should not move the index backwards on a replayed checkpoint", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		svc.UpdateCheckpoint("item-1", CheckpointValidateTS, nil)
		svc.UpdateCheckpoint("item-1", CreateFileCheckpoint(0, "late.ts"), nil)

		rec, err := svc.Get("item-1")
		require.NoError(t, err)
		assert.Equal(t, CheckpointValidateTS.ID, rec.CheckpointIndex)
		assert.Len(t, rec.CheckpointsCompleted, 2, "the trail still records the replay")
	})

	t.Run("Should record file details from options", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		svc.UpdateCheckpoint("item-1", CreateFileCheckpoint(0, "src/app.ts"), &CheckpointOptions{
			CurrentFile:  "src/app.ts",
			LinesChanged: 40,
		})
		svc.UpdateCheckpoint("item-1", CreateFileCheckpoint(1, "src/db.ts"), &CheckpointOptions{
			CurrentFile:  "src/db.ts",
			LinesChanged: 95,
		})
		// Touching the same file again must not duplicate it
		svc.UpdateCheckpoint("item-1", CheckpointValidateTS, &CheckpointOptions{
			CurrentFile: "src/db.ts",
		})

		rec, err := svc.Get("item-1")
		require.NoError(t, err)
		assert.Equal(t, "src/db.ts", rec.CurrentFile)
		assert.Equal(t, []string{"src/app.ts", "src/db.ts"}, []string(rec.FilesTouched))
		assert.Equal(t, 95, rec.LinesChanged)
	})

	t.Run("Should advance phase and wave but never regress the phase", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)

		svc.UpdateCheckpoint("item-1", CheckpointReviewRepo, &CheckpointOptions{
			Phase: models.PhaseBuilding,
			Wave:  2,
		})

		rec, err := svc.Get("item-1")
		require.NoError(t, err)
		assert.Equal(t, models.PhaseBuilding, rec.Phase)
		assert.Equal(t, 2, rec.WaveCurrent)
		assert.Equal(t, models.WaveStatusInProgress, rec.WaveStatus)

		svc.UpdateCheckpoint("item-1", CheckpointPlanChanges, &CheckpointOptions{
			Phase: models.PhaseSiteReview,
		})

		rec, err = svc.Get("item-1")
		require.NoError(t, err)
		assert.Equal(t, models.PhaseBuilding, rec.Phase, "phase only moves forward")
	})

	t.Run("Should swallow a missing record", func(t *testing.T) {
		db := newTestDB(t)
		svc := NewService(db)

		assert.NotPanics(t, func() {
			svc.UpdateCheckpoint("missing", CheckpointInitWorkspace, nil)
		})

		var count int64
		db.Model(&models.ProgressRecord{}).Count(&count)
		assert.EqualValues(t, 0, count, "no record should appear out of thin air")
	})
}

func TestSetTotalCheckpoints(t *testing.T) {
	t.Run("Should revise only the total", func(t *testing.T) {
		svc := NewService(newTestDB(t))

		_, err := svc.Ensure("item-1", nil)
		require.NoError(t, err)
		svc.UpdateCheckpoint("item-1", CheckpointInitWorkspace, nil)

		svc.SetTotalCheckpoints("item-1", CalculateTotalCheckpoints(3))

		rec, err := svc.Get("item-1")
		require.NoError(t, err)
		assert.Equal(t, 15, rec.CheckpointTotal)
		assert.Equal(t, 1, rec.CheckpointIndex, "index must not change")
		assert.Len(t, rec.CheckpointsCompleted, 1, "trail must not change")
	})

	t.Run("Should swallow store errors", func(t *testing.T) {
		db := newTestDB(t)
		svc := NewService(db)

		sqlDB, err := db.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())

		assert.NotPanics(t, func() {
			svc.SetTotalCheckpoints("item-1", 15)
		})
	})
}
