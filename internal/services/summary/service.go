// Package summary builds the completion report for an executed item by
// joining its progress record with the backlog item. Pure reads.
package summary

import (
	"fmt"
	"math"
	"time"

	"mason-engine/internal/models"
)

// GenericBenefit fills in when the plan document names no expected
// outcomes.
const GenericBenefit = "Improves code quality and maintainability"

// ItemFetcher looks up the work item a summary joins against.
type ItemFetcher interface {
	Get(itemID string) (*models.WorkItem, error)
}

// Service generates execution summaries.
type Service struct {
	items ItemFetcher
}

// NewService creates a new summary service
func NewService(items ItemFetcher) *Service {
	return &Service{items: items}
}

// GenerateExecutionSummary joins the progress record with its work item
// into the report the dashboard shows after a run.
func (s *Service) GenerateExecutionSummary(itemID string, rec *models.ProgressRecord) (*ExecutionSummary, error) {
	if rec == nil {
		return nil, fmt.Errorf("no progress record for item %s", itemID)
	}

	item, err := s.items.Get(itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load work item for summary: %w", err)
	}

	plan := item.PlanDocument.Data()

	accomplishments := plan.KeyFeatures
	if len(accomplishments) == 0 && item.Description != "" {
		accomplishments = []string{item.Description}
	}

	benefits := plan.ExpectedOutcomes
	if len(benefits) == 0 {
		benefits = []string{GenericBenefit}
	}

	return &ExecutionSummary{
		ItemID:          itemID,
		Title:           item.Title,
		Accomplishments: accomplishments,
		Benefits:        benefits,
		FilesChanged:    fileChanges(rec),
		PRUrl:           item.PRUrl,
		ElapsedTime:     formatElapsed(elapsed(rec)),
	}, nil
}

// fileChanges spreads the cumulative line count evenly across the
// touched files. Per-file counts are not tracked, so this is an
// estimate.
func fileChanges(rec *models.ProgressRecord) []FileChange {
	files := rec.FilesTouched
	if len(files) == 0 {
		return []FileChange{}
	}

	perFile := int(math.Round(float64(rec.LinesChanged) / float64(len(files))))
	changes := make([]FileChange, 0, len(files))
	for _, path := range files {
		changes = append(changes, FileChange{Path: path, LinesAdded: perFile})
	}
	return changes
}

// elapsed measures the run from its start to completion, or to now for
// a run still going.
func elapsed(rec *models.ProgressRecord) time.Duration {
	end := time.Now()
	if rec.CompletedAt != nil {
		end = *rec.CompletedAt
	}
	return end.Sub(rec.StartedAt)
}

// formatElapsed renders a duration as m:ss.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
