package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Backlog item statuses as the dashboard transitions them.
const (
	ItemStatusPending    = "pending"
	ItemStatusApproved   = "approved"
	ItemStatusInProgress = "in_progress"
	ItemStatusCompleted  = "completed"
	ItemStatusFailed     = "failed"
)

// PlanDocument is the dashboard-authored implementation plan attached to
// an approved item. JSON keys are the dashboard's contract.
type PlanDocument struct {
	Summary          string   `json:"summary"`
	KeyFeatures      []string `json:"keyFeatures"`
	ExpectedOutcomes []string `json:"expectedOutcomes"`
}

// WorkItem is one backlog item. The engine only reads these rows; the
// dashboard owns their lifecycle.
type WorkItem struct {
	ID           string                               `gorm:"primaryKey" json:"id"` // UUID
	Title        string                               `gorm:"not null" json:"title"`
	Description  string                               `gorm:"type:text" json:"description"`
	Status       string                               `gorm:"not null;default:pending" json:"status"` // pending, approved, in_progress, completed, failed
	RepositoryID string                               `gorm:"column:repository_id" json:"repository_id"`
	BranchName   string                               `gorm:"column:branch_name" json:"branch_name"`
	PRUrl        string                               `gorm:"column:pr_url" json:"pr_url"`
	PlanDocument datatypes.JSONType[PlanDocument]     `gorm:"column:plan_document" json:"plan_document"`
	CreatedAt    time.Time                            `json:"created_at"`
	UpdatedAt    time.Time                            `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (wi *WorkItem) BeforeCreate(tx *gorm.DB) error {
	if wi.ID == "" {
		wi.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (WorkItem) TableName() string {
	return TableBacklogItems
}
