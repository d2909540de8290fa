// Package janitor sweeps expired execution artifacts on a schedule:
// terminal progress rows past their retention window and stale session
// state files.
package janitor

import (
	"fmt"
	"log"
	"strings"
	"time"

	"mason-engine/internal/models"
	"mason-engine/internal/session"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	// DefaultSchedule runs the sweep hourly.
	DefaultSchedule = "0 * * * *"

	// DefaultRetention keeps terminal records and session files for a day.
	DefaultRetention = 24 * time.Hour
)

// Service owns the retention sweeps.
type Service struct {
	db        *gorm.DB
	cron      *cron.Cron
	sessions  *session.Store
	schedule  string
	retention time.Duration
}

// NewService creates a janitor. Empty schedule and zero retention fall
// back to the defaults.
func NewService(db *gorm.DB, sessions *session.Store, schedule string, retention time.Duration) *Service {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Service{
		db:        db,
		cron:      cron.New(cron.WithSeconds()),
		sessions:  sessions,
		schedule:  schedule,
		retention: retention,
	}
}

// Start schedules the sweep and starts the cron runner.
func (s *Service) Start() error {
	normalized, err := normalizeCron(s.schedule)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule: %w", err)
	}

	if _, err := s.cron.AddFunc(normalized, s.sweep); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	log.Printf("[janitor] sweep scheduled with cron: %s (retention %v)", normalized, s.retention)
	return nil
}

// Stop gracefully stops the cron runner, waiting for a running sweep.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		log.Println("[janitor] stopped")
	}
}

// RunOnce performs one sweep immediately.
func (s *Service) RunOnce() {
	s.sweep()
}

// sweep deletes what has aged out. Errors are logged, never fatal: the
// next run retries.
func (s *Service) sweep() {
	cutoff := time.Now().Add(-s.retention)

	tx := s.db.
		Where(models.ColPhase+" = ? AND "+models.ColCompletedAt+" < ?", models.PhaseComplete, cutoff).
		Delete(&models.ProgressRecord{})
	if tx.Error != nil {
		log.Printf("[janitor] WARNING: progress sweep failed: %v", tx.Error)
	} else if tx.RowsAffected > 0 {
		log.Printf("[janitor] removed %d terminal progress records older than %v", tx.RowsAffected, s.retention)
	}

	if s.sessions != nil {
		if cleaned := s.sessions.CleanupOlderThan(s.retention); cleaned > 0 {
			log.Printf("[janitor] removed %d stale session files", cleaned)
		}
	}
}

// normalizeCron converts 5-field cron to 6-field format by prepending seconds
// 5-field: "minute hour day month dow" (standard cron)
// 6-field: "second minute hour day month dow" (robfig/cron with WithSeconds)
func normalizeCron(cronExpr string) (string, error) {
	cronExpr = strings.TrimSpace(cronExpr)

	fields := strings.Fields(cronExpr)
	if len(fields) == 6 {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(cronExpr); err == nil {
			return cronExpr, nil
		}
	}

	if len(fields) == 5 {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return "", fmt.Errorf("invalid 5-field cron expression: %w", err)
		}
		// Prepend seconds (0 = run at 0 seconds of the minute)
		return "0 " + cronExpr, nil
	}

	return "", fmt.Errorf("invalid cron expression: expected 5 or 6 fields, got %d", len(fields))
}
