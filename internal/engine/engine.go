// Package engine wires the execution services together for the agent
// process: one database handle, the progress and summary services, the
// work item store, session state, and the retention janitor.
package engine

import (
	"context"
	"errors"
	"log"

	"mason-engine/internal/api"
	"mason-engine/internal/config"
	"mason-engine/internal/database"
	"mason-engine/internal/services/heartbeat"
	"mason-engine/internal/services/janitor"
	"mason-engine/internal/services/progress"
	"mason-engine/internal/services/summary"
	"mason-engine/internal/session"
	"mason-engine/internal/workitems"

	"gorm.io/gorm"
)

// Engine struct - main agent state
type Engine struct {
	ctx             context.Context
	cfg             *config.Config
	db              *gorm.DB
	client          *api.Client
	progressService *progress.Service
	summaryService  *summary.Service
	itemStore       *workitems.Store
	sessionStore    *session.Store
	janitorService  *janitor.Service
}

// New creates a new Engine around the loaded configuration
func New(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// Startup initializes the database and every service. The context is
// saved for operations started later.
func (e *Engine) Startup(ctx context.Context) error {
	e.ctx = ctx
	log.Println("Engine starting up...")

	// Initialize database
	db, err := database.Init(e.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	e.db = db
	log.Println("Database initialized successfully")

	// Initialize services
	e.progressService = progress.NewService(db)
	log.Println("Progress service initialized")

	e.itemStore = workitems.NewStore(db)
	e.summaryService = summary.NewService(e.itemStore)
	log.Println("Summary service initialized")

	sessions, err := session.NewStore(e.cfg.StateDir)
	if err != nil {
		return err
	}
	e.sessionStore = sessions
	log.Println("Session store initialized")

	// Dashboard client is optional: local verbs work without a key
	if e.cfg.APIKey != "" {
		client, err := api.NewClient(e.cfg.GetDashboardURL(), e.cfg.APIKey)
		if err != nil {
			return err
		}
		e.client = client
		log.Println("Dashboard client initialized")
	}

	e.janitorService = janitor.NewService(db, sessions, e.cfg.SweepSchedule, e.cfg.Retention())
	if err := e.janitorService.Start(); err != nil {
		log.Printf("WARNING: Failed to start janitor: %v", err)
	} else {
		log.Println("Janitor service initialized and started")
	}

	log.Println("Startup complete")
	return nil
}

// Shutdown stops background work and closes the database
func (e *Engine) Shutdown() {
	log.Println("Engine shutting down...")

	if e.janitorService != nil {
		e.janitorService.Stop()
	}

	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}

	log.Println("Shutdown complete")
}

// Progress returns the execution progress service
func (e *Engine) Progress() *progress.Service {
	return e.progressService
}

// Summary returns the completion summary service
func (e *Engine) Summary() *summary.Service {
	return e.summaryService
}

// Items returns the work item store
func (e *Engine) Items() *workitems.Store {
	return e.itemStore
}

// Sessions returns the session state store
func (e *Engine) Sessions() *session.Store {
	return e.sessionStore
}

// Janitor returns the retention sweeper
func (e *Engine) Janitor() *janitor.Service {
	return e.janitorService
}

// API returns the dashboard client, or an error when no API key is
// configured.
func (e *Engine) API() (*api.Client, error) {
	if e.client == nil {
		return nil, errors.New("missing apiKey in mason.config.json")
	}
	return e.client, nil
}

// Heartbeat creates a liveness writer for one item, tuned to the
// configured interval.
func (e *Engine) Heartbeat(itemID string) *heartbeat.Manager {
	m := heartbeat.NewManager(e.progressService, itemID)
	m.SetInterval(e.cfg.HeartbeatInterval())
	return m
}
