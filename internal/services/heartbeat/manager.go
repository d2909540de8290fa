// Package heartbeat keeps an item's progress row visibly alive while a
// long-running operation executes, so the dashboard can tell a slow run
// from a dead one.
package heartbeat

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	// DefaultInterval is how often the heartbeat writes when running.
	DefaultInterval = 30 * time.Second

	// StallThreshold is how long without a successful write counts as
	// stalled. Advisory only; nothing is cancelled automatically.
	StallThreshold = 5 * time.Minute
)

// TaskWriter lands a heartbeat message on the progress record.
type TaskWriter interface {
	WriteTask(itemID string, task string) error
}

// Manager heartbeats one item's record: an immediate write on Start,
// then one per interval, each carrying the elapsed time since Start.
// Write failures are logged and handed to OnError; they never interrupt
// the operation being tracked.
type Manager struct {
	writer   TaskWriter
	itemID   string
	interval time.Duration

	// OnError, when set before Start, receives every failed write.
	OnError func(error)

	nowFunc func() time.Time // for testing; defaults to time.Now

	mu         sync.Mutex
	running    bool
	stopCh     chan struct{}
	stoppedCh  chan struct{}
	message    string
	startTime  time.Time
	lastUpdate time.Time
}

// NewManager creates a heartbeat manager for one item.
func NewManager(writer TaskWriter, itemID string) *Manager {
	return &Manager{
		writer:   writer,
		itemID:   itemID,
		interval: DefaultInterval,
		nowFunc:  time.Now,
	}
}

// SetInterval overrides the write interval. Call before Start.
func (m *Manager) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

// Start begins heartbeating with the given base message. A running
// manager is restarted cleanly with a fresh clock.
func (m *Manager) Start(message string) {
	m.Stop()

	m.mu.Lock()
	now := m.nowFunc()
	m.message = message
	m.startTime = now
	m.lastUpdate = now
	m.running = true
	m.stopCh = make(chan struct{})
	m.stoppedCh = make(chan struct{})
	stopCh, stoppedCh := m.stopCh, m.stoppedCh
	m.mu.Unlock()

	m.writeOnce()

	go m.loop(stopCh, stoppedCh)
}

// UpdateMessage swaps the base message and writes immediately. The
// elapsed clock keeps running from Start. No-op when idle.
func (m *Manager) UpdateMessage(message string) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.message = message
	m.mu.Unlock()

	m.writeOnce()
}

// Stop halts heartbeating. Idempotent; once it returns no further
// writes can happen.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	stoppedCh := m.stoppedCh
	m.mu.Unlock()

	<-stoppedCh
}

// IsStalled reports whether the last successful write is older than the
// stall threshold. Always false when idle.
func (m *Manager) IsStalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	return m.nowFunc().Sub(m.lastUpdate) > StallThreshold
}

func (m *Manager) loop(stopCh, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.writeOnce()
		}
	}
}

// writeOnce emits one heartbeat. The elapsed suffix lets a reader see
// liveness even when the message itself has not changed.
func (m *Manager) writeOnce() {
	m.mu.Lock()
	message := m.message
	elapsed := m.nowFunc().Sub(m.startTime)
	onError := m.OnError
	m.mu.Unlock()

	task := fmt.Sprintf("%s (%s)", message, formatElapsed(elapsed))
	if err := m.writer.WriteTask(m.itemID, task); err != nil {
		log.Printf("[heartbeat] WARNING: write failed for %s: %v", m.itemID, err)
		if onError != nil {
			onError(err)
		}
		return
	}

	m.mu.Lock()
	m.lastUpdate = m.nowFunc()
	m.mu.Unlock()
}

// WithHeartbeat runs op with a heartbeat on the item's record. The
// manager always stops when op returns, and op's error comes back
// unchanged.
func WithHeartbeat(writer TaskWriter, itemID string, message string, op func() error) error {
	m := NewManager(writer, itemID)
	m.Start(message)
	defer m.Stop()
	return op()
}

// formatElapsed renders a duration as m:ss.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
