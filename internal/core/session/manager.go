package session

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrSessionRunning is returned by Start when a session is active.
	ErrSessionRunning = errors.New("session already running")
	// ErrSessionNotRunning is returned by Stop when no session is active.
	ErrSessionNotRunning = errors.New("no session running")
)

// RunnerFactory builds a fresh runner for each session start. Opening the
// camera happens here, so a failed device shows up as a Start error instead
// of a dead background loop.
type RunnerFactory func() (*Runner, error)

// Manager exposes start/stop/reset control over the single active tracking
// session. Only one session runs at a time.
type Manager struct {
	orchestrator *Orchestrator
	newRunner    RunnerFactory

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewManager creates a session manager around the shared orchestrator.
func NewManager(orchestrator *Orchestrator, newRunner RunnerFactory) *Manager {
	return &Manager{
		orchestrator: orchestrator,
		newRunner:    newRunner,
	}
}

// Start clears the recognition cache and launches a new session loop. It
// fails with ErrSessionRunning if one is active, or with the factory's
// error (typically ErrCameraUnavailable) if the capture device cannot be
// opened.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrSessionRunning
	}

	runner, err := m.newRunner()
	if err != nil {
		return err
	}

	// A new tracking session starts with a clean slate, mirroring an
	// operator restarting attendance for the day.
	m.orchestrator.Reset()

	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true

	go func(stop chan struct{}, done chan struct{}) {
		defer close(done)
		if err := runner.Run(stop); err != nil {
			log.WithError(err).Error("Session ended with error")
		}
		m.mu.Lock()
		// Only clear the flag if this loop is still the active session.
		if m.done == done {
			m.running = false
		}
		m.mu.Unlock()
	}(m.stop, m.done)

	return nil
}

// Stop signals the session loop to end after its current frame and waits
// for it to finish.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrSessionNotRunning
	}
	// Clear the flag before releasing the lock so that of two concurrent
	// Stop calls only the first ever closes the channel.
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
	return nil
}

// Reset clears the orchestrator's "recognized today" cache without touching
// the running session, the debouncer or the ledger.
func (m *Manager) Reset() {
	m.orchestrator.Reset()
}

// Running reports whether a session loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
