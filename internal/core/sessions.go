package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jo-hoe/snapframe/internal/camera"
	"github.com/jo-hoe/snapframe/internal/session"
)

// ErrSessionNotFound is returned for ids that were never created or already evicted.
var ErrSessionNotFound = errors.New("session not found")

// KioskSession pairs a session machine with the browser-fed camera it drives.
type KioskSession struct {
	Machine *session.Machine
	Camera  *camera.FeedCamera
}

// SessionRegistry tracks the live kiosk sessions of this process.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*KioskSession
	deps     session.Dependencies
	config   session.Config
	idle     time.Duration
}

// NewSessionRegistry creates sessions sharing deps; the camera of each is replaced
// by its own feed. Sessions untouched for longer than idle are evicted.
func NewSessionRegistry(deps session.Dependencies, config session.Config, idle time.Duration) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*KioskSession),
		deps:     deps,
		config:   config,
		idle:     idle,
	}
}

func (r *SessionRegistry) Create() (*KioskSession, error) {
	r.Sweep(time.Now())

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	feed := camera.NewFeedCamera()
	deps := r.deps
	deps.Camera = feed

	machine, err := session.New(id.String(), deps, r.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	ks := &KioskSession{Machine: machine, Camera: feed}

	r.mu.Lock()
	r.sessions[machine.ID()] = ks
	r.mu.Unlock()

	slog.Info("Core: session created", "session_id", machine.ID())
	return ks, nil
}

func (r *SessionRegistry) Get(id string) (*KioskSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ks, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ks, nil
}

// Remove stops a session and forgets it.
func (r *SessionRegistry) Remove(id string) error {
	r.mu.Lock()
	ks, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	ks.Machine.Stop()
	slog.Info("Core: session removed", "session_id", id)
	return nil
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts sessions whose last state change is older than the idle timeout.
func (r *SessionRegistry) Sweep(now time.Time) int {
	if r.idle <= 0 {
		return 0
	}
	var stale []*KioskSession

	r.mu.Lock()
	for id, ks := range r.sessions {
		if now.Sub(ks.Machine.Snapshot().UpdatedAt) > r.idle {
			stale = append(stale, ks)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, ks := range stale {
		ks.Machine.Stop()
		slog.Info("Core: idle session evicted", "session_id", ks.Machine.ID())
	}
	return len(stale)
}

// Close stops every session.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*KioskSession)
	r.mu.Unlock()

	for _, ks := range all {
		ks.Machine.Stop()
	}
}
