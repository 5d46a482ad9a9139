package remote

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrTooManySessions means the server is at its session cap.
	ErrTooManySessions = errors.New("remote: session limit reached")

	// ErrSessionNotFound means a resume target is unknown or expired.
	ErrSessionNotFound = errors.New("remote: session not found")
)

// SessionManager tracks live and detached sessions, enforces the session
// cap, persists snapshots of detached sessions, and reaps the ones whose
// resume window ran out.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	cfg     *Config
	store   SnapshotStore
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	done     chan struct{}
	stopOnce sync.Once
}

func newSessionManager(cfg *Config, store SnapshotStore, logger *slog.Logger, metrics *Metrics, tracer trace.Tracer) *SessionManager {
	m := &SessionManager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		store:    store,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		done:     make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// Create registers a new session, or fails when the cap is reached.
func (m *SessionManager) Create() (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	s := newSession(id, m.cfg, m.logger, m.metrics, m.tracer)
	s.onClose = m.remove
	m.sessions[id] = s
	m.mu.Unlock()

	m.metrics.SessionsTotal.Inc()
	m.metrics.SessionsActive.Inc()
	m.logger.Info("session created", "session", id)
	return s, nil
}

// Resume returns the detached session with the given ID. Only sessions
// still inside their resume window qualify.
func (m *SessionManager) Resume(id string) (*Session, error) {
	m.mu.RLock()
	s := m.sessions[id]
	m.mu.RUnlock()
	if s == nil {
		return nil, ErrSessionNotFound
	}
	if at, ok := s.detached(); !ok || time.Since(at) > m.cfg.ResumeWindow {
		return nil, ErrSessionNotFound
	}
	m.metrics.SessionsResumed.Inc()
	m.logger.Info("session resumed", "session", id)
	return s, nil
}

// Count returns the number of tracked sessions, attached or detached.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionManager) remove(s *Session) {
	m.mu.Lock()
	_, present := m.sessions[s.ID]
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	if !present {
		return
	}
	m.metrics.SessionsActive.Dec()
	if err := m.store.Delete(context.Background(), s.ID); err != nil {
		m.logger.Warn("snapshot delete failed", "session", s.ID, "error", err)
	}
	m.logger.Info("session closed", "session", s.ID)
}

// reapLoop persists fresh snapshots of detached sessions and closes those
// whose resume window expired.
func (m *SessionManager) reapLoop() {
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reap()
		case <-m.done:
			return
		}
	}
}

func (m *SessionManager) reap() {
	m.mu.RLock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.RUnlock()

	now := time.Now()
	for _, s := range candidates {
		at, ok := s.detached()
		if !ok {
			continue
		}
		if now.Sub(at) > m.cfg.ResumeWindow {
			s.Close()
			continue
		}
		data, err := s.snapshot()
		if err != nil {
			m.logger.Warn("snapshot encode failed", "session", s.ID, "error", err)
			continue
		}
		expires := at.Add(m.cfg.ResumeWindow)
		if err := m.store.Save(context.Background(), s.ID, data, expires); err != nil {
			m.logger.Warn("snapshot save failed", "session", s.ID, "error", err)
		}
	}
}

// Shutdown closes every session and stops the reaper.
func (m *SessionManager) Shutdown() {
	m.stopOnce.Do(func() { close(m.done) })
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()
	for _, s := range all {
		s.Close()
	}
}

func newSessionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
