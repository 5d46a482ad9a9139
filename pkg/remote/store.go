package remote

import (
	"context"
	"sync"
	"time"
)

// SnapshotStore persists detached-session snapshots so a client can resume
// after its connection (or this process) goes away. Implementations must be
// safe for concurrent use.
type SnapshotStore interface {
	// Save overwrites the snapshot for a session. expiresAt is when the
	// resume window closes and the snapshot may be discarded.
	Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error

	// Load returns the snapshot, or (nil, nil) when the session is unknown
	// or its window has expired.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Delete drops the snapshot. Unknown sessions are not an error.
	Delete(ctx context.Context, sessionID string) error

	// Close releases backend resources.
	Close() error
}

// MemoryStore is the default in-process SnapshotStore. Snapshots vanish
// with the process, so it only covers reconnects, not restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.mu.Lock()
	s.entries[sessionID] = memoryEntry{data: cp, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, nil
	}
	cp := make([]byte, len(e.data))
	copy(cp, e.data)
	return cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.entries = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}

// Sweep drops expired snapshots and reports how many were removed.
func (s *MemoryStore) Sweep() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
