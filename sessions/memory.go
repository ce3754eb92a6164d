package sessions

import (
	"context"
	"sync"
	"time"
)

// in-memory session store. The default backend: session state is volatile
// and does not survive a process restart, matching the ephemeral nature of
// pairing codes.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// participant index: connection ID -> session code
	participants map[string]string
}

// creates a new in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[string]*Session),
		participants: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, code, creatorID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.participants[creatorID]; exists {
		return nil, ErrAlreadyInSession
	}

	// existence check and insert under one lock: two concurrent Create calls
	// for the same code cannot both succeed
	if _, exists := m.sessions[code]; exists {
		return nil, ErrAlreadyExists
	}

	session := &Session{
		Code:      code,
		CreatorID: creatorID,
		CreatedAt: time.Now(),
	}

	m.sessions[code] = session
	m.participants[creatorID] = code

	return session.clone(), nil
}

func (m *MemoryStore) Get(_ context.Context, code string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[code]
	if !exists {
		return nil, ErrNotFound
	}

	return session.clone(), nil
}

func (m *MemoryStore) Join(_ context.Context, code, joinerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[code]
	if !exists {
		return nil, ErrNotFound
	}

	if session.JoinerID != "" {
		return nil, ErrSessionFull
	}

	if joinerID == session.CreatorID {
		return nil, ErrSelfJoin
	}

	if _, exists := m.participants[joinerID]; exists {
		return nil, ErrAlreadyInSession
	}

	session.JoinerID = joinerID
	m.participants[joinerID] = code

	return session.clone(), nil
}

func (m *MemoryStore) UpdateLocation(_ context.Context, code, connID string, lat, lng float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[code]
	if !exists {
		return ErrNotFound
	}

	switch connID {
	case session.CreatorID:
		session.CreatorLocation = &Location{Lat: lat, Lng: lng}
	case session.JoinerID:
		session.JoinerLocation = &Location{Lat: lat, Lng: lng}
	default:
		return ErrNotAParticipant
	}

	return nil
}

func (m *MemoryStore) Remove(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.remove(code)

	return nil
}

func (m *MemoryStore) RemoveIfParticipant(_ context.Context, code, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[code]
	if !exists {
		return ErrNotFound
	}

	if !session.HasParticipant(connID) {
		return ErrNotAParticipant
	}

	m.remove(code)

	return nil
}

// deletes a session and its participant index entries (must be called with lock held)
func (m *MemoryStore) remove(code string) {
	session, exists := m.sessions[code]
	if !exists {
		return
	}

	delete(m.sessions, code)
	delete(m.participants, session.CreatorID)

	if session.JoinerID != "" {
		delete(m.participants, session.JoinerID)
	}
}

func (m *MemoryStore) FindByParticipant(_ context.Context, connID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	code, exists := m.participants[connID]
	if !exists {
		return []string{}, nil
	}

	return []string{code}, nil
}

func (m *MemoryStore) SweepOlderThan(_ context.Context, maxAge time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := make([]string, 0)

	for code, session := range m.sessions {
		if session.CreatedAt.Before(cutoff) {
			removed = append(removed, code)
		}
	}

	for _, code := range removed {
		m.remove(code)
	}

	return removed, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions), nil
}

func (m *MemoryStore) Close() error {
	return nil
}
