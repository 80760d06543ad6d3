package store

import (
	"sync"
	"time"
)

type memorySessionStore struct {
	sessions map[string]*Session
	mu       sync.Mutex

	nowFunc func() time.Time
}

func NewMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{
		sessions: make(map[string]*Session),
		nowFunc:  time.Now,
	}
}

func (m *memorySessionStore) Put(s *Session) {
	now := m.nowFunc().UnixMilli()
	s.CreatedAt = now
	s.ExpiresAt = now + SessionTTL.Milliseconds()

	m.mu.Lock()
	m.sessions[s.SessionID] = s
	m.mu.Unlock()
}

func (m *memorySessionStore) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.expired(s) {
		delete(m.sessions, id)
		return nil, false
	}
	return s, true
}

func (m *memorySessionStore) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *memorySessionStore) SweepExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			count++
		}
	}
	return count
}

func (m *memorySessionStore) Info(id string) *SessionInfo {
	s, ok := m.Get(id)
	if !ok {
		return &SessionInfo{}
	}
	return &SessionInfo{
		Exists:               true,
		HasClientID:          s.ClientID != "",
		HasClientSecret:      s.ClientSecret != "",
		LocalhostPort:        s.LocalhostPort,
		Strategy:             s.Strategy,
		CreatedAt:            s.CreatedAt,
		ExpiresAt:            s.ExpiresAt,
		TimeRemainingMinutes: m.minutesRemaining(s),
	}
}

func (m *memorySessionStore) List() []*SessionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summaries := []*SessionSummary{}
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			continue
		}
		summaries = append(summaries, &SessionSummary{
			SessionID:            s.SessionID,
			LocalhostPort:        s.LocalhostPort,
			Strategy:             s.Strategy,
			CreatedAt:            s.CreatedAt,
			ExpiresAt:            s.ExpiresAt,
			TimeRemainingMinutes: m.minutesRemaining(s),
		})
	}
	return summaries
}

func (m *memorySessionStore) expired(s *Session) bool {
	return m.nowFunc().UnixMilli() > s.ExpiresAt
}

func (m *memorySessionStore) minutesRemaining(s *Session) int64 {
	return (s.ExpiresAt - m.nowFunc().UnixMilli()) / time.Minute.Milliseconds()
}

type memoryTokenStore struct {
	tokens map[string]*TokenRecord
	mu     sync.Mutex

	nowFunc func() time.Time
}

func NewMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{
		tokens:  make(map[string]*TokenRecord),
		nowFunc: time.Now,
	}
}

func (m *memoryTokenStore) Put(sessionID string, token *TokenRecord) {
	token.SessionID = sessionID
	token.ReceivedAt = m.nowFunc().UnixMilli()

	m.mu.Lock()
	m.tokens[sessionID] = token
	m.mu.Unlock()
}

func (m *memoryTokenStore) Get(sessionID string) (*TokenRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[sessionID]
	return t, ok
}
