package auth

import "sync"

// MockStore implements CredentialStore in memory for tests.
type MockStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// Error injection
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{sessions: make(map[string]*Session)}
}

func (m *MockStore) Store(session *Session) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if session == nil || session.GroupID == "" {
		return ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sessionCopy := *session
	m.sessions[session.GroupID] = &sessionCopy
	return nil
}

func (m *MockStore) Retrieve(groupID string) (*Session, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[groupID]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	sessionCopy := *session
	return &sessionCopy, nil
}

func (m *MockStore) List() ([]*Session, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var sessions []*Session
	for _, session := range m.sessions {
		sessionCopy := *session
		sessions = append(sessions, &sessionCopy)
	}
	return sessions, nil
}

func (m *MockStore) Delete(groupID string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[groupID]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.sessions, groupID)
	return nil
}

func (m *MockStore) Exists(groupID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[groupID]
	return ok
}

// Count returns the number of stored sessions.
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// NewManagerWithStores builds a Manager over an explicit store chain.
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}
