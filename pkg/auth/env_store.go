package auth

import (
	"os"
)

// EnvironmentStore reads the cookie from the environment. Read-only; the
// last resort of the store chain and the natural fit for CI or containers.
type EnvironmentStore struct{}

// NewEnvironmentStore returns an environment-backed store.
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is rejected: the process cannot usefully persist into its own
// environment.
func (s *EnvironmentStore) Store(*Session) error {
	return ErrInvalidCredentials
}

// Retrieve returns the environment cookie. An empty groupID matches
// whatever group the environment names.
func (s *EnvironmentStore) Retrieve(groupID string) (*Session, error) {
	cookie := os.Getenv("ZSXQSYNC_COOKIE")
	if cookie == "" {
		return nil, ErrCredentialsNotFound
	}
	envGroup := os.Getenv("ZSXQSYNC_GROUP_ID")
	if groupID != "" && envGroup != "" && envGroup != groupID {
		return nil, ErrCredentialsNotFound
	}
	if envGroup == "" {
		envGroup = groupID
	}
	return &Session{
		GroupID: envGroup,
		Cookie:  CleanCookie(cookie),
	}, nil
}

func (s *EnvironmentStore) List() ([]*Session, error) {
	session, err := s.Retrieve("")
	if err != nil {
		return []*Session{}, nil
	}
	return []*Session{session}, nil
}

// Delete is rejected for the same reason as Store.
func (s *EnvironmentStore) Delete(string) error {
	return ErrCredentialsNotFound
}

func (s *EnvironmentStore) Exists(groupID string) bool {
	_, err := s.Retrieve(groupID)
	return err == nil
}
