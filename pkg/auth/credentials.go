// Package auth stores the session cookie used against the remote API. The
// cookie comes from a logged-in browser session; keeping it out of config
// files is the whole point of this package.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Session is one group's stored credential.
type Session struct {
	GroupID      string    `json:"group_id"`
	Cookie       string    `json:"cookie"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore persists sessions keyed by group id.
type CredentialStore interface {
	Store(session *Session) error
	Retrieve(groupID string) (*Session, error)
	List() ([]*Session, error)
	Delete(groupID string) error
	Exists(groupID string) bool
}

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)

// Manager tries a chain of stores: system keychain, then an encrypted file,
// then the environment.
type Manager struct {
	stores []CredentialStore
}

// NewManager builds the store chain. The keychain is skipped silently when
// the platform has none.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := configDir()
	if err != nil {
		return nil, fmt.Errorf("could not resolve config directory: %w", err)
	}
	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("could not create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// Store saves the session in the first store that accepts it.
func (m *Manager) Store(session *Session) error {
	if session.GroupID == "" {
		return errors.New("group id is required")
	}
	if session.Cookie == "" {
		return errors.New("cookie is required")
	}
	session.Cookie = CleanCookie(session.Cookie)
	session.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(session); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("could not store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve returns the session from the first store that has it.
func (m *Manager) Retrieve(groupID string) (*Session, error) {
	for _, store := range m.stores {
		if session, err := store.Retrieve(groupID); err == nil && session != nil {
			return session, nil
		}
	}
	return nil, fmt.Errorf("%w for group %s", ErrCredentialsNotFound, groupID)
}

// List merges sessions from every store, newest version of each group wins.
func (m *Manager) List() ([]*Session, error) {
	byGroup := make(map[string]*Session)
	for _, store := range m.stores {
		sessions, err := store.List()
		if err != nil {
			continue
		}
		for _, session := range sessions {
			if existing, ok := byGroup[session.GroupID]; !ok || session.LastModified.After(existing.LastModified) {
				byGroup[session.GroupID] = session
			}
		}
	}

	var result []*Session
	for _, session := range byGroup {
		result = append(result, session)
	}
	return result, nil
}

// Delete removes the group's session from every store that has it.
func (m *Manager) Delete(groupID string) error {
	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(groupID); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}
	if !deleted {
		if lastErr != nil {
			return fmt.Errorf("could not delete credentials: %w", lastErr)
		}
		return fmt.Errorf("%w for group %s", ErrCredentialsNotFound, groupID)
	}
	return nil
}

// CleanCookie normalizes a cookie pasted from browser devtools: quotes and
// line breaks stripped, pairs rejoined with the canonical "; " separator.
func CleanCookie(raw string) string {
	cookie := strings.TrimSpace(raw)
	cookie = strings.Trim(cookie, `"'`)
	cookie = strings.ReplaceAll(cookie, "\n", "")
	cookie = strings.ReplaceAll(cookie, "\r", "")

	parts := strings.Split(cookie, ";")
	cleaned := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			cleaned = append(cleaned, part)
		}
	}
	return strings.Join(cleaned, "; ")
}

// ValidateCookie checks the cookie carries the access token the API
// requires.
func ValidateCookie(cookie string) error {
	if !strings.Contains(cookie, "zsxq_access_token=") {
		return fmt.Errorf("%w: cookie is missing zsxq_access_token", ErrInvalidCredentials)
	}
	return nil
}

// MaskCookie hides all but the edges of a cookie for log output.
func MaskCookie(cookie string) string {
	if len(cookie) <= 16 {
		return "********"
	}
	return cookie[:8] + "..." + cookie[len(cookie)-8:]
}

// configDir returns the per-user config directory, creating it if needed.
func configDir() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support", "zsxqsync")
	case "windows":
		dir = filepath.Join(os.Getenv("APPDATA"), "zsxqsync")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "zsxqsync")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dir = filepath.Join(home, ".config", "zsxqsync")
		}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("could not create config directory: %w", err)
	}
	return dir, nil
}
