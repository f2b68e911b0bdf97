package auth

import (
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "zsxqsync"
	keyringPrefix  = "group_"
)

// KeyringStore keeps sessions in the system keychain.
type KeyringStore struct{}

// NewKeyringStore probes the keychain and fails fast where none exists
// (headless Linux without a secret service).
func NewKeyringStore() (*KeyringStore, error) {
	const probe = "availability_probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{}, nil
}

func (k *KeyringStore) Store(session *Session) error {
	if session == nil || session.GroupID == "" {
		return ErrInvalidCredentials
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("could not marshal session: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+session.GroupID, string(data)); err != nil {
		return fmt.Errorf("could not store in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Retrieve(groupID string) (*Session, error) {
	if groupID == "" {
		return nil, ErrInvalidCredentials
	}
	data, err := keyring.Get(keyringService, keyringPrefix+groupID)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("could not read keyring: %w", err)
	}
	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("could not unmarshal session: %w", err)
	}
	return &session, nil
}

// List is empty: the keyring API cannot enumerate keys portably.
func (k *KeyringStore) List() ([]*Session, error) {
	return []*Session{}, nil
}

func (k *KeyringStore) Delete(groupID string) error {
	if groupID == "" {
		return ErrInvalidCredentials
	}
	if err := keyring.Delete(keyringService, keyringPrefix+groupID); err != nil {
		if err == keyring.ErrNotFound {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("could not delete from keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Exists(groupID string) bool {
	if groupID == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+groupID)
	return err == nil
}
