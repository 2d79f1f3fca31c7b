package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"chatclient/models"
)

var ErrNoStoredSession = errors.New("no stored session")

// StoredSession is what survives a restart: the bearer token and its user.
type StoredSession struct {
	AccessToken string      `json:"accessToken"`
	User        models.User `json:"user"`
}

// TokenStore keeps the current access token in memory and mirrors it to a
// file readable only by the owner. An empty path keeps it in memory only.
type TokenStore struct {
	path string

	mu      sync.RWMutex
	current StoredSession
}

func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path is the backing file, empty when the store is memory-only.
func (t *TokenStore) Path() string { return t.path }

// AccessToken is read by the transports on every outbound call.
func (t *TokenStore) AccessToken() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current.AccessToken
}

func (t *TokenStore) Load() (StoredSession, error) {
	if t.path == "" {
		return StoredSession{}, ErrNoStoredSession
	}
	data, err := os.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return StoredSession{}, ErrNoStoredSession
	}
	if err != nil {
		return StoredSession{}, fmt.Errorf("read session file: %w", err)
	}
	var s StoredSession
	if err := json.Unmarshal(data, &s); err != nil {
		return StoredSession{}, fmt.Errorf("decode session file: %w", err)
	}
	if s.AccessToken == "" {
		return StoredSession{}, ErrNoStoredSession
	}

	t.mu.Lock()
	t.current = s
	t.mu.Unlock()
	return s, nil
}

func (t *TokenStore) Save(s StoredSession) error {
	t.mu.Lock()
	t.current = s
	t.mu.Unlock()

	if t.path == "" {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return os.Rename(tmp, t.path)
}

func (t *TokenStore) Clear() error {
	t.mu.Lock()
	t.current = StoredSession{}
	t.mu.Unlock()

	if t.path == "" {
		return nil
	}
	if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
