package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps one JSON file per session under a history directory.
type LocalStore struct {
	dir string
}

// NewLocal returns a filesystem-backed store rooted at dir. The
// directory is created lazily on first save.
func NewLocal(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

// LoadConversation implements Store.
func (s *LocalStore) LoadConversation(_ context.Context, sessionID string) ([]Message, error) {
	path, err := s.transcriptPath(sessionID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is sanitized and anchored to the history dir
	if err != nil {
		if os.IsNotExist(err) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", path, err)
	}
	return messages, nil
}

// SaveConversation implements Store.
func (s *LocalStore) SaveConversation(_ context.Context, sessionID string, messages []Message) error {
	path, err := s.transcriptPath(sessionID)
	if err != nil {
		return err
	}

	// #nosec G301 -- history directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// ListSessions implements Store.
func (s *LocalStore) ListSessions(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("scan history directory: %w", err)
	}

	sessions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		if name == entry.Name() {
			continue
		}
		if _, err := SanitizeSessionID(name); err != nil {
			continue
		}
		sessions = append(sessions, name)
	}
	return sessions, nil
}

// Close implements Store.
func (s *LocalStore) Close() error {
	return nil
}

// transcriptPath resolves the on-disk path for a session, refusing
// anything that would land outside the history directory.
func (s *LocalStore) transcriptPath(sessionID string) (string, error) {
	key, err := transcriptKey(sessionID)
	if err != nil {
		return "", err
	}

	base, err := filepath.Abs(s.dir)
	if err != nil {
		return "", fmt.Errorf("resolve history directory: %w", err)
	}

	candidate := filepath.Join(base, key)
	if filepath.Dir(candidate) != base {
		return "", ErrInvalidSessionID
	}
	return candidate, nil
}
