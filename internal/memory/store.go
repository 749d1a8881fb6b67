// Package memory persists per-session conversation transcripts. Three
// backends exist: local filesystem, S3, and libsql.
package memory

import (
	"context"
	"errors"
	"regexp"
)

// Message is one stored conversation turn.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Store reads and writes conversation transcripts keyed by session ID.
type Store interface {
	// LoadConversation returns the stored transcript, or an empty slice
	// when the session has no history yet.
	LoadConversation(ctx context.Context, sessionID string) ([]Message, error)
	// SaveConversation replaces the stored transcript for the session.
	SaveConversation(ctx context.Context, sessionID string, messages []Message) error
	// ListSessions returns the known session IDs.
	ListSessions(ctx context.Context) ([]string, error)
	// Close releases backend resources.
	Close() error
}

// ErrInvalidSessionID rejects session IDs that could escape their
// storage namespace.
var ErrInvalidSessionID = errors.New("session id contains invalid characters")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// SanitizeSessionID validates a session ID before it is used as a
// storage key. IDs are restricted to a filename-safe alphabet so the
// same ID is valid across every backend.
func SanitizeSessionID(sessionID string) (string, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return "", ErrInvalidSessionID
	}
	return sessionID, nil
}

// transcriptKey returns the storage key for a session.
func transcriptKey(sessionID string) (string, error) {
	safe, err := SanitizeSessionID(sessionID)
	if err != nil {
		return "", err
	}
	return safe + ".json", nil
}
