// Package history persists completed conversation turns per session.
package history

import (
	"context"
	"errors"
	"time"
)

// Entry is one persisted turn.
type Entry struct {
	Timestamp     time.Time `json:"timestamp"`
	Transcription string    `json:"transcription"`
	AIResponse    string    `json:"ai_response"`
}

// Store keeps turns in insertion order per session.
type Store interface {
	// Append adds e to the end of the session's history.
	Append(ctx context.Context, sessionID string, e Entry) error
	// Turns returns the session's history, oldest first. Returns ErrNotFound
	// for an unknown session.
	Turns(ctx context.Context, sessionID string) ([]Entry, error)
	// Sessions lists the ids of every stored session.
	Sessions(ctx context.Context) ([]string, error)
	// Delete removes a session's history.
	Delete(ctx context.Context, sessionID string) error
}

var (
	// ErrNotFound is returned when a session has no stored history.
	ErrNotFound = errors.New("session history not found")
	// ErrInvalidID is returned for an empty session id.
	ErrInvalidID = errors.New("invalid session ID")
)
