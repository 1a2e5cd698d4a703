// Package store reads recorded sessions, their raw event logs and their
// frame-offset tables. The SQLite implementation reads the recorder's own
// database files; the in-memory implementation backs tests and ad-hoc
// sessions loaded from elsewhere.
package store

import (
	"context"
	"errors"

	"session-replay/internal/events"
	"session-replay/internal/timeline"
)

// Session is one recorded session as registered by the recorder.
type Session struct {
	ID          string `json:"session_id"`
	StartWallMs int64  `json:"start_wall_ms"`
	StartISO    string `json:"start_wall_iso"`
	VideoPath   string `json:"video_path"`
}

// EventFilter narrows an event listing. Zero value means everything.
type EventFilter struct {
	// Types keeps only the named event types.
	Types []string
	// Search keeps events whose process, window or payload contains the
	// string, case-insensitively.
	Search string
	// Limit caps the number of returned events; 0 means no cap.
	Limit int
}

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Store is the persistence abstraction for sessions, events and frame
// samples. Implementations must be safe for concurrent readers.
type Store interface {
	// ListSessions returns all sessions, newest first.
	ListSessions(ctx context.Context) ([]Session, error)
	// GetSession returns one session or ErrSessionNotFound.
	GetSession(ctx context.Context, id string) (Session, error)
	// Events returns the session's raw events in capture order (by id).
	Events(ctx context.Context, sessionID string, f EventFilter) ([]events.RawEvent, error)
	// FrameSamples returns the ordered frame-offset table for a video file.
	// fps is the fallback for deriving seconds when per-frame timestamps are
	// absent. An unknown video yields an empty slice, not an error.
	FrameSamples(ctx context.Context, videoPath string, fps float64) ([]timeline.FrameSample, error)
	// Close releases the underlying resources.
	Close() error
}
