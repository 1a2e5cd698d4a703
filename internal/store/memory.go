package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"session-replay/internal/events"
	"session-replay/internal/timeline"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	events   map[string][]events.RawEvent
	frames   map[string][]timeline.FrameSample
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		events:   make(map[string][]events.RawEvent),
		frames:   make(map[string][]timeline.FrameSample),
	}
}

// AddSession registers a session with its raw events.
func (s *MemoryStore) AddSession(sess Session, evts []events.RawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	s.events[sess.ID] = evts
}

// AddFrameSamples registers the frame-offset table for a video file.
func (s *MemoryStore) AddFrameSamples(videoPath string, samples []timeline.FrameSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[videoPath] = samples
}

// ListSessions implements Store.ListSessions.
func (s *MemoryStore) ListSessions(ctx context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartWallMs > out[j].StartWallMs })
	return out, nil
}

// GetSession implements Store.GetSession.
func (s *MemoryStore) GetSession(ctx context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// Events implements Store.Events.
func (s *MemoryStore) Events(ctx context.Context, sessionID string, f EventFilter) ([]events.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}

	out := make([]events.RawEvent, 0, len(s.events[sessionID]))
	for _, e := range s.events[sessionID] {
		if !matchesFilter(e, f) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// FrameSamples implements Store.FrameSamples.
func (s *MemoryStore) FrameSamples(ctx context.Context, videoPath string, fps float64) ([]timeline.FrameSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]timeline.FrameSample(nil), s.frames[videoPath]...), nil
}

// Close implements Store.Close.
func (s *MemoryStore) Close() error { return nil }

func matchesFilter(e events.RawEvent, f EventFilter) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		blob := strings.ToLower(strings.Join([]string{
			e.ProcessName, e.WindowTitle, e.WindowClass, string(e.Payload),
		}, " "))
		if !strings.Contains(blob, needle) {
			return false
		}
	}
	return true
}
