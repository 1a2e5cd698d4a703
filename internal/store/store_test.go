package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"session-replay/internal/events"
	"session-replay/internal/timeline"
)

func testEvents() []events.RawEvent {
	shortcut, _ := json.Marshal(map[string]any{"key": "S", "modifiers": []string{"Ctrl"}})
	return []events.RawEvent{
		{ID: 1, SessionID: "s1", WallMs: 1000, Type: events.TypeActiveWindowChanged, WindowTitle: "editor"},
		{ID: 2, SessionID: "s1", WallMs: 1500, Type: events.TypeKeyShortcut, WindowTitle: "editor", Payload: shortcut},
		{ID: 3, SessionID: "s1", WallMs: 2000, Type: events.TypeMouseClick, WindowTitle: "browser"},
	}
}

func TestMemoryStore_sessions(t *testing.T) {
	s := NewMemoryStore()
	s.AddSession(Session{ID: "s1", StartWallMs: 100}, testEvents())
	s.AddSession(Session{ID: "s2", StartWallMs: 200}, nil)

	sessions, err := s.ListSessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[0].ID != "s2" {
		t.Errorf("expected newest first, got %+v", sessions)
	}

	if _, err := s.GetSession(context.Background(), "missing"); err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStore_event_filters(t *testing.T) {
	s := NewMemoryStore()
	s.AddSession(Session{ID: "s1"}, testEvents())
	ctx := context.Background()

	all, err := s.Events(ctx, "s1", EventFilter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("all events: %d, err %v", len(all), err)
	}

	typed, _ := s.Events(ctx, "s1", EventFilter{Types: []string{events.TypeKeyShortcut}})
	if len(typed) != 1 || typed[0].ID != 2 {
		t.Errorf("type filter: %+v", typed)
	}

	searched, _ := s.Events(ctx, "s1", EventFilter{Search: "BROWSER"})
	if len(searched) != 1 || searched[0].ID != 3 {
		t.Errorf("search should be case-insensitive over windows: %+v", searched)
	}

	limited, _ := s.Events(ctx, "s1", EventFilter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("limit: got %d", len(limited))
	}
}

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	schema := `
	CREATE TABLE sessions (
		session_id TEXT PRIMARY KEY,
		start_wall_ms INTEGER,
		start_wall_iso TEXT,
		obs_video_path TEXT
	);
	CREATE TABLE events (
		id INTEGER PRIMARY KEY,
		session_id TEXT,
		ts_wall_ms INTEGER,
		ts_mono_ms INTEGER,
		event_type TEXT,
		process_name TEXT,
		window_title TEXT,
		window_class TEXT,
		payload TEXT
	);
	CREATE TABLE video_chunks (id INTEGER PRIMARY KEY, file_path TEXT);
	CREATE TABLE frames (
		video_chunk_id INTEGER,
		offset_index INTEGER,
		timestamp TEXT
	);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	seed := `
	INSERT INTO sessions VALUES ('s1', 1000, '2025-09-09T17:13:30+00:00', 'C:\rec\session-20250909-171330.mkv');
	INSERT INTO events VALUES (1, 's1', 1000, 10, 'active_window_changed', 'code.exe', 'editor', 'Chrome_WidgetWin', '{}');
	INSERT INTO events VALUES (2, 's1', 1500, 510, 'key_down', NULL, 'editor', NULL, '{"key":"A","vk":65}');
	INSERT INTO events VALUES (3, 's1', 2000, 1010, 'mouse_click', NULL, 'browser', NULL, '{}');
	INSERT INTO video_chunks VALUES (7, 'C:\rec\session-20250909-171330.mkv');
	INSERT INTO frames VALUES (7, 0, NULL);
	INSERT INTO frames VALUES (7, 30, NULL);
	INSERT INTO frames VALUES (7, 60, NULL);`
	if _, err := db.Exec(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s := &SQLiteStore{db: db}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_sessions_and_events(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	sessions, err := s.ListSessions(ctx)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("sessions: %v, err %v", sessions, err)
	}
	if sessions[0].VideoPath == "" {
		t.Error("expected video path")
	}

	sess, err := s.GetSession(ctx, "s1")
	if err != nil || sess.StartWallMs != 1000 {
		t.Fatalf("get session: %+v, err %v", sess, err)
	}
	if _, err := s.GetSession(ctx, "nope"); err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	evts, err := s.Events(ctx, "s1", EventFilter{})
	if err != nil || len(evts) != 3 {
		t.Fatalf("events: %d, err %v", len(evts), err)
	}
	if evts[1].MonoMs != 510 || evts[1].Type != "key_down" {
		t.Errorf("event scan: %+v", evts[1])
	}

	filtered, err := s.Events(ctx, "s1", EventFilter{Types: []string{"mouse_click"}, Search: "browser"})
	if err != nil || len(filtered) != 1 || filtered[0].ID != 3 {
		t.Errorf("filtered events: %+v, err %v", filtered, err)
	}
}

func TestSQLiteStore_events_keep_capture_order_across_wall_jump(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	// The system clock was adjusted backwards mid-session, so the row
	// captured second carries the earlier wall stamp. Capture order is id
	// order and must survive the adjustment.
	seed := `
	INSERT INTO events VALUES (10, 's2', 10000, 500, 'key_down', NULL, 'editor', NULL, '{"key":"H","vk":72}');
	INSERT INTO events VALUES (11, 's2', 9800, 700, 'key_down', NULL, 'editor', NULL, '{"key":"I","vk":73}');`
	if _, err := s.db.Exec(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	evts, err := s.Events(ctx, "s2", EventFilter{})
	if err != nil || len(evts) != 2 {
		t.Fatalf("events: %d, err %v", len(evts), err)
	}
	if evts[0].ID != 10 || evts[1].ID != 11 {
		t.Errorf("rows out of capture order: %d then %d", evts[0].ID, evts[1].ID)
	}
}

func TestSQLiteStore_frame_samples_fps_fallback(t *testing.T) {
	s := newTestSQLite(t)
	samples, err := s.FrameSamples(context.Background(), `C:\rec\session-20250909-171330.mkv`, 30)
	if err != nil {
		t.Fatal(err)
	}
	want := []timeline.FrameSample{
		{OffsetIndex: 0, Seconds: 0},
		{OffsetIndex: 30, Seconds: 1},
		{OffsetIndex: 60, Seconds: 2},
	}
	if len(samples) != len(want) {
		t.Fatalf("samples: %+v", samples)
	}
	for i := range want {
		if samples[i].OffsetIndex != want[i].OffsetIndex || samples[i].Seconds != want[i].Seconds {
			t.Errorf("sample %d = %+v, want %+v", i, samples[i], want[i])
		}
	}
}

func TestSQLiteStore_frame_samples_suffix_match(t *testing.T) {
	s := newTestSQLite(t)
	samples, err := s.FrameSamples(context.Background(), "/mnt/rec/session-20250909-171330.mkv", 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 3 {
		t.Errorf("suffix match should find the chunk, got %+v", samples)
	}
}

func TestSQLiteStore_frame_samples_unknown_video(t *testing.T) {
	s := newTestSQLite(t)
	samples, err := s.FrameSamples(context.Background(), "other.mkv", 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 0 {
		t.Errorf("unknown video must yield empty samples, got %+v", samples)
	}
}

func TestDeriveSeconds_prefers_timestamps(t *testing.T) {
	samples := []timeline.FrameSample{
		{OffsetIndex: 0, Timestamp: "2025-09-09T17:13:30Z"},
		{OffsetIndex: 30, Timestamp: "2025-09-09T17:13:31.500Z"},
	}
	deriveSeconds(samples, 30)
	if samples[0].Seconds != 0 || samples[1].Seconds != 1.5 {
		t.Errorf("timestamp-derived seconds: %+v", samples)
	}
}
