package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"session-replay/internal/events"
	"session-replay/internal/timeline"
)

// SQLiteStore reads the recorder's database files: the event log (sessions
// and events tables) and, when present, the ingest tables mapping video files
// to their frame-offset rows (video_chunks and frames).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the recorder database at path read-only.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open recorder db: %w", err)
	}
	// The driver is safe for one connection per query; the recorder may still
	// be appending to this file.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

// Close implements Store.Close.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// ListSessions implements Store.ListSessions.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, start_wall_ms, start_wall_iso, obs_video_path
		 FROM sessions ORDER BY start_wall_ms DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var iso, video sql.NullString
		if err := rows.Scan(&sess.ID, &sess.StartWallMs, &iso, &video); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.StartISO = iso.String
		sess.VideoPath = video.String
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetSession implements Store.GetSession.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, start_wall_ms, start_wall_iso, obs_video_path
		 FROM sessions WHERE session_id = ?`, id)
	var sess Session
	var iso, video sql.NullString
	if err := row.Scan(&sess.ID, &sess.StartWallMs, &iso, &video); err != nil {
		if err == sql.ErrNoRows {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.StartISO = iso.String
	sess.VideoPath = video.String
	return sess, nil
}

// Events implements Store.Events.
func (s *SQLiteStore) Events(ctx context.Context, sessionID string, f EventFilter) ([]events.RawEvent, error) {
	clauses := []string{"session_id = ?"}
	args := []any{sessionID}

	if len(f.Types) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.Types)), ", ")
		clauses = append(clauses, fmt.Sprintf("event_type IN (%s)", placeholders))
		for _, t := range f.Types {
			args = append(args, t)
		}
	}
	if f.Search != "" {
		clauses = append(clauses,
			`(lower(process_name) LIKE ? OR lower(window_title) LIKE ?
			  OR lower(window_class) LIKE ? OR lower(payload) LIKE ?)`)
		like := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, like, like, like, like)
	}

	query := fmt.Sprintf(
		`SELECT id, session_id, ts_wall_ms, ts_mono_ms, event_type,
		        process_name, window_title, window_class, payload
		 FROM events WHERE %s ORDER BY id ASC`,
		strings.Join(clauses, " AND "))
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []events.RawEvent
	for rows.Next() {
		var e events.RawEvent
		var mono sql.NullInt64
		var process, title, class, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.WallMs, &mono, &e.Type,
			&process, &title, &class, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.MonoMs = mono.Int64
		e.ProcessName = process.String
		e.WindowTitle = title.String
		e.WindowClass = class.String
		e.Payload = []byte(payload.String)
		out = append(out, e)
	}
	return out, rows.Err()
}

// FrameSamples implements Store.FrameSamples. The video is matched by exact
// file path first, then by file-name suffix (the recorder stores absolute
// paths that may not survive a machine move). Seconds come from per-frame
// timestamps relative to the first frame when parseable, else offset_index/fps.
func (s *SQLiteStore) FrameSamples(ctx context.Context, videoPath string, fps float64) ([]timeline.FrameSample, error) {
	var chunkID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM video_chunks WHERE file_path = ?`, videoPath).Scan(&chunkID)
	if err == sql.ErrNoRows {
		base := videoPath
		if i := strings.LastIndexAny(videoPath, `/\`); i >= 0 {
			base = videoPath[i+1:]
		}
		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM video_chunks WHERE file_path LIKE ? ORDER BY id DESC LIMIT 1`,
			"%"+base).Scan(&chunkID)
	}
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find video chunk: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT offset_index, timestamp FROM frames
		 WHERE video_chunk_id = ? ORDER BY offset_index ASC`, chunkID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var samples []timeline.FrameSample
	for rows.Next() {
		var sample timeline.FrameSample
		var ts sql.NullString
		if err := rows.Scan(&sample.OffsetIndex, &ts); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		sample.Timestamp = ts.String
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	deriveSeconds(samples, fps)
	return samples, nil
}

// deriveSeconds fills Seconds for each sample: preferred source is the frame
// timestamp relative to the first frame's, fallback is offset_index/fps.
func deriveSeconds(samples []timeline.FrameSample, fps float64) {
	var origin time.Time
	haveOrigin := false
	for i := range samples {
		t, ok := parseFrameTimestamp(samples[i].Timestamp)
		if ok && !haveOrigin {
			origin = t
			haveOrigin = true
		}
		switch {
		case ok && haveOrigin:
			samples[i].Seconds = t.Sub(origin).Seconds()
		case fps > 0:
			samples[i].Seconds = float64(samples[i].OffsetIndex) / fps
		default:
			samples[i].Seconds = 0
		}
	}
}

func parseFrameTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
