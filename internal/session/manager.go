// Package session ties the engine together: it owns one live Replay per
// session (decode queue, sync controller, event timeline, websocket hub) and
// exposes them over HTTP.
package session

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"

	"session-replay/internal/events"
	"session-replay/internal/frames"
	"session-replay/internal/media"
	"session-replay/internal/platform/metrics"
	"session-replay/internal/store"
	"session-replay/internal/sync"
	"session-replay/internal/timeline"
)

// Config bundles the per-component tuning passed down from the environment.
type Config struct {
	Sync        sync.Config
	Frames      frames.Config
	Events      events.Config
	JPEGQuality int
	// WatchMedia enables the recording-file watcher.
	WatchMedia bool
}

// Replay is one session's live replay state.
type Replay struct {
	Session store.Session
	Info    media.Info
	Samples []timeline.FrameSample

	Queue      *frames.Queue
	Controller *sync.Controller
	Hub        *Hub

	primary   *remoteHandle
	secondary *remoteHandle

	mu              gosync.Mutex
	eventOffset     float64
	watcher         *mediaWatcher
	sampleByFrameID map[int]int // offset_index -> sample slice index
}

// TimelineEnd returns the replay's timeline duration.
func (r *Replay) TimelineEnd() float64 {
	return timeline.End(r.Samples)
}

// Origin returns the wall-clock origin candidates for the event pipeline.
func (r *Replay) Origin() events.Origin {
	return events.Origin{
		FileName:     r.Session.VideoPath,
		MediaCreated: r.Info.CreationTime,
		SessionStart: r.Session.StartWallMs,
	}
}

// EventOffset returns the manual alignment offset applied to event positions.
func (r *Replay) EventOffset() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eventOffset
}

// SetEventOffset updates the manual alignment offset for events.
func (r *Replay) SetEventOffset(seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventOffset = seconds
}

// FrameTarget resolves a frame id to its media position through the sample
// table and the timeline mapping.
func (r *Replay) FrameTarget(frameID int) (float64, bool) {
	idx, ok := r.sampleByFrameID[frameID]
	if !ok {
		return 0, false
	}
	mediaSeconds := timeline.ToMedia(r.Samples[idx].Seconds, r.Info.Duration, r.Samples)
	return mediaSeconds, true
}

// Manager opens and caches Replays. One Replay per session id; reopening an
// already-open session returns the existing one.
type Manager struct {
	store   store.Store
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     gosync.Mutex
	active map[string]*Replay

	// newSurface is swappable for tests.
	newSurface func() frames.DecodeSurface
	// probe is swappable for tests.
	probe func(ctx context.Context, path string) (media.Info, error)
}

// NewManager builds a Manager over the given store. Metrics may be nil.
func NewManager(st store.Store, cfg Config, log *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		store:   st,
		cfg:     cfg,
		log:     log,
		metrics: m,
		active:  make(map[string]*Replay),
		newSurface: func() frames.DecodeSurface {
			return FFmpegSurfaceFactory{Quality: cfg.JPEGQuality}.New()
		},
		probe: media.Probe,
	}
}

// FFmpegSurfaceFactory builds production decode surfaces.
type FFmpegSurfaceFactory struct {
	Quality int
}

// New returns a fresh ffmpeg-backed surface.
func (f FFmpegSurfaceFactory) New() frames.DecodeSurface {
	return &frames.FFmpegSurface{Quality: f.Quality}
}

// Open loads a session's media metadata and frame samples and assembles its
// Replay. The decode queue attaches eagerly; a media file that cannot be
// probed fails the open.
func (m *Manager) Open(ctx context.Context, sessionID string) (*Replay, error) {
	m.mu.Lock()
	if r, ok := m.active[sessionID]; ok {
		m.mu.Unlock()
		return r, nil
	}
	m.mu.Unlock()

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.VideoPath == "" {
		return nil, fmt.Errorf("session %s has no recording", sessionID)
	}

	info, err := m.probe(ctx, sess.VideoPath)
	if err != nil {
		return nil, err
	}

	rawSamples, err := m.store.FrameSamples(ctx, sess.VideoPath, info.FPS)
	if err != nil {
		return nil, err
	}
	samples := timeline.DedupSamples(rawSamples)

	hub := NewHub(m.log)
	primary := newRemoteHandle(hub, trackPrimary, info.Duration)
	secondary := newRemoteHandle(hub, trackSecondary, 0)

	controller := sync.New(primary, secondary, m.cfg.Sync, m.log, m.metrics)
	controller.Attach(samples, 0)
	controller.SetPositionListener(hub.PublishPosition)

	queue := frames.New(m.newSurface(), m.cfg.Frames, m.log, m.metrics)
	if err := queue.Attach(sess.VideoPath); err != nil {
		queue.Close()
		hub.Close()
		return nil, err
	}

	byID := make(map[int]int, len(samples))
	for i, s := range samples {
		byID[s.OffsetIndex] = i
	}

	r := &Replay{
		Session:         sess,
		Info:            info,
		Samples:         samples,
		Queue:           queue,
		Controller:      controller,
		Hub:             hub,
		primary:         primary,
		secondary:       secondary,
		sampleByFrameID: byID,
	}
	hub.bind(r)

	if m.cfg.WatchMedia {
		w, err := watchMedia(sess.VideoPath, m.log, func() { m.invalidate(r) })
		if err != nil {
			m.log.Warn("media watch unavailable",
				slog.String("path", sess.VideoPath),
				slog.String("error", err.Error()))
		} else {
			r.watcher = w
		}
	}

	m.mu.Lock()
	if existing, ok := m.active[sessionID]; ok {
		// Lost the race to another opener; keep theirs.
		m.mu.Unlock()
		r.teardown()
		return existing, nil
	}
	m.active[sessionID] = r
	n := len(m.active)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetActiveSessions(n)
	}
	m.log.Info("session opened",
		slog.String("session_id", sessionID),
		slog.Float64("duration", info.Duration),
		slog.Int("frame_samples", len(samples)),
	)
	return r, nil
}

// Get returns an already-open Replay, or false.
func (m *Manager) Get(sessionID string) (*Replay, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.active[sessionID]
	return r, ok
}

// BuildTimeline runs the event pipeline for a replay with the given filters.
func (m *Manager) BuildTimeline(ctx context.Context, r *Replay, filter store.EventFilter) (events.Result, error) {
	raw, err := m.store.Events(ctx, r.Session.ID, filter)
	if err != nil {
		return events.Result{}, err
	}
	cfg := m.cfg.Events
	cfg.AlignmentOffsetSeconds = r.EventOffset()
	res := events.Build(raw, r.Origin(), r.TimelineEnd(), cfg)
	if m.metrics != nil {
		m.metrics.AddEventsBuilt(len(res.Events))
	}
	return res, nil
}

// Close tears down one replay.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	r, ok := m.active[sessionID]
	if ok {
		delete(m.active, sessionID)
	}
	n := len(m.active)
	m.mu.Unlock()
	if !ok {
		return
	}
	r.teardown()
	if m.metrics != nil {
		m.metrics.SetActiveSessions(n)
	}
}

// CloseAll tears down every replay, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.active
	m.active = make(map[string]*Replay)
	m.mu.Unlock()
	for _, r := range all {
		r.teardown()
	}
}

// invalidate reacts to the recording file changing on disk: the decode queue
// re-attaches (failing pending requests with a reset), the controller
// restarts from zero, and clients are told to reload.
func (m *Manager) invalidate(r *Replay) {
	m.log.Info("recording changed on disk, re-attaching",
		slog.String("path", r.Session.VideoPath))
	if err := r.Queue.Attach(r.Session.VideoPath); err != nil {
		m.log.Error("re-attach failed", slog.String("error", err.Error()))
	}
	r.Controller.Attach(r.Samples, 0)
	r.Hub.PublishReset()
}

func (r *Replay) teardown() {
	if r.watcher != nil {
		r.watcher.stop()
	}
	r.Queue.Close()
	r.Hub.Close()
}
