package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"session-replay/internal/frames"
	"session-replay/internal/platform/metrics"
	"session-replay/internal/store"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the replay engine over HTTP using go-chi.
type Handler struct {
	mgr     *Manager
	store   store.Store
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler over the given Manager and Store.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(mgr *Manager, st store.Store, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{mgr: mgr, store: st, log: log, metrics: m}
}

// Routes mounts the session endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/sessions", h.ListSessions)
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Get("/timeline", h.GetTimeline)
		r.Get("/frames/{frame_id}", h.GetFrame)
		r.Post("/seek", h.Seek)
		r.Post("/toggle", h.Toggle)
		r.Post("/offset", h.SetOffset)
		r.Get("/ws", h.ServeWS)
	})
}

// sessionDetail is the GET /sessions/{session_id} response body.
type sessionDetail struct {
	store.Session
	MediaDuration  float64 `json:"media_duration"`
	TimelineEnd    float64 `json:"timeline_end"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	HasAudio       bool    `json:"has_audio"`
	FrameSamples   int     `json:"frame_samples"`
	CombinedOffset float64 `json:"combined_offset_seconds"`
	EventOffset    float64 `json:"event_offset_seconds"`
}

// ListSessions handles GET /sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		h.log.Error("list sessions failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// GetSession handles GET /sessions/{session_id}. Opening a session is what
// spins up its replay: the media file is probed and the decode queue attached.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.openReplay(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionDetail{
		Session:        rep.Session,
		MediaDuration:  rep.Info.Duration,
		TimelineEnd:    rep.TimelineEnd(),
		Width:          rep.Info.Width,
		Height:         rep.Info.Height,
		FPS:            rep.Info.FPS,
		HasAudio:       rep.Info.HasAudio,
		FrameSamples:   len(rep.Samples),
		CombinedOffset: rep.Controller.CombinedOffset(),
		EventOffset:    rep.EventOffset(),
	})
}

// GetTimeline handles GET /sessions/{session_id}/timeline.
// Query params: types (comma-separated event types), search, limit.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.openReplay(w, r)
	if !ok {
		return
	}

	var filter store.EventFilter
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, t)
			}
		}
	}
	filter.Search = r.URL.Query().Get("search")
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	res, err := h.mgr.BuildTimeline(r.Context(), rep, filter)
	if err != nil {
		h.log.Error("build timeline failed",
			slog.String("session_id", rep.Session.ID),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetFrame handles GET /sessions/{session_id}/frames/{frame_id}. The frame id
// is the recorder's offset_index for the sample; the response is a JPEG.
func (h *Handler) GetFrame(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.openReplay(w, r)
	if !ok {
		return
	}

	frameID, err := strconv.Atoi(chi.URLParam(r, "frame_id"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	mediaSeconds, ok := rep.FrameTarget(frameID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	raster, err := rep.Queue.Request(r.Context(), frameID, mediaSeconds)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// Client went away mid-decode.
			return
		case errors.Is(err, frames.ErrReset):
			w.WriteHeader(http.StatusConflict)
		case errors.Is(err, frames.ErrSurfaceFailed), errors.Is(err, frames.ErrNotAttached):
			h.log.Error("decode surface unavailable",
				slog.String("session_id", rep.Session.ID),
				slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
		case errors.Is(err, frames.ErrClosed):
			w.WriteHeader(http.StatusGone)
		default:
			h.log.Warn("frame decode failed",
				slog.String("session_id", rep.Session.ID),
				slog.Int("frame_id", frameID),
				slog.String("error", err.Error()))
			w.WriteHeader(http.StatusUnprocessableEntity)
		}
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(raster)
}

// Seek handles POST /sessions/{session_id}/seek.
// Body: { "timeline_seconds": 12.5, "autoplay": true }.
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.openReplay(w, r)
	if !ok {
		return
	}

	var body struct {
		TimelineSeconds float64 `json:"timeline_seconds"`
		Autoplay        bool    `json:"autoplay"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid seek body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	rep.Controller.Seek(body.TimelineSeconds, body.Autoplay)
	writeJSON(w, http.StatusOK, map[string]float64{
		"timeline_seconds": rep.Controller.Position(),
	})
}

// Toggle handles POST /sessions/{session_id}/toggle.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.openReplay(w, r)
	if !ok {
		return
	}

	if err := rep.Controller.TogglePlayback(); err != nil {
		if errors.Is(err, ErrAutoplayRejected) {
			// Host policy refused the play call; the client must start
			// playback from a user gesture.
			w.WriteHeader(http.StatusConflict)
			return
		}
		h.log.Error("toggle failed",
			slog.String("session_id", rep.Session.ID),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SetOffset handles POST /sessions/{session_id}/offset.
// Body: { "manual_offset_seconds": 0.5, "event_offset_seconds": -0.2 }.
// Either field may be omitted to leave it unchanged.
func (h *Handler) SetOffset(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.openReplay(w, r)
	if !ok {
		return
	}

	var body struct {
		ManualOffsetSeconds *float64 `json:"manual_offset_seconds"`
		EventOffsetSeconds  *float64 `json:"event_offset_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid offset body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if body.ManualOffsetSeconds != nil {
		rep.Controller.SetManualOffset(*body.ManualOffsetSeconds)
	}
	if body.EventOffsetSeconds != nil {
		rep.SetEventOffset(*body.EventOffsetSeconds)
	}
	writeJSON(w, http.StatusOK, map[string]float64{
		"combined_offset_seconds": rep.Controller.CombinedOffset(),
		"event_offset_seconds":    rep.EventOffset(),
	})
}

// ServeWS handles GET /sessions/{session_id}/ws.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.openReplay(w, r)
	if !ok {
		return
	}
	rep.Hub.ServeWS(w, r)
}

// openReplay resolves the session_id URL param to a live Replay, opening it
// if needed, writing the error response itself on failure.
func (h *Handler) openReplay(w http.ResponseWriter, r *http.Request) (*Replay, bool) {
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	rep, err := h.mgr.Open(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return nil, false
		}
		h.log.Error("open session failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadGateway)
		return nil, false
	}
	return rep, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
