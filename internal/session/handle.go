package session

import (
	"errors"
	gosync "sync"
)

const (
	trackPrimary   = "primary"
	trackSecondary = "secondary"
)

// ErrAutoplayRejected reports that the client's host policy refused the last
// play command; the controller retries on subsequent progress.
var ErrAutoplayRejected = errors.New("playback start rejected by host")

// remoteHandle is a PlaybackHandle whose real media element lives in the
// browser. Commands go out through the hub; state comes back from client
// progress reports. Between a command and the next report the handle assumes
// the command took effect, so the controller's view stays consistent.
type remoteHandle struct {
	hub   *Hub
	track string

	mu       gosync.Mutex
	position float64
	duration float64
	paused   bool
	rejected bool
}

func newRemoteHandle(hub *Hub, track string, duration float64) *remoteHandle {
	return &remoteHandle{hub: hub, track: track, duration: duration, paused: true}
}

// report applies a client progress report.
func (h *remoteHandle) report(position, duration float64, paused bool) {
	h.mu.Lock()
	h.position = position
	if duration > 0 {
		h.duration = duration
	}
	h.paused = paused
	if !paused {
		h.rejected = false
	}
	h.mu.Unlock()
}

// markRejected records a client-side autoplay rejection.
func (h *remoteHandle) markRejected() {
	h.mu.Lock()
	h.rejected = true
	h.paused = true
	h.mu.Unlock()
}

func (h *remoteHandle) Seek(seconds float64) {
	h.mu.Lock()
	h.position = seconds
	h.mu.Unlock()
	h.hub.PublishCommand(h.track, "seek", seconds)
}

func (h *remoteHandle) Play() error {
	h.hub.PublishCommand(h.track, "play", 0)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rejected {
		return ErrAutoplayRejected
	}
	h.paused = false
	return nil
}

func (h *remoteHandle) Pause() {
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
	h.hub.PublishCommand(h.track, "pause", 0)
}

func (h *remoteHandle) SetRate(rate float64) {
	h.hub.PublishCommand(h.track, "rate", rate)
}

func (h *remoteHandle) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position
}

func (h *remoteHandle) Duration() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.duration
}

func (h *remoteHandle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}
