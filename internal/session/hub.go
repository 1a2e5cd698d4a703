package session

import (
	"encoding/json"
	"log/slog"
	"net/http"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// writeWait bounds how long a websocket write may block before the client is
// considered gone.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The review UI runs on a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServerMessage is what the hub pushes to clients: authoritative position
// updates, playback commands for a track, and resource resets.
type ServerMessage struct {
	Type    string  `json:"type"` // "position" | "command" | "reset"
	Seconds float64 `json:"seconds,omitempty"`
	Track   string  `json:"track,omitempty"`
	Action  string  `json:"action,omitempty"` // "seek" | "play" | "pause" | "rate"
	Value   float64 `json:"value,omitempty"`
}

// ClientMessage is what clients report: media element progress, playback
// state transitions, and host-policy rejections.
type ClientMessage struct {
	Type     string  `json:"type"`  // "progress" | "play" | "pause" | "play_rejected"
	Track    string  `json:"track"` // "primary" | "secondary"
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
	Paused   bool    `json:"paused"`
}

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans authoritative position updates and playback commands out to every
// connected review client, and feeds client progress reports back into the
// sync controller.
type Hub struct {
	log *slog.Logger

	mu      gosync.Mutex
	clients map[string]*hubClient
	replay  *Replay
	closed  bool
}

// NewHub returns an empty hub; bind attaches it to its replay once the
// replay's controller exists.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{log: log, clients: make(map[string]*hubClient)}
}

func (h *Hub) bind(r *Replay) {
	h.mu.Lock()
	h.replay = r
	h.mu.Unlock()
}

// PublishPosition pushes an authoritative timeline position to all clients.
func (h *Hub) PublishPosition(seconds float64) {
	h.broadcast(ServerMessage{Type: "position", Seconds: seconds})
}

// PublishCommand pushes a playback command for one track to all clients.
func (h *Hub) PublishCommand(track, action string, value float64) {
	h.broadcast(ServerMessage{Type: "command", Track: track, Action: action, Value: value})
}

// PublishReset tells clients the media resource was swapped and they must
// reload their elements.
func (h *Hub) PublishReset() {
	h.broadcast(ServerMessage{Type: "reset"})
}

func (h *Hub) broadcast(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow client: drop it rather than stall the engine.
			close(c.send)
			delete(h.clients, id)
		}
	}
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

// ServeWS upgrades the request and runs the client's read/write pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &hubClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) writePump(c *hubClient) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (h *Hub) readPump(c *hubClient) {
	defer func() {
		h.mu.Lock()
		if cur, ok := h.clients[c.id]; ok && cur == c {
			close(c.send)
			delete(h.clients, c.id)
		}
		h.mu.Unlock()
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debug("bad client message", slog.String("error", err.Error()))
			continue
		}
		h.dispatch(msg)
	}
}

// dispatch routes one client report into the replay's controller. Progress
// reports update the remote handle first so the controller sees a consistent
// snapshot, then fire the matching sync listener.
func (h *Hub) dispatch(msg ClientMessage) {
	h.mu.Lock()
	r := h.replay
	h.mu.Unlock()
	if r == nil {
		return
	}

	var handle *remoteHandle
	switch msg.Track {
	case trackPrimary:
		handle = r.primary
	case trackSecondary:
		handle = r.secondary
	default:
		return
	}

	switch msg.Type {
	case "progress":
		handle.report(msg.Position, msg.Duration, msg.Paused)
		if msg.Track == trackPrimary {
			r.Controller.OnPrimaryProgress(msg.Position)
		} else {
			r.Controller.OnSecondaryProgress(msg.Position)
		}
	case "play":
		handle.report(msg.Position, msg.Duration, false)
		if msg.Track == trackPrimary {
			r.Controller.OnPrimaryPlay()
		}
	case "pause":
		handle.report(msg.Position, msg.Duration, true)
		if msg.Track == trackPrimary {
			r.Controller.OnPrimaryPause()
		}
	case "play_rejected":
		handle.markRejected()
	}
}
