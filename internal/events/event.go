// Package events reconstructs a single logical event timeline from the
// recorder's raw event rows: clock reconciliation, description synthesis,
// keystroke coalescing, and window-span segmentation.
package events

import "encoding/json"

// Event types emitted by the recorder.
const (
	TypeKeyDown             = "key_down"
	TypeKeyUp               = "key_up"
	TypeKeyShortcut         = "key_shortcut"
	TypeMouseClick          = "mouse_click"
	TypeMouseMove           = "mouse_move"
	TypeMouseScroll         = "mouse_scroll"
	TypeActiveWindowChanged = "active_window_changed"
	TypeWindowRectChanged   = "window_rect_changed"
	TypeSnapshot            = "snapshot"
	TypeSessionStart        = "session_start"
	TypeSessionStop         = "session_stop"
	TypeTyped               = "typed" // synthetic, produced by coalescing
)

// RawEvent is one recorder row, ordered by ID. WallMs and MonoMs are the two
// capture clocks; MonoMs is 0 when the recorder did not supply one.
type RawEvent struct {
	ID          int64           `json:"id"`
	SessionID   string          `json:"session_id"`
	WallMs      int64           `json:"ts_wall_ms"`
	MonoMs      int64           `json:"ts_mono_ms"`
	Type        string          `json:"event_type"`
	ProcessName string          `json:"process_name"`
	WindowTitle string          `json:"window_title"`
	WindowClass string          `json:"window_class"`
	Payload     json.RawMessage `json:"payload"`
}

// Payload is the decoded form of a raw event's payload JSON, keyed by event
// type. Only the fields relevant to the event's type are populated; decoding
// happens once at ingestion rather than per description call.
type Payload struct {
	Key       string   // key_down, key_up, key_shortcut
	VK        int      // key_down, key_up
	Modifiers []string // key_shortcut
	X, Y      int      // mouse events
	Button    string   // mouse_click
	Delta     int      // mouse_scroll
	Text      string   // typed (synthetic)
	Malformed bool     // payload JSON did not parse
}

// rawPayload matches the recorder's payload JSON superset.
type rawPayload struct {
	Key       string   `json:"key"`
	VK        int      `json:"vk"`
	Modifiers []string `json:"modifiers"`
	X         int      `json:"x"`
	Y         int      `json:"y"`
	Button    string   `json:"button"`
	Delta     int      `json:"delta"`
}

// DecodePayload parses an event's payload JSON into the tagged form. Malformed
// JSON never fails the pipeline; it yields a Payload with Malformed set so the
// description degrades to a generic string.
func DecodePayload(raw json.RawMessage) Payload {
	if len(raw) == 0 {
		return Payload{}
	}
	var rp rawPayload
	if err := json.Unmarshal(raw, &rp); err != nil {
		return Payload{Malformed: true}
	}
	return Payload{
		Key:       rp.Key,
		VK:        rp.VK,
		Modifiers: rp.Modifiers,
		X:         rp.X,
		Y:         rp.Y,
		Button:    rp.Button,
		Delta:     rp.Delta,
	}
}

// TimelineEvent is a raw event placed on the timeline, with a synthesized
// description and a lowercased blob for client-side filtering.
type TimelineEvent struct {
	ID          int64   `json:"id"`
	Type        string  `json:"event_type"`
	Seconds     float64 `json:"timeline_seconds"`
	ProcessName string  `json:"process_name,omitempty"`
	WindowTitle string  `json:"window_title,omitempty"`
	WindowClass string  `json:"window_class,omitempty"`
	Description string  `json:"description"`
	SearchBlob  string  `json:"search_blob"`

	payload Payload
}

// WindowSpan is a maximal contiguous timeline interval during which one window
// is considered active. Spans partition [0, timeline_end] without overlap.
type WindowSpan struct {
	ID         int64   `json:"id"`
	WindowName string  `json:"window_name"`
	Start      float64 `json:"start_seconds"`
	End        float64 `json:"end_seconds"`
}
