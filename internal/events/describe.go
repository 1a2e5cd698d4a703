package events

import (
	"fmt"
	"strings"
)

// Describe synthesizes the short human-readable string shown on the timeline
// for one event. It never fails: unknown types and malformed payloads fall
// back to the event type itself.
func Describe(eventType string, p Payload, windowTitle, windowClass, processName string) string {
	if p.Malformed {
		return genericDescription(eventType)
	}
	switch eventType {
	case TypeKeyShortcut:
		if p.Key == "" {
			return "Shortcut"
		}
		parts := append(append([]string{}, p.Modifiers...), p.Key)
		return strings.Join(parts, "+")
	case TypeKeyDown:
		if p.Key == "" {
			return "Key press"
		}
		return "Key: " + p.Key
	case TypeKeyUp:
		if p.Key == "" {
			return "Key release"
		}
		return "Key up: " + p.Key
	case TypeTyped:
		return "Typed: " + p.Text
	case TypeMouseClick:
		button := p.Button
		if button == "" {
			button = "click"
		}
		return fmt.Sprintf("Mouse %s at (%d, %d)", button, p.X, p.Y)
	case TypeMouseMove:
		return fmt.Sprintf("Mouse move to (%d, %d)", p.X, p.Y)
	case TypeMouseScroll:
		direction := "down"
		if p.Delta > 0 {
			direction = "up"
		}
		return fmt.Sprintf("Scroll %s at (%d, %d)", direction, p.X, p.Y)
	case TypeActiveWindowChanged:
		return "Switched to " + WindowName(windowTitle, windowClass, processName)
	case TypeWindowRectChanged:
		return "Window moved or resized"
	case TypeSnapshot:
		return "Snapshot"
	case TypeSessionStart:
		return "Session started"
	case TypeSessionStop:
		return "Session stopped"
	default:
		return genericDescription(eventType)
	}
}

// WindowName picks the display identity of a window: title, then class, then
// process name, then a placeholder.
func WindowName(title, class, process string) string {
	if title != "" {
		return title
	}
	if class != "" {
		return class
	}
	if process != "" {
		return process
	}
	return "unknown window"
}

func genericDescription(eventType string) string {
	if eventType == "" {
		return "event"
	}
	return strings.ReplaceAll(eventType, "_", " ")
}

// searchBlob builds the lowercased filter text for an event.
func searchBlob(e TimelineEvent) string {
	parts := []string{e.Description, e.WindowTitle, e.WindowClass, e.ProcessName, e.Type}
	joined := strings.Join(parts, " ")
	return strings.ToLower(strings.Join(strings.Fields(joined), " "))
}
