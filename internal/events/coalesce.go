package events

import "strings"

// printableRune returns the glyph a key_down decodes to, or "" when the key is
// not a single printable character. Space, Tab and Enter count as printable so
// typed runs keep their whitespace.
func printableRune(key string) string {
	switch key {
	case "Space":
		return " "
	case "Tab":
		return "\t"
	case "Enter":
		return "\n"
	}
	if len(key) == 1 {
		r := key[0]
		if r >= 'A' && r <= 'Z' {
			return strings.ToLower(key)
		}
		if r >= '0' && r <= '9' {
			return key
		}
	}
	return ""
}

// CoalesceKeystrokes merges consecutive printable key_down events into single
// synthetic "typed" events. A run stays open while each next key is printable,
// occurs in the same window context, and follows the previous key within
// gapSeconds. Anything else flushes the run; non-coalescable events pass
// through unchanged. Input must be sorted by Seconds.
func CoalesceKeystrokes(evts []TimelineEvent, gapSeconds float64) []TimelineEvent {
	out := make([]TimelineEvent, 0, len(evts))

	var run []TimelineEvent
	var text strings.Builder

	flush := func() {
		if len(run) == 0 {
			return
		}
		if len(run) == 1 {
			out = append(out, run[0])
		} else {
			first := run[0]
			typed := TimelineEvent{
				ID:          first.ID,
				Type:        TypeTyped,
				Seconds:     first.Seconds,
				ProcessName: first.ProcessName,
				WindowTitle: first.WindowTitle,
				WindowClass: first.WindowClass,
				payload:     Payload{Text: text.String()},
			}
			typed.Description = Describe(TypeTyped, typed.payload, typed.WindowTitle, typed.WindowClass, typed.ProcessName)
			typed.SearchBlob = searchBlob(typed)
			out = append(out, typed)
		}
		run = run[:0]
		text.Reset()
	}

	sameWindow := func(a, b TimelineEvent) bool {
		return a.WindowTitle == b.WindowTitle &&
			a.WindowClass == b.WindowClass &&
			a.ProcessName == b.ProcessName
	}

	for _, e := range evts {
		glyph := ""
		if e.Type == TypeKeyDown {
			glyph = printableRune(e.payload.Key)
		}
		if glyph == "" {
			flush()
			out = append(out, e)
			continue
		}
		if len(run) > 0 {
			prev := run[len(run)-1]
			if !sameWindow(prev, e) || e.Seconds-prev.Seconds > gapSeconds {
				flush()
			}
		}
		run = append(run, e)
		text.WriteString(glyph)
	}
	flush()

	return out
}
