package events

import "sort"

// BuildWindowSpans partitions [0, timelineEnd] into contiguous spans bounded
// by active_window_changed events. Span i runs from its event's time to the
// next boundary (or timelineEnd for the last). When no window-change events
// exist, a single fallback span covers the whole timeline using the first
// event's window identity. Zero-width spans after clamping are dropped.
func BuildWindowSpans(evts []TimelineEvent, timelineEnd float64) []WindowSpan {
	if timelineEnd < 0 {
		timelineEnd = 0
	}

	var changes []TimelineEvent
	for _, e := range evts {
		if e.Type == TypeActiveWindowChanged {
			changes = append(changes, e)
		}
	}
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Seconds < changes[j].Seconds
	})

	if len(changes) == 0 {
		name := "unknown window"
		if len(evts) > 0 {
			first := evts[0]
			name = WindowName(first.WindowTitle, first.WindowClass, first.ProcessName)
		}
		return []WindowSpan{{ID: 0, WindowName: name, Start: 0, End: timelineEnd}}
	}

	spans := make([]WindowSpan, 0, len(changes)+1)

	// The region before the first change belongs to whatever was active at
	// timeline zero; the first change event itself names the window it
	// switched to, so the lead-in span borrows the first event's identity.
	if changes[0].Seconds > 0 {
		lead := WindowName(evts[0].WindowTitle, evts[0].WindowClass, evts[0].ProcessName)
		spans = append(spans, WindowSpan{ID: 0, WindowName: lead, Start: 0, End: clampSpan(changes[0].Seconds, timelineEnd)})
	}

	for i, c := range changes {
		start := clampSpan(c.Seconds, timelineEnd)
		end := timelineEnd
		if i+1 < len(changes) {
			end = clampSpan(changes[i+1].Seconds, timelineEnd)
		}
		spans = append(spans, WindowSpan{
			ID:         c.ID,
			WindowName: WindowName(c.WindowTitle, c.WindowClass, c.ProcessName),
			Start:      start,
			End:        end,
		})
	}

	// Drop zero-width spans produced by clamping or duplicate boundaries.
	out := spans[:0]
	for _, s := range spans {
		if s.End > s.Start {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		last := changes[len(changes)-1]
		return []WindowSpan{{
			ID:         last.ID,
			WindowName: WindowName(last.WindowTitle, last.WindowClass, last.ProcessName),
			Start:      0,
			End:        timelineEnd,
		}}
	}
	return out
}

func clampSpan(v, end float64) float64 {
	if v < 0 {
		return 0
	}
	if v > end {
		return end
	}
	return v
}
