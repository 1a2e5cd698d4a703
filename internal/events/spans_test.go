package events

import (
	"math"
	"testing"
)

func windowChange(id int64, seconds float64, title string) TimelineEvent {
	return TimelineEvent{
		ID:          id,
		Type:        TypeActiveWindowChanged,
		Seconds:     seconds,
		WindowTitle: title,
	}
}

func TestBuildWindowSpans_partition_covers_timeline(t *testing.T) {
	evts := []TimelineEvent{
		windowChange(1, 2.0, "browser"),
		windowChange(2, 5.5, "editor"),
		windowChange(3, 9.0, "terminal"),
	}
	spans := BuildWindowSpans(evts, 12.0)

	if spans[0].Start != 0 {
		t.Errorf("first span must start at 0, got %v", spans[0].Start)
	}
	if spans[len(spans)-1].End != 12.0 {
		t.Errorf("last span must end at timeline end, got %v", spans[len(spans)-1].End)
	}
	for i := 1; i < len(spans); i++ {
		if math.Abs(spans[i].Start-spans[i-1].End) > 1e-9 {
			t.Errorf("spans %d/%d not contiguous: %v != %v", i-1, i, spans[i-1].End, spans[i].Start)
		}
		if spans[i].Start < spans[i-1].Start {
			t.Errorf("spans out of order at %d", i)
		}
	}
	for _, s := range spans {
		if s.End <= s.Start {
			t.Errorf("zero or negative width span: %+v", s)
		}
	}
}

func TestBuildWindowSpans_names_follow_changes(t *testing.T) {
	evts := []TimelineEvent{
		windowChange(1, 0.0, "browser"),
		windowChange(2, 4.0, "editor"),
	}
	spans := BuildWindowSpans(evts, 10.0)
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d: %+v", len(spans), spans)
	}
	if spans[0].WindowName != "browser" || spans[1].WindowName != "editor" {
		t.Errorf("span names wrong: %+v", spans)
	}
	if spans[1].End != 10.0 {
		t.Errorf("last span should extend to timeline end: %+v", spans[1])
	}
}

func TestBuildWindowSpans_fallback_single_span(t *testing.T) {
	evts := []TimelineEvent{
		{ID: 1, Type: TypeMouseClick, Seconds: 1.0, ProcessName: "code.exe"},
	}
	spans := BuildWindowSpans(evts, 8.0)
	if len(spans) != 1 {
		t.Fatalf("expected single fallback span, got %d", len(spans))
	}
	if spans[0].Start != 0 || spans[0].End != 8.0 {
		t.Errorf("fallback span must cover whole timeline: %+v", spans[0])
	}
	if spans[0].WindowName != "code.exe" {
		t.Errorf("fallback span should use first event identity, got %q", spans[0].WindowName)
	}
}

func TestBuildWindowSpans_no_events(t *testing.T) {
	spans := BuildWindowSpans(nil, 5.0)
	if len(spans) != 1 || spans[0].Start != 0 || spans[0].End != 5.0 {
		t.Errorf("expected one unknown-window span over [0,5]: %+v", spans)
	}
}

func TestBuildWindowSpans_change_past_timeline_end(t *testing.T) {
	evts := []TimelineEvent{
		windowChange(1, 1.0, "browser"),
		windowChange(2, 99.0, "editor"), // beyond timeline end
	}
	spans := BuildWindowSpans(evts, 4.0)
	last := spans[len(spans)-1]
	if last.End != 4.0 {
		t.Errorf("spans must clamp to timeline end: %+v", spans)
	}
	for _, s := range spans {
		if s.WindowName == "editor" {
			t.Errorf("zero-width clamped span should be dropped: %+v", spans)
		}
	}
}
