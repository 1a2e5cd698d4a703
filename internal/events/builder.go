package events

import (
	"regexp"
	"sort"
	"time"
)

// DefaultCoalesceGapSeconds is the largest gap between consecutive printable
// keystrokes that still merges them into one typed run.
const DefaultCoalesceGapSeconds = 0.7

// Config carries the builder's tuning constants. The zero value is usable;
// NewConfig fills in defaults.
type Config struct {
	// CoalesceGapSeconds breaks a typed run when exceeded.
	CoalesceGapSeconds float64
	// AlignmentOffsetSeconds is the user-adjustable manual shift applied to
	// every event's timeline position.
	AlignmentOffsetSeconds float64
}

// NewConfig returns a Config with defaults applied where cfg is zero.
func NewConfig(cfg Config) Config {
	if cfg.CoalesceGapSeconds <= 0 {
		cfg.CoalesceGapSeconds = DefaultCoalesceGapSeconds
	}
	return cfg
}

// Origin is the set of candidate wall-clock origins for a session, in
// preference order: a timestamp embedded in the recording file name, the
// recording's creation metadata, the first event's wall clock, the session's
// start time. Zero fields are skipped.
type Origin struct {
	FileName     string
	MediaCreated time.Time
	SessionStart int64 // ms since epoch, 0 when unknown
}

var fileNameStamp = regexp.MustCompile(`(\d{8})-(\d{6})`)

// resolveOriginMs picks the wall-clock origin in milliseconds.
func resolveOriginMs(o Origin, evts []RawEvent) int64 {
	if o.FileName != "" {
		if m := fileNameStamp.FindStringSubmatch(o.FileName); m != nil {
			if ts, err := time.ParseInLocation("20060102-150405", m[1]+"-"+m[2], time.Local); err == nil {
				return ts.UnixMilli()
			}
		}
	}
	if !o.MediaCreated.IsZero() {
		return o.MediaCreated.UnixMilli()
	}
	for _, e := range evts {
		if e.WallMs > 0 {
			return e.WallMs
		}
	}
	return o.SessionStart
}

// Result is the output of Build: the coalesced event timeline and its window
// segmentation.
type Result struct {
	Events []TimelineEvent `json:"events"`
	Spans  []WindowSpan    `json:"window_spans"`
}

// Build runs the full pipeline: clock reconciliation against the resolved
// origin, payload decoding, description synthesis, keystroke coalescing, and
// window-span segmentation over [0, timelineEnd]. Events are assumed ordered
// by ID; events landing before timeline zero are kept at clamped position 0 so
// seek-on-click still works for them.
func Build(raw []RawEvent, origin Origin, timelineEnd float64, cfg Config) Result {
	cfg = NewConfig(cfg)
	originMs := resolveOriginMs(origin, raw)

	// A monotonic clock is immune to system clock adjustments, so once one
	// event carries both clocks every event with a mono stamp is placed via
	// monoBase instead of its own wall stamp.
	var monoBase int64
	haveMonoBase := false
	for _, e := range raw {
		if e.MonoMs > 0 && e.WallMs > 0 {
			monoBase = e.WallMs - e.MonoMs
			haveMonoBase = true
			break
		}
	}

	evts := make([]TimelineEvent, 0, len(raw))
	for _, e := range raw {
		effectiveWall := e.WallMs
		if haveMonoBase && e.MonoMs > 0 {
			effectiveWall = monoBase + e.MonoMs
		}
		seconds := float64(effectiveWall-originMs)/1000.0 + cfg.AlignmentOffsetSeconds
		if seconds < 0 {
			seconds = 0
		}

		te := TimelineEvent{
			ID:          e.ID,
			Type:        e.Type,
			Seconds:     seconds,
			ProcessName: e.ProcessName,
			WindowTitle: e.WindowTitle,
			WindowClass: e.WindowClass,
			payload:     DecodePayload(e.Payload),
		}
		te.Description = Describe(te.Type, te.payload, te.WindowTitle, te.WindowClass, te.ProcessName)
		te.SearchBlob = searchBlob(te)
		evts = append(evts, te)
	}

	// Clock reconciliation can move events relative to their stored wall
	// order; coalescing and span segmentation need position order.
	sort.SliceStable(evts, func(i, j int) bool { return evts[i].Seconds < evts[j].Seconds })

	evts = CoalesceKeystrokes(evts, cfg.CoalesceGapSeconds)
	spans := BuildWindowSpans(evts, timelineEnd)

	return Result{Events: evts, Spans: spans}
}
