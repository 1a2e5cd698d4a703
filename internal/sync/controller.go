// Package sync keeps two independently playing media tracks phase-locked to a
// single logical timeline clock under drift, pre-roll and user-seek
// conditions. The primary (video) track defines the timeline through the
// frame-sample mapping; the secondary (audio) track relates to timeline time
// through a combined base+manual offset. Whichever track last advanced is
// momentarily authoritative; the other is corrected toward it inside a drift
// tolerance band so micro-seeks never thrash audibly.
package sync

import (
	"log/slog"
	"math"
	"sync"

	"session-replay/internal/platform/metrics"
	"session-replay/internal/timeline"
)

// Default drift tolerances. A secondary correction below 120ms would cause
// audible stutter; the primary tolerates slightly more before re-seeking.
const (
	DefaultSecondaryDriftTolerance = 0.120
	DefaultPrimaryDriftTolerance   = 0.180
)

// Config carries the controller's tuning constants. Zero values take defaults.
type Config struct {
	SecondaryDriftTolerance float64
	PrimaryDriftTolerance   float64
}

// Controller owns the primary and secondary playback handles and the
// authoritative timeline position. All methods are safe for concurrent use;
// internally a single mutex serializes the two progress listeners so they can
// never interleave.
type Controller struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	primary   PlaybackHandle
	secondary PlaybackHandle
	samples   []timeline.FrameSample

	baseOffset   float64
	manualOffset float64

	timelinePos      float64
	secondaryDesired bool
	secondaryPending bool
	preRoll          bool
	reconciling      bool

	onPosition func(seconds float64)
}

// New builds a Controller over the two handles. Metrics and log may be nil.
func New(primary, secondary PlaybackHandle, cfg Config, log *slog.Logger, m *metrics.Metrics) *Controller {
	if cfg.SecondaryDriftTolerance <= 0 {
		cfg.SecondaryDriftTolerance = DefaultSecondaryDriftTolerance
	}
	if cfg.PrimaryDriftTolerance <= 0 {
		cfg.PrimaryDriftTolerance = DefaultPrimaryDriftTolerance
	}
	return &Controller{
		cfg:       cfg,
		log:       log,
		metrics:   m,
		primary:   primary,
		secondary: secondary,
	}
}

// Attach resets all controller state for a new media resource: the frame
// samples defining the timeline and the metadata-derived base offset. The
// manual offset is preserved across attaches, matching how a user-tuned
// alignment carries over when the same session reloads.
func (c *Controller) Attach(samples []timeline.FrameSample, baseOffsetSeconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = timeline.DedupSamples(samples)
	c.baseOffset = baseOffsetSeconds
	c.timelinePos = 0
	c.secondaryDesired = false
	c.secondaryPending = false
	c.preRoll = false
}

// SetPositionListener registers the subscriber for authoritative timeline
// position updates. Called with the controller unlocked.
func (c *Controller) SetPositionListener(fn func(seconds float64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPosition = fn
}

// SetManualOffset updates the user-adjustable part of the combined offset and
// reconciles the secondary track against the new alignment immediately.
func (c *Controller) SetManualOffset(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manualOffset = seconds
	c.reconcileSecondaryLocked(c.timelinePos, c.secondaryDesired)
}

// CombinedOffset returns base + manual offset: how secondary native time
// relates to timeline time.
func (c *Controller) CombinedOffset() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseOffset + c.manualOffset
}

// Position returns the last-known authoritative timeline position.
func (c *Controller) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timelinePos
}

// TimelineEnd returns the timeline position of the last frame sample.
func (c *Controller) TimelineEnd() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return timeline.End(c.samples)
}

// Seek moves the whole session to a timeline position. The target is clamped
// into the timeline, the primary handle is commanded to the mapped media
// position, and the secondary is reconciled (which may enter pre-roll when
// the offset puts its target before its first sample).
func (c *Controller) Seek(timelineTarget float64, autoplay bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if math.IsNaN(timelineTarget) || math.IsInf(timelineTarget, 0) {
		timelineTarget = 0
	}
	if end := timeline.End(c.samples); timelineTarget > end {
		timelineTarget = end
	}
	if timelineTarget < 0 {
		timelineTarget = 0
	}

	c.primary.Seek(timeline.ToMedia(timelineTarget, c.primary.Duration(), c.samples))
	c.timelinePos = timelineTarget
	c.publishLocked(timelineTarget)

	// A seek while the primary is already playing keeps the secondary
	// desired, otherwise the next progress tick would pause what this
	// reconcile just started.
	wantPlay := autoplay || !c.primary.Paused()
	c.secondaryDesired = wantPlay
	if c.metrics != nil {
		c.metrics.IncSyncSeeks()
	}
	c.reconcileSecondaryLocked(timelineTarget, wantPlay)
}

// TogglePlayback flips between playing and paused; play failures on the
// primary are returned, pause never fails.
func (c *Controller) TogglePlayback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.primary.Paused() {
		return c.playLocked()
	}
	c.pauseLocked()
	return nil
}

// OnPrimaryPlay reacts to the primary track starting: the primary rate is
// scaled by mediaDuration/timelineDuration so a timeline presented at a
// different duration than the raw media still reaches its end in sync, and
// the secondary is asked to follow.
func (c *Controller) OnPrimaryPlay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyRateLocked()
	c.secondaryDesired = true
	c.reconcileSecondaryLocked(c.timelinePos, true)
}

// OnPrimaryPause reacts to the primary track pausing: the secondary always
// pauses with it and any pending play attempt is abandoned.
func (c *Controller) OnPrimaryPause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secondaryDesired = false
	c.secondaryPending = false
	c.secondary.Pause()
}

// OnPrimaryProgress is the primary-driven sync listener, fired on every
// primary position update. While the secondary is not driving playback the
// derived timeline position is published as authoritative, and the secondary
// is reconciled toward it (which also retries a pending play).
func (c *Controller) OnPrimaryProgress(mediaSeconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconciling {
		return
	}

	tl := timeline.ToTimeline(mediaSeconds, c.primary.Duration(), c.samples)
	if !c.secondaryDrivingLocked() {
		c.timelinePos = tl
		c.publishLocked(tl)
	}
	c.reconcileSecondaryLocked(tl, c.secondaryDesired)
}

// OnSecondaryProgress is the secondary-driven sync listener. When the
// secondary track is genuinely advancing it becomes authoritative: timeline
// position derives from its clock, and the primary is corrected only when its
// drift exceeds the primary tolerance.
func (c *Controller) OnSecondaryProgress(secondarySeconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconciling {
		return
	}
	if !c.secondaryDrivingLocked() {
		return
	}

	tl := secondarySeconds - c.combinedOffsetLocked()
	if tl < 0 {
		tl = 0
	}
	c.timelinePos = tl
	c.publishLocked(tl)

	target := timeline.ToMedia(tl, c.primary.Duration(), c.samples)
	if math.Abs(c.primary.Position()-target) > c.cfg.PrimaryDriftTolerance {
		c.reconciling = true
		c.primary.Seek(target)
		c.reconciling = false
		if c.metrics != nil {
			c.metrics.IncDriftCorrections()
		}
	}
}

func (c *Controller) playLocked() error {
	if err := c.primary.Play(); err != nil {
		return err
	}
	c.applyRateLocked()
	c.secondaryDesired = true
	c.reconcileSecondaryLocked(c.timelinePos, true)
	return nil
}

func (c *Controller) pauseLocked() {
	c.primary.Pause()
	c.secondaryDesired = false
	c.secondaryPending = false
	c.secondary.Pause()
}

// applyRateLocked computes the primary playback-rate multiplier. Rate is 1
// when either duration is unknown or degenerate. The secondary always plays
// at native rate.
func (c *Controller) applyRateLocked() {
	rate := 1.0
	mediaDur := c.primary.Duration()
	timelineDur := timeline.End(c.samples)
	if mediaDur > 0 && timelineDur > 0 {
		rate = mediaDur / timelineDur
	}
	c.primary.SetRate(rate)
	c.secondary.SetRate(1)
}

// secondaryDrivingLocked reports whether the secondary track is actually
// advancing playback (not paused, not pre-rolling, not stuck pending).
func (c *Controller) secondaryDrivingLocked() bool {
	return c.secondaryDesired && !c.secondaryPending && !c.preRoll && !c.secondary.Paused()
}

func (c *Controller) combinedOffsetLocked() float64 {
	return c.baseOffset + c.manualOffset
}

// reconcileSecondaryLocked derives the secondary's desired native position
// from the timeline position and starts, pauses or corrects it accordingly.
// A target at or before zero means the secondary has not started yet: it is
// parked at 0 in pre-roll with the play desire remembered.
func (c *Controller) reconcileSecondaryLocked(timelinePos float64, wantPlay bool) {
	c.reconciling = true
	defer func() { c.reconciling = false }()

	target := timelinePos + c.combinedOffsetLocked()
	if target <= 0 {
		if !c.preRoll {
			c.secondary.Pause()
			c.secondary.Seek(0)
			c.preRoll = true
		}
		c.secondaryDesired = wantPlay
		return
	}

	leavingPreRoll := c.preRoll
	c.preRoll = false

	if dur := c.secondary.Duration(); dur > 0 && target > dur {
		target = dur
	}

	if math.Abs(c.secondary.Position()-target) > c.cfg.SecondaryDriftTolerance {
		c.secondary.Seek(target)
		if !leavingPreRoll && c.metrics != nil {
			c.metrics.IncDriftCorrections()
		}
	}

	if wantPlay && c.secondary.Paused() {
		if err := c.secondary.Play(); err != nil {
			// Host policy rejected the start; keep retrying on subsequent
			// progress updates until it sticks or the user pauses.
			c.secondaryPending = true
			if c.log != nil {
				c.log.Debug("secondary play rejected", slog.String("error", err.Error()))
			}
			return
		}
		c.secondaryPending = false
	} else if !wantPlay && !c.secondary.Paused() {
		c.secondary.Pause()
	}
}

func (c *Controller) publishLocked(seconds float64) {
	if c.onPosition != nil {
		c.onPosition(seconds)
	}
}
