package sync

import (
	"errors"
	"math"
	"testing"

	"session-replay/internal/timeline"
)

// fakeHandle records commands issued by the controller.
type fakeHandle struct {
	position float64
	duration float64
	paused   bool
	rate     float64

	seeks      []float64
	playCalls  int
	pauseCalls int
	playErr    error
}

func (h *fakeHandle) Seek(seconds float64) {
	h.seeks = append(h.seeks, seconds)
	h.position = seconds
}

func (h *fakeHandle) Play() error {
	h.playCalls++
	if h.playErr != nil {
		return h.playErr
	}
	h.paused = false
	return nil
}

func (h *fakeHandle) Pause() {
	h.pauseCalls++
	h.paused = true
}

func (h *fakeHandle) SetRate(rate float64) { h.rate = rate }
func (h *fakeHandle) Position() float64    { return h.position }
func (h *fakeHandle) Duration() float64    { return h.duration }
func (h *fakeHandle) Paused() bool         { return h.paused }

func linearSamples(n int, step float64) []timeline.FrameSample {
	samples := make([]timeline.FrameSample, n)
	for i := range samples {
		samples[i] = timeline.FrameSample{OffsetIndex: i, Seconds: float64(i) * step}
	}
	return samples
}

// newTestController builds a controller over a 10s primary whose timeline is
// also 10s (identity mapping) and a 10s secondary, both initially paused.
func newTestController(t *testing.T, baseOffset float64) (*Controller, *fakeHandle, *fakeHandle) {
	t.Helper()
	primary := &fakeHandle{duration: 10, paused: true}
	secondary := &fakeHandle{duration: 10, paused: true}
	c := New(primary, secondary, Config{}, nil, nil)
	c.Attach(linearSamples(11, 1.0), baseOffset)
	return c, primary, secondary
}

func TestSeek_moves_primary_and_secondary(t *testing.T) {
	c, primary, secondary := newTestController(t, 0)
	c.Seek(4.0, false)

	if len(primary.seeks) != 1 || math.Abs(primary.seeks[0]-4.0) > 1e-9 {
		t.Errorf("primary seeks = %v, want [4.0]", primary.seeks)
	}
	if len(secondary.seeks) != 1 || math.Abs(secondary.seeks[0]-4.0) > 1e-9 {
		t.Errorf("secondary seeks = %v, want [4.0]", secondary.seeks)
	}
	if c.Position() != 4.0 {
		t.Errorf("position = %v, want 4.0", c.Position())
	}
}

func TestSeek_clamps_target(t *testing.T) {
	c, primary, _ := newTestController(t, 0)
	c.Seek(99, false)
	if c.Position() != 10.0 {
		t.Errorf("position = %v, want clamp to timeline end 10.0", c.Position())
	}
	c.Seek(-5, false)
	if c.Position() != 0 {
		t.Errorf("position = %v, want 0", c.Position())
	}
	c.Seek(math.NaN(), false)
	if c.Position() != 0 {
		t.Errorf("NaN seek should land at 0, got %v", c.Position())
	}
	for _, s := range primary.seeks {
		if s < 0 || s > 10 {
			t.Errorf("primary commanded outside media range: %v", s)
		}
	}
}

func TestSeek_while_playing_keeps_secondary_playing(t *testing.T) {
	c, primary, secondary := newTestController(t, 0)
	// Playback was started by the client itself, so no play command ever
	// went through the controller.
	primary.paused = false

	c.Seek(4.0, false)
	if secondary.paused {
		t.Fatal("seek during playback should start the secondary")
	}

	primary.position = 4.1
	secondary.position = 4.1
	c.OnPrimaryProgress(4.1)
	if secondary.paused {
		t.Errorf("progress tick paused the secondary the seek just started, pauses=%d", secondary.pauseCalls)
	}
}

func TestSeek_skips_small_secondary_drift(t *testing.T) {
	c, _, secondary := newTestController(t, 0)
	secondary.position = 4.05 // 50ms off the 4.0 target, under the 120ms band
	c.Seek(4.0, false)
	if len(secondary.seeks) != 0 {
		t.Errorf("micro-seek should be suppressed, got %v", secondary.seeks)
	}
}

func TestPreRoll_holds_secondary_until_reachable(t *testing.T) {
	// Secondary starts 2s after timeline zero: combined offset -2.0 under
	// secondary_time = timeline_time + offset.
	c, _, secondary := newTestController(t, -2.0)

	c.Seek(0, true)
	if !secondary.paused {
		t.Fatal("secondary must stay paused in pre-roll")
	}
	if secondary.position != 0 {
		t.Fatalf("secondary must be parked at 0, got %v", secondary.position)
	}
	if secondary.playCalls != 0 {
		t.Fatal("secondary must not start before the pre-roll region ends")
	}
	preRollSeeks := len(secondary.seeks)

	// Primary advances through the pre-roll region.
	for _, pos := range []float64{0.5, 1.0, 1.5, 1.9} {
		c.OnPrimaryProgress(pos)
		if !secondary.paused {
			t.Fatalf("secondary started early at primary position %v", pos)
		}
	}

	// Timeline reaches 2.0: the secondary starts, and without a seek larger
	// than the drift tolerance (it is already at 0, the exact target).
	c.OnPrimaryProgress(2.05)
	if secondary.paused {
		t.Fatal("secondary should be playing after pre-roll")
	}
	for _, s := range secondary.seeks[preRollSeeks:] {
		if math.Abs(s-0.05) > DefaultSecondaryDriftTolerance {
			t.Errorf("pre-roll exit issued an out-of-band seek to %v", s)
		}
	}
}

func TestPrimaryProgress_publishes_position(t *testing.T) {
	c, _, _ := newTestController(t, 0)
	var published []float64
	c.SetPositionListener(func(s float64) { published = append(published, s) })

	c.OnPrimaryProgress(3.0)
	if len(published) == 0 || published[len(published)-1] != 3.0 {
		t.Errorf("published = %v, want trailing 3.0", published)
	}
}

func TestSecondaryProgress_drives_timeline_when_playing(t *testing.T) {
	c, primary, secondary := newTestController(t, 1.0)
	c.Seek(2.0, true)
	if secondary.paused {
		t.Fatal("secondary should be playing")
	}

	var published []float64
	c.SetPositionListener(func(s float64) { published = append(published, s) })

	// Secondary at 5.5 with offset +1.0 puts the timeline at 4.5.
	c.OnSecondaryProgress(5.5)
	if len(published) == 0 || published[len(published)-1] != 4.5 {
		t.Errorf("published = %v, want trailing 4.5", published)
	}
	if c.Position() != 4.5 {
		t.Errorf("position = %v, want 4.5", c.Position())
	}

	// Primary was at 2.0, target 4.5: drift 2.5s > 180ms, so it is corrected.
	if primary.position != 4.5 {
		t.Errorf("primary should be corrected to 4.5, got %v", primary.position)
	}
}

func TestSecondaryProgress_within_tolerance_no_primary_seek(t *testing.T) {
	c, primary, secondary := newTestController(t, 0)
	c.Seek(4.0, true)
	if secondary.paused {
		t.Fatal("secondary should be playing")
	}
	primarySeeks := len(primary.seeks)

	primary.position = 4.1
	c.OnSecondaryProgress(4.0) // timeline 4.0, drift 100ms < 180ms
	if len(primary.seeks) != primarySeeks {
		t.Errorf("primary re-seek inside tolerance band: %v", primary.seeks)
	}
}

func TestSecondaryProgress_ignored_while_paused(t *testing.T) {
	c, _, _ := newTestController(t, 0)
	var published []float64
	c.SetPositionListener(func(s float64) { published = append(published, s) })

	c.OnSecondaryProgress(7.0)
	if len(published) != 0 {
		t.Errorf("paused secondary must not publish positions: %v", published)
	}
}

func TestPause_propagates_to_secondary(t *testing.T) {
	c, primary, secondary := newTestController(t, 0)
	c.Seek(1.0, true)
	if secondary.paused {
		t.Fatal("secondary should be playing after autoplay seek")
	}

	primary.paused = false
	if err := c.TogglePlayback(); err != nil {
		t.Fatal(err)
	}
	if !primary.paused || !secondary.paused {
		t.Error("toggle from playing must pause both tracks")
	}
}

func TestPendingPlay_retries_until_success(t *testing.T) {
	c, _, secondary := newTestController(t, 0)
	secondary.playErr = errors.New("autoplay rejected")

	c.Seek(1.0, true)
	if !secondary.paused {
		t.Fatal("rejected play must leave secondary paused")
	}
	first := secondary.playCalls
	if first == 0 {
		t.Fatal("expected a play attempt")
	}

	// Still rejected on the next progress updates.
	c.OnPrimaryProgress(1.5)
	c.OnPrimaryProgress(2.0)
	if secondary.playCalls <= first {
		t.Error("controller must keep retrying a pending play")
	}

	// Host policy relents.
	secondary.playErr = nil
	c.OnPrimaryProgress(2.5)
	if secondary.paused {
		t.Error("secondary should start once play succeeds")
	}
}

func TestPendingPlay_abandoned_on_pause(t *testing.T) {
	c, primary, secondary := newTestController(t, 0)
	secondary.playErr = errors.New("autoplay rejected")
	c.Seek(1.0, true)

	primary.paused = false
	if err := c.TogglePlayback(); err != nil {
		t.Fatal(err)
	}
	calls := secondary.playCalls
	c.OnPrimaryProgress(1.5)
	if secondary.playCalls != calls {
		t.Error("pause must stop pending-play retries")
	}
}

func TestPlaybackRate_scales_primary_only(t *testing.T) {
	primary := &fakeHandle{duration: 20, paused: true}
	secondary := &fakeHandle{duration: 10, paused: true}
	c := New(primary, secondary, Config{}, nil, nil)
	c.Attach(linearSamples(11, 1.0), 0) // timeline duration 10s, media 20s

	c.OnPrimaryPlay()
	if math.Abs(primary.rate-2.0) > 1e-9 {
		t.Errorf("primary rate = %v, want 2.0 (media 20s over timeline 10s)", primary.rate)
	}
	if secondary.rate != 1.0 {
		t.Errorf("secondary rate must stay 1, got %v", secondary.rate)
	}
}

func TestPlaybackRate_degenerate_durations(t *testing.T) {
	primary := &fakeHandle{duration: 0, paused: true}
	secondary := &fakeHandle{duration: 10, paused: true}
	c := New(primary, secondary, Config{}, nil, nil)
	c.Attach(nil, 0)

	c.OnPrimaryPlay()
	if primary.rate != 1.0 {
		t.Errorf("unknown durations must give rate 1, got %v", primary.rate)
	}
}

func TestManualOffset_shifts_secondary_target(t *testing.T) {
	c, _, secondary := newTestController(t, 1.0)
	c.Seek(3.0, false)
	if secondary.position != 4.0 {
		t.Fatalf("secondary at %v, want 4.0 (base offset 1.0)", secondary.position)
	}

	c.SetManualOffset(0.5)
	if c.CombinedOffset() != 1.5 {
		t.Errorf("combined offset = %v, want 1.5", c.CombinedOffset())
	}
	if secondary.position != 4.5 {
		t.Errorf("manual offset change should reconcile secondary to 4.5, got %v", secondary.position)
	}
}

func TestAttach_resets_state(t *testing.T) {
	c, _, secondary := newTestController(t, 0)
	secondary.playErr = errors.New("rejected")
	c.Seek(5.0, true)

	c.Attach(linearSamples(6, 1.0), 0)
	if c.Position() != 0 {
		t.Errorf("attach must reset position, got %v", c.Position())
	}
	secondary.playErr = nil
	calls := secondary.playCalls
	c.OnPrimaryProgress(1.0)
	if secondary.playCalls != calls {
		t.Error("attach must clear the play desire from the previous session")
	}
}
