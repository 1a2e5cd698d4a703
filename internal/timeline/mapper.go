// Package timeline maps between the frame-sample-derived timeline time base
// and the native playback position of a decoded media resource.
//
// The ordered sequence of frame samples defines "timeline seconds": sample i
// sits at timeline position samples[i].Seconds. The media resource plays
// continuously over [0, mediaDuration]. Both mapping directions are monotone
// non-decreasing piecewise-linear functions; inputs outside either range clamp
// to the boundary instead of failing, so the UI stays interactive on bad input.
package timeline

import (
	"math"
	"sort"
)

// FrameSample is one sampled frame offset produced by ingest. OffsetIndex is
// the unique ordering key; Seconds is the frame's distance from media start
// and is monotone non-decreasing across the sequence. Timestamp is the raw
// sensor timestamp and may be empty.
type FrameSample struct {
	OffsetIndex int     `json:"offset_index"`
	Timestamp   string  `json:"timestamp"`
	Seconds     float64 `json:"seconds_from_media_start"`
}

// DedupSamples removes consecutive samples that share a timestamp, keeping the
// first occurrence. Sensor duplication produces such runs; they would create
// zero-width segments in the mapping. Samples with empty timestamps are kept.
func DedupSamples(samples []FrameSample) []FrameSample {
	if len(samples) < 2 {
		return samples
	}
	out := samples[:1]
	for _, s := range samples[1:] {
		prev := out[len(out)-1]
		if s.Timestamp != "" && s.Timestamp == prev.Timestamp {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ToTimeline converts a native media position to timeline seconds.
//
// mediaSeconds is located as a fraction of [0, mediaDuration], scaled onto the
// sample index range, and the bracketing samples' Seconds are interpolated.
// Degenerate inputs (fewer than two samples, non-positive duration, non-finite
// position) make this the identity clamped to >= 0.
func ToTimeline(mediaSeconds, mediaDuration float64, samples []FrameSample) float64 {
	if !isFinite(mediaSeconds) {
		return 0
	}
	if len(samples) < 2 || mediaDuration <= 0 {
		return math.Max(0, mediaSeconds)
	}

	frac := mediaSeconds / mediaDuration
	if frac <= 0 {
		return samples[0].Seconds
	}
	if frac >= 1 {
		return samples[len(samples)-1].Seconds
	}

	pos := frac * float64(len(samples)-1)
	lo := int(math.Floor(pos))
	hi := lo + 1
	if hi > len(samples)-1 {
		return samples[len(samples)-1].Seconds
	}
	t := pos - float64(lo)
	return samples[lo].Seconds + t*(samples[hi].Seconds-samples[lo].Seconds)
}

// ToMedia converts timeline seconds back to a native media position.
//
// Values below the first sample clamp to 0 and above the last sample to
// mediaDuration. Interior values binary-search the bracketing sample pair by
// Seconds and interpolate the matching fraction of [0, mediaDuration]. An
// exact sample hit short-circuits to the proportional position so repeated
// round-trips do not accumulate float drift.
func ToMedia(timelineSeconds, mediaDuration float64, samples []FrameSample) float64 {
	if !isFinite(timelineSeconds) {
		return 0
	}
	if len(samples) == 0 {
		return math.Max(0, timelineSeconds)
	}
	if len(samples) < 2 || mediaDuration <= 0 {
		return clamp(timelineSeconds, 0, math.Max(0, mediaDuration))
	}

	last := len(samples) - 1
	if timelineSeconds <= samples[0].Seconds {
		return 0
	}
	if timelineSeconds >= samples[last].Seconds {
		return mediaDuration
	}

	// sort.Search finds the first sample with Seconds >= target.
	hi := sort.Search(len(samples), func(i int) bool {
		return samples[i].Seconds >= timelineSeconds
	})
	if hi <= 0 {
		return 0
	}
	if samples[hi].Seconds == timelineSeconds {
		return float64(hi) / float64(last) * mediaDuration
	}
	lo := hi - 1

	span := samples[hi].Seconds - samples[lo].Seconds
	t := 0.0
	if span > 0 {
		t = (timelineSeconds - samples[lo].Seconds) / span
	}
	pos := float64(lo) + t
	return pos / float64(last) * mediaDuration
}

// End returns the timeline position of the last sample, or 0 when empty.
func End(samples []FrameSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	return samples[len(samples)-1].Seconds
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
