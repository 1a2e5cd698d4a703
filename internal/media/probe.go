// Package media shells out to ffprobe for duration, dimension and
// creation-time metadata of a recording.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Info is the probe result for one media file. Duration is 0 when the
// container does not report one.
type Info struct {
	Duration     float64   `json:"duration"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	FPS          float64   `json:"fps"`
	CreationTime time.Time `json:"creation_time"`
	HasAudio     bool      `json:"has_audio"`
}

// ErrProbeFailed wraps ffprobe process failures.
var ErrProbeFailed = errors.New("media probe failed")

// Probe runs ffprobe on path and parses its JSON output.
func Probe(ctx context.Context, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	return ParseProbeOutput(out)
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
	Tags       struct {
		CreationTime string `json:"creation_time"`
	} `json:"tags"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	Tags     struct {
		CreationTime string `json:"creation_time"`
	} `json:"tags"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

// ParseProbeOutput converts ffprobe's JSON into an Info. It is tolerant:
// missing fields yield zero values, only undecodable JSON is an error.
func ParseProbeOutput(data []byte) (Info, error) {
	var po probeOutput
	if err := json.Unmarshal(data, &po); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}

	var info Info
	if d, err := strconv.ParseFloat(po.Format.Duration, 64); err == nil && d > 0 {
		info.Duration = d
	}
	if t := parseCreationTime(po.Format.Tags.CreationTime); !t.IsZero() {
		info.CreationTime = t
	}

	for _, s := range po.Streams {
		switch s.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width = s.Width
				info.Height = s.Height
				info.FPS = parseFrameRate(s.RFrameRate)
				if info.CreationTime.IsZero() {
					info.CreationTime = parseCreationTime(s.Tags.CreationTime)
				}
			}
		case "audio":
			info.HasAudio = true
		}
	}
	return info, nil
}

// parseFrameRate decodes ffprobe's rational frame rate ("30000/1001").
func parseFrameRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		f, _ := strconv.ParseFloat(rate, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseCreationTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
