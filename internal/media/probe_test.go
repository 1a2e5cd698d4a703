package media

import (
	"math"
	"testing"
)

const sampleProbe = `{
  "streams": [
    {
      "codec_type": "video",
      "width": 1920,
      "height": 1080,
      "r_frame_rate": "30000/1001",
      "tags": {"creation_time": "2025-09-09T17:13:30.000000Z"}
    },
    {
      "codec_type": "audio",
      "r_frame_rate": "0/0"
    }
  ],
  "format": {
    "duration": "642.517000",
    "tags": {"creation_time": "2025-09-09T17:13:30.000000Z"}
  }
}`

func TestParseProbeOutput(t *testing.T) {
	info, err := ParseProbeOutput([]byte(sampleProbe))
	if err != nil {
		t.Fatalf("ParseProbeOutput: %v", err)
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Errorf("dimensions = %dx%d, want 1920x1080", info.Width, info.Height)
	}
	if math.Abs(info.Duration-642.517) > 1e-6 {
		t.Errorf("duration = %v, want 642.517", info.Duration)
	}
	if math.Abs(info.FPS-30000.0/1001.0) > 1e-9 {
		t.Errorf("fps = %v, want 29.97", info.FPS)
	}
	if !info.HasAudio {
		t.Error("expected audio stream")
	}
	if info.CreationTime.IsZero() {
		t.Error("expected creation time")
	}
}

func TestParseProbeOutput_missing_fields(t *testing.T) {
	info, err := ParseProbeOutput([]byte(`{"streams":[],"format":{}}`))
	if err != nil {
		t.Fatalf("tolerant parse failed: %v", err)
	}
	if info.Duration != 0 || info.Width != 0 || info.HasAudio {
		t.Errorf("expected zero info, got %+v", info)
	}
}

func TestParseProbeOutput_bad_json(t *testing.T) {
	if _, err := ParseProbeOutput([]byte("not json")); err == nil {
		t.Error("expected error for undecodable output")
	}
}

func TestParseFrameRate(t *testing.T) {
	cases := map[string]float64{
		"30/1":       30,
		"30000/1001": 30000.0 / 1001.0,
		"0/0":        0,
		"25":         25,
		"":           0,
	}
	for in, want := range cases {
		if got := parseFrameRate(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("parseFrameRate(%q) = %v, want %v", in, got, want)
		}
	}
}
