package frames

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"session-replay/internal/media"
)

// DecodeSurface is the hidden decode target the queue drives: a media resource
// positioned at one instant whose pixels can be exported as a compressed
// raster. Implementations are not safe for concurrent use; the queue's single
// worker is the only caller after Open.
type DecodeSurface interface {
	// Open loads the resource and probes its duration and dimensions.
	Open(path string) error
	// Close releases the resource. Safe to call on an unopened surface.
	Close() error
	// Duration reports the opened resource's duration in seconds (0 unknown).
	Duration() float64
	// Position reports the surface's current decode position in seconds.
	Position() float64
	// Seek moves the decode position. The next Capture reads that instant.
	Seek(target float64) error
	// Capture exports the current position as a compressed raster.
	Capture() ([]byte, error)
}

// FFmpegSurface decodes single frames by shelling out to ffmpeg with an
// accurate seek. Position tracks the last seek target; Seek is cheap because
// the actual decode happens in Capture.
type FFmpegSurface struct {
	mu       sync.Mutex
	path     string
	info     media.Info
	position float64
	opened   bool

	// Quality is the mjpeg q:v value, 2 (best) to 31. Zero means default.
	Quality int
}

// DefaultJPEGQuality is the ffmpeg -q:v value used when none is configured.
const DefaultJPEGQuality = 4

// Open implements DecodeSurface. The probe doubles as the readiness check: a
// resource ffprobe cannot read is a surface-level fault.
func (s *FFmpegSurface) Open(path string) error {
	info, err := media.Probe(context.Background(), path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSurfaceFailed, err)
	}
	if info.Width == 0 || info.Height == 0 {
		return fmt.Errorf("%w: zero dimensions", ErrSurfaceFailed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
	s.info = info
	s.position = 0
	s.opened = true
	return nil
}

// Close implements DecodeSurface.
func (s *FFmpegSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	s.path = ""
	return nil
}

// Duration implements DecodeSurface.
func (s *FFmpegSurface) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Duration
}

// Position implements DecodeSurface.
func (s *FFmpegSurface) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Seek implements DecodeSurface.
func (s *FFmpegSurface) Seek(target float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return ErrNotAttached
	}
	if target < 0 {
		target = 0
	}
	s.position = target
	return nil
}

// Capture implements DecodeSurface: one mjpeg frame at the current position,
// native dimensions, fixed quality.
func (s *FFmpegSurface) Capture() ([]byte, error) {
	s.mu.Lock()
	path, pos, opened, quality := s.path, s.position, s.opened, s.Quality
	s.mu.Unlock()
	if !opened {
		return nil, ErrNotAttached
	}
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}

	cmd := exec.Command("ffmpeg",
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", pos),
		"-i", path,
		"-frames:v", "1",
		"-q:v", fmt.Sprintf("%d", quality),
		"-f", "mjpeg",
		"pipe:1",
	)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// ffmpeg ran but produced no frame: a decode error scoped to
			// this position, not a surface fault.
			return nil, fmt.Errorf("decode at %.3fs: %s", pos, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("%w: %v", ErrSurfaceFailed, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("decode at %.3fs: empty frame", pos)
	}
	return out, nil
}
