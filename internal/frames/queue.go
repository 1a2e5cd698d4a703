// Package frames owns the hidden decode surface and the on-demand raster
// cache: given a frame id and a media position it asynchronously produces a
// compressed image of that instant, deduplicating concurrent requests and
// decoding strictly in arrival order.
package frames

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"session-replay/internal/platform/metrics"
)

var (
	// ErrReset rejects pending requests when the media resource changes.
	ErrReset = errors.New("decode queue reset")
	// ErrSurfaceFailed marks resource-level decode faults; the queue halts
	// until a new resource is attached.
	ErrSurfaceFailed = errors.New("decode surface failed")
	// ErrNotAttached is returned when no media resource is attached.
	ErrNotAttached = errors.New("no media resource attached")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("decode queue closed")
)

// DefaultSeekSkipWindow is how close (seconds) the surface position must be to
// the target before the seek is skipped.
const DefaultSeekSkipWindow = 0.010

// DefaultEndEpsilon keeps decode targets strictly inside the media duration,
// where the last frame is still decodable.
const DefaultEndEpsilon = 0.05

// Config carries the queue's tuning constants. Zero values take defaults.
type Config struct {
	SeekSkipWindow float64
	EndEpsilon     float64
}

type pending struct {
	frameID int
	target  float64
	done    chan struct{}
	raster  []byte
	err     error
}

func (p *pending) resolve(raster []byte, err error) {
	p.raster = raster
	p.err = err
	close(p.done)
}

// Queue decodes individual video frames to rasters on demand. One worker
// drains a FIFO of requests; requests for a frame already in flight share the
// first request's result, and successful rasters are cached for the lifetime
// of the attached resource.
type Queue struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	surface    DecodeSurface
	cache      map[int][]byte
	inflight   map[int]*pending
	fifo       []*pending
	generation int
	attached   bool
	parked     bool
	closed     bool

	wake chan struct{}
	quit chan struct{}
}

// New builds a Queue around the given surface. Metrics may be nil. The worker
// starts immediately but idles until Attach.
func New(surface DecodeSurface, cfg Config, log *slog.Logger, m *metrics.Metrics) *Queue {
	if cfg.SeekSkipWindow <= 0 {
		cfg.SeekSkipWindow = DefaultSeekSkipWindow
	}
	if cfg.EndEpsilon <= 0 {
		cfg.EndEpsilon = DefaultEndEpsilon
	}
	q := &Queue{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		surface:  surface,
		cache:    make(map[int][]byte),
		inflight: make(map[int]*pending),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
	go q.worker()
	return q
}

// Attach points the queue at a new media resource. All pending requests are
// rejected with ErrReset, the raster cache is cleared, and the worker resumes
// once the new resource opens. An Open failure leaves the queue parked.
func (q *Queue) Attach(path string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.generation++
	q.rejectAllLocked(ErrReset)
	q.cache = make(map[int][]byte)
	q.attached = false
	q.parked = false
	surface := q.surface
	q.mu.Unlock()

	_ = surface.Close()
	if err := surface.Open(path); err != nil {
		q.mu.Lock()
		q.parked = true
		q.mu.Unlock()
		return err
	}

	q.mu.Lock()
	q.attached = true
	q.mu.Unlock()
	q.signal()
	return nil
}

// Close shuts the worker down and rejects everything outstanding.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.rejectAllLocked(ErrClosed)
	q.mu.Unlock()
	close(q.quit)
}

// Request returns the raster for frameID, decoding mediaSeconds on a miss.
// Cached frames resolve immediately; a frame already in flight shares the
// existing decode. The call blocks until the decode completes, the context is
// cancelled, or the resource is swapped out from under it.
func (q *Queue) Request(ctx context.Context, frameID int, mediaSeconds float64) ([]byte, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	if raster, ok := q.cache[frameID]; ok {
		q.mu.Unlock()
		if q.metrics != nil {
			q.metrics.IncFrameCacheHits()
		}
		return raster, nil
	}
	if p, ok := q.inflight[frameID]; ok {
		q.mu.Unlock()
		return q.await(ctx, p)
	}
	if !q.attached || q.parked {
		q.mu.Unlock()
		return nil, ErrNotAttached
	}
	p := &pending{frameID: frameID, target: mediaSeconds, done: make(chan struct{})}
	q.inflight[frameID] = p
	q.fifo = append(q.fifo, p)
	q.mu.Unlock()

	q.signal()
	return q.await(ctx, p)
}

func (q *Queue) await(ctx context.Context, p *pending) ([]byte, error) {
	select {
	case <-p.done:
		return p.raster, p.err
	case <-ctx.Done():
		// The decode itself keeps running and still feeds the cache; only
		// this caller gives up.
		return nil, ctx.Err()
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) worker() {
	for {
		select {
		case <-q.quit:
			return
		case <-q.wake:
		}
		q.drain()
	}
}

// drain processes queued requests one at a time, strictly FIFO.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if q.closed || q.parked || !q.attached || len(q.fifo) == 0 {
			q.mu.Unlock()
			return
		}
		p := q.fifo[0]
		q.fifo = q.fifo[1:]
		surface := q.surface
		gen := q.generation
		q.mu.Unlock()

		raster, err := q.decodeOne(surface, p.target)

		q.mu.Lock()
		if q.closed || gen != q.generation {
			// Resource swapped (or queue closed) mid-decode; p was already
			// rejected and the raster belongs to the previous generation.
			q.mu.Unlock()
			continue
		}
		delete(q.inflight, p.frameID)
		if err != nil {
			if q.metrics != nil {
				q.metrics.IncDecodeFailures()
			}
			if errors.Is(err, ErrSurfaceFailed) {
				// Resource-level fault: reject everything and halt until a
				// new resource is attached.
				q.parked = true
				p.resolve(nil, err)
				q.rejectAllLocked(err)
				q.mu.Unlock()
				if q.log != nil {
					q.log.Error("decode surface failed", slog.String("error", err.Error()))
				}
				return
			}
			p.resolve(nil, err)
			q.mu.Unlock()
			if q.log != nil {
				q.log.Debug("frame decode failed",
					slog.Int("frame_id", p.frameID),
					slog.String("error", err.Error()))
			}
			continue
		}
		q.cache[p.frameID] = raster
		p.resolve(raster, nil)
		q.mu.Unlock()
		if q.metrics != nil {
			q.metrics.IncFramesDecoded()
		}
	}
}

// decodeOne clamps the target into the decodable range, seeks unless the
// surface is already close enough, and captures the raster.
func (q *Queue) decodeOne(surface DecodeSurface, target float64) ([]byte, error) {
	if math.IsNaN(target) || math.IsInf(target, 0) || target < 0 {
		target = 0
	}
	if dur := surface.Duration(); dur > 0 {
		limit := dur - q.cfg.EndEpsilon
		if limit < 0 {
			limit = 0
		}
		if target > limit {
			target = limit
		}
	}

	if math.Abs(surface.Position()-target) > q.cfg.SeekSkipWindow {
		if err := surface.Seek(target); err != nil {
			return nil, fmt.Errorf("seek to %.3fs: %w", target, err)
		}
	}
	return surface.Capture()
}

// rejectAllLocked resolves every queued and in-flight request with err.
// Caller holds q.mu.
func (q *Queue) rejectAllLocked(err error) {
	for id, p := range q.inflight {
		p.resolve(nil, err)
		delete(q.inflight, id)
	}
	q.fifo = nil
}
