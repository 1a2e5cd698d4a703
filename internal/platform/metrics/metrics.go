package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the replay engine.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	framesDecodedTotal  prometheus.Counter
	frameCacheHitsTotal prometheus.Counter
	decodeFailuresTotal prometheus.Counter
	syncSeeksTotal      prometheus.Counter
	driftCorrections    prometheus.Counter
	eventsBuiltTotal    prometheus.Counter
	activeSessions      prometheus.Gauge
}

// New creates and registers Prometheus metrics for the replay engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	framesDecodedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_frames_decoded_total",
		Help: "Total number of frames decoded to rasters",
	})
	frameCacheHitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_frame_cache_hits_total",
		Help: "Total number of frame requests served from the raster cache",
	})
	decodeFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_decode_failures_total",
		Help: "Total number of frame decode requests that failed",
	})
	syncSeeksTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_sync_seeks_total",
		Help: "Total number of user-driven timeline seeks",
	})
	driftCorrections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_drift_corrections_total",
		Help: "Total number of corrective seeks issued to keep tracks phase-locked",
	})
	eventsBuiltTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_events_built_total",
		Help: "Total number of timeline events produced by the event pipeline",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "replay_active_sessions",
		Help: "Number of sessions with an attached media resource",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		framesDecodedTotal,
		frameCacheHitsTotal,
		decodeFailuresTotal,
		syncSeeksTotal,
		driftCorrections,
		eventsBuiltTotal,
		activeSessions,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		errorsTotal:         errorsTotal,
		framesDecodedTotal:  framesDecodedTotal,
		frameCacheHitsTotal: frameCacheHitsTotal,
		decodeFailuresTotal: decodeFailuresTotal,
		syncSeeksTotal:      syncSeeksTotal,
		driftCorrections:    driftCorrections,
		eventsBuiltTotal:    eventsBuiltTotal,
		activeSessions:      activeSessions,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncFramesDecoded increments the decoded frames counter.
func (m *Metrics) IncFramesDecoded() {
	m.framesDecodedTotal.Inc()
}

// IncFrameCacheHits increments the raster cache hit counter.
func (m *Metrics) IncFrameCacheHits() {
	m.frameCacheHitsTotal.Inc()
}

// IncDecodeFailures increments the decode failure counter.
func (m *Metrics) IncDecodeFailures() {
	m.decodeFailuresTotal.Inc()
}

// IncSyncSeeks increments the user seek counter.
func (m *Metrics) IncSyncSeeks() {
	m.syncSeeksTotal.Inc()
}

// IncDriftCorrections increments the corrective seek counter.
func (m *Metrics) IncDriftCorrections() {
	m.driftCorrections.Inc()
}

// AddEventsBuilt adds n to the timeline events counter.
func (m *Metrics) AddEventsBuilt(n int) {
	m.eventsBuiltTotal.Add(float64(n))
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
