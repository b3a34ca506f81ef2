package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the player engine and its
// control API.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	activeSessions       prometheus.Gauge
	decodersCreatedTotal *prometheus.CounterVec
	accessUnitsFedTotal  *prometheus.CounterVec
	flushesTotal         *prometheus.CounterVec
	discontinuitiesTotal *prometheus.CounterVec
	playbackCompleted    prometheus.Counter
	resetsCompleted      prometheus.Counter
}

// New creates and registers Prometheus metrics for the engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "player_requests_total",
		Help: "Total number of HTTP requests received by the control API",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "player_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "player_active_sessions",
		Help: "Number of live player sessions",
	})
	decodersCreatedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "player_decoders_created_total",
		Help: "Total number of decoders instantiated, per track",
	}, []string{"track"})
	accessUnitsFedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "player_access_units_fed_total",
		Help: "Total number of access units delivered to decoders, per track",
	}, []string{"track"})
	flushesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "player_decoder_flushes_total",
		Help: "Total number of decoder flushes started, per track",
	}, []string{"track"})
	discontinuitiesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "player_discontinuities_total",
		Help: "Total number of source discontinuities observed, per track and kind",
	}, []string{"track", "kind"})
	playbackCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "player_playback_completed_total",
		Help: "Total number of playback-complete events",
	})
	resetsCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "player_resets_completed_total",
		Help: "Total number of completed resets",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		activeSessions,
		decodersCreatedTotal,
		accessUnitsFedTotal,
		flushesTotal,
		discontinuitiesTotal,
		playbackCompleted,
		resetsCompleted,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		errorsTotal:          errorsTotal,
		activeSessions:       activeSessions,
		decodersCreatedTotal: decodersCreatedTotal,
		accessUnitsFedTotal:  accessUnitsFedTotal,
		flushesTotal:         flushesTotal,
		discontinuitiesTotal: discontinuitiesTotal,
		playbackCompleted:    playbackCompleted,
		resetsCompleted:      resetsCompleted,
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

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// IncDecodersCreated increments the decoder creation counter for a track.
func (m *Metrics) IncDecodersCreated(track string) {
	m.decodersCreatedTotal.WithLabelValues(track).Inc()
}

// IncAccessUnitsFed increments the access unit counter for a track.
func (m *Metrics) IncAccessUnitsFed(track string) {
	m.accessUnitsFedTotal.WithLabelValues(track).Inc()
}

// IncFlushes increments the decoder flush counter for a track.
func (m *Metrics) IncFlushes(track string) {
	m.flushesTotal.WithLabelValues(track).Inc()
}

// IncDiscontinuities increments the discontinuity counter for a track and kind.
func (m *Metrics) IncDiscontinuities(track, kind string) {
	m.discontinuitiesTotal.WithLabelValues(track, kind).Inc()
}

// IncPlaybackCompletions increments the playback-complete counter.
func (m *Metrics) IncPlaybackCompletions() {
	m.playbackCompleted.Inc()
}

// IncResetCompletions increments the completed-resets counter.
func (m *Metrics) IncResetCompletions() {
	m.resetsCompleted.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g.
// active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
