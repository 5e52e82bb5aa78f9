package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Feed metrics
	FeedFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsb_feed_fetches_total",
			Help: "Total number of feed fetches by result",
		},
		[]string{"source", "result"},
	)

	FeedFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsb_feed_fetch_duration_seconds",
			Help:    "Duration of feed fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	FeedReportsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adsb_feed_reports_received_total",
			Help: "Total number of aircraft reports with a position received from the feed",
		},
	)

	// Tracking metrics
	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adsb_cycles_total",
			Help: "Total number of processed cycles",
		},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adsb_cycle_duration_seconds",
			Help:    "Time spent validating one cycle",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	PositionCorrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adsb_position_corrections_total",
			Help: "Total number of rejected positions replaced by a corrected position",
		},
	)

	HeadingCorrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adsb_heading_corrections_total",
			Help: "Total number of reported tracks overridden by the movement heading",
		},
	)

	TracksEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adsb_tracks_evicted_total",
			Help: "Total number of stale tracks removed",
		},
	)

	ActiveTracks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adsb_active_tracks",
			Help: "Number of aircraft currently tracked",
		},
	)

	DisplayedAircraft = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adsb_displayed_aircraft",
			Help: "Number of aircraft published in the last cycle",
		},
	)

	// Persistence metrics
	TrailWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsb_trail_writes_total",
			Help: "Total number of trail point writes by result",
		},
		[]string{"result"},
	)

	TrailQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adsb_trail_queue_dropped_total",
			Help: "Trail points dropped because the persistence queue was full",
		},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adsb_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsb_websocket_messages_out_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsb_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordCycle updates tracking metrics from one cycle's counts
func RecordCycle(displayed, active, positionCorrections, headingCorrections, evicted int, seconds float64) {
	CyclesTotal.Inc()
	CycleDuration.Observe(seconds)
	DisplayedAircraft.Set(float64(displayed))
	ActiveTracks.Set(float64(active))
	PositionCorrections.Add(float64(positionCorrections))
	HeadingCorrections.Add(float64(headingCorrections))
	TracksEvicted.Add(float64(evicted))
}
