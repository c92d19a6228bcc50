package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "visitrack"

var (
	// EventsIngested counts events by ingest source and outcome.
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Events accepted or rejected by the ingestion pipeline",
		},
		[]string{"source", "outcome"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_queue_depth",
			Help:      "Events waiting in the ingestion queue",
		},
	)

	QueueFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_queue_flushes_total",
			Help:      "Queue flushes by trigger",
		},
		[]string{"trigger"},
	)

	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_flush_duration_seconds",
			Help:      "Time spent writing a flushed batch",
			Buckets:   prometheus.DefBuckets,
		},
	)

	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Visitor actions by state machine transition",
		},
		[]string{"transition"},
	)

	ReaperSessionsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_sessions_closed_total",
			Help:      "Sessions closed for inactivity",
		},
	)

	ReaperPresenceExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_presence_expired_total",
			Help:      "Presence records aged out",
		},
	)

	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geo_lookups_total",
			Help:      "Geolocation resolutions by provider and result",
		},
		[]string{"provider", "result"},
	)

	BackgroundErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_errors_total",
			Help:      "Failures in best-effort background work",
		},
		[]string{"task"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	LiveFeedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_feed_clients",
			Help:      "Connected websocket dashboard clients",
		},
	)
)
