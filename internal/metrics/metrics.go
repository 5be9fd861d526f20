// Package metrics exposes the arena's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive tracks live sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gamebattle",
		Name:      "sessions_active",
		Help:      "Number of live sessions.",
	})
	// SessionsCreated counts session launches by strategy.
	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamebattle",
		Name:      "sessions_created_total",
		Help:      "Sessions created, by pairing strategy.",
	}, []string{"strategy"})
	// ContainersStarted counts sandbox container launches.
	ContainersStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gamebattle",
		Name:      "containers_started_total",
		Help:      "Sandbox containers started.",
	})
	// VotesRecorded counts accepted preference submissions.
	VotesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gamebattle",
		Name:      "votes_recorded_total",
		Help:      "Preference submissions accepted.",
	})
	// ReportsFiled counts accepted game reports by short reason.
	ReportsFiled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamebattle",
		Name:      "reports_filed_total",
		Help:      "Game reports accepted, by short reason.",
	}, []string{"reason"})
	// BridgesOpen tracks attached terminal WebSocket bridges.
	BridgesOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gamebattle",
		Name:      "ws_bridges_open",
		Help:      "Open terminal WebSocket bridges.",
	})
	// RequestDuration observes HTTP handler latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gamebattle",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP handler latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
)
