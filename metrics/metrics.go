// Package metrics defines the Prometheus collectors for parsing and the HTTP service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"royal/parser"
)

var (
	// Parse metrics
	MessagesParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "royal_messages_parsed_total",
			Help: "Total messages parsed successfully",
		},
		[]string{"box_type"},
	)

	ParseFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "royal_parse_failures_total",
			Help: "Total messages rejected as structurally invalid",
		},
		[]string{"reason"},
	)

	Diagnostics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "royal_parse_diagnostics_total",
			Help: "Total local degradations recorded while parsing",
		},
		[]string{"kind"},
	)

	ConfidantAwards = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "royal_confidant_awards_total",
			Help: "Total confidant point awards parsed",
		},
	)

	ParseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "royal_parse_duration_seconds",
			Help:    "Time spent parsing a single message",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005},
		},
	)

	// Batch metrics
	SkippedLines = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "royal_batch_skipped_lines_total",
			Help: "Total script lines outside any message",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "royal_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "royal_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)
)

// ObserveParse records the outcome of one parse call
func ObserveParse(msg *parser.Message, err error, elapsed time.Duration) {
	ParseDuration.Observe(elapsed.Seconds())

	if msg == nil {
		reason := string(parser.ReasonOf(err))
		if reason == "" {
			reason = "unknown"
		}
		ParseFailures.WithLabelValues(reason).Inc()
		return
	}

	MessagesParsed.WithLabelValues(msg.Header.BoxType.String()).Inc()
	if msg.ConfidantPoints != nil {
		ConfidantAwards.Inc()
	}
	for _, d := range msg.Diagnostics {
		Diagnostics.WithLabelValues(string(d.Kind)).Inc()
	}
}
