package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ampfilter_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ampfilter_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Ingress metrics
	PacketsReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ampfilter_packets_received_total",
			Help: "Total number of measurement datagrams received",
		},
	)

	PacketsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ampfilter_packets_dropped_total",
			Help: "Total number of datagrams dropped",
		},
		[]string{"reason"}, // reason: decode, unknown_device, queue_full
	)

	ReceiveErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ampfilter_receive_errors_total",
			Help: "Total number of transient socket receive errors",
		},
	)

	// Rule metrics
	RulesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ampfilter_rules_active",
			Help: "Number of filter rules currently registered",
		},
	)

	RuleValidationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ampfilter_rule_validation_errors_total",
			Help: "Total number of rejected rule submissions",
		},
	)

	RuleEvaluationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ampfilter_rule_evaluations_total",
			Help: "Total number of rule evaluations performed",
		},
	)

	// Dispatcher metrics
	DispatchQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ampfilter_dispatch_queue_size",
			Help: "Current depth of each per-device packet queue",
		},
		[]string{"device_id"},
	)

	// Emitter metrics
	EventsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ampfilter_events_emitted_total",
			Help: "Total number of filtered events emitted",
		},
		[]string{"status"}, // status: success, failed
	)

	ProcessingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ampfilter_processing_latency_seconds",
			Help:    "Time from datagram receipt to event emission",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		},
	)

	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ampfilter_kafka_publish_total",
			Help: "Total number of events published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	// WebSocket metrics
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ampfilter_websocket_clients",
			Help: "Number of connected WebSocket clients",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ampfilter_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
