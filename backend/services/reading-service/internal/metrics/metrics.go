package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion outcome labels.
const (
	OutcomeAccepted         = "accepted"
	OutcomeUnauthorized     = "unauthorized"
	OutcomeMalformedPayload = "malformed_payload"
	OutcomeInvalidFieldType = "invalid_field_type"
)

var (
	// IngestRequests counts submissions by outcome.
	IngestRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorhub_ingest_requests_total",
			Help: "Total number of reading submissions by outcome",
		},
		[]string{"outcome"},
	)

	// PersistFailures counts accepted readings that could not be stored.
	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorhub_persist_failures_total",
			Help: "Accepted readings that failed to persist",
		},
	)

	// PublishFailures counts snapshot publish errors per sink.
	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorhub_publish_failures_total",
			Help: "Snapshot publish failures by sink",
		},
		[]string{"sink"},
	)

	// SchemaTableFailures counts tables that failed to provision.
	SchemaTableFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorhub_schema_table_failures_total",
			Help: "Tables that failed create-if-absent provisioning",
		},
	)

	// LastReadingTimestamp exposes when the latest reading was accepted.
	LastReadingTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorhub_last_reading_timestamp_seconds",
			Help: "Unix time of the most recently accepted reading",
		},
	)
)
