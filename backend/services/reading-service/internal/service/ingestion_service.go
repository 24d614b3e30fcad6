package service

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sensorhub/backend/services/reading-service/internal/metrics"
	"sensorhub/backend/services/reading-service/internal/models"
)

const (
	fieldTemperature = "temperature"
	fieldHumidity    = "humidity"

	msgMissingFields = "Missing 'temperature' or 'humidity' in JSON payload"
	msgNotNumbers    = "Temperature and humidity must be numbers"
)

var (
	// ErrUnauthorized is returned when the credential does not match the shared secret.
	ErrUnauthorized = errors.New("ingest: unauthorized")
	// ErrMalformedPayload covers bodies that are not a JSON object with both fields.
	ErrMalformedPayload = errors.New("ingest: malformed payload")
	// ErrInvalidFieldType covers fields present but not numeric.
	ErrInvalidFieldType = errors.New("ingest: invalid field type")
)

// ValidationError is a rejected payload. Message is what the device and viewers see.
type ValidationError struct {
	Kind    error
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Kind }

// State is the terminal state of one submission.
type State string

const (
	StatePersisted     State = "persisted"
	StatePersistFailed State = "persist_failed"
	StateRejected      State = "rejected"
)

// Result describes an accepted submission.
type Result struct {
	State      State
	Reading    models.Reading
	PersistErr error
}

// Cache is the latest-outcome store.
type Cache interface {
	Update(r models.Reading)
	RecordError(message string, at time.Time)
	Snapshot() models.Snapshot
}

// Inserter persists rows into a declared table.
type Inserter interface {
	Insert(ctx context.Context, table string, fields map[string]any) error
}

// Publisher receives every new snapshot. Failures never affect the submission outcome.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, snapshot models.Snapshot) error
}

// Options configures IngestionService.
type Options struct {
	APIKey          string
	Table           string
	TimestampColumn string
	Publishers      []Publisher
	Now             func() time.Time
}

// IngestionService authenticates, validates and records readings.
type IngestionService struct {
	// commitMu orders cache commits and their publication so sinks see snapshots in commit order.
	commitMu sync.Mutex

	apiKey          []byte
	table           string
	timestampColumn string
	cache           Cache
	store           Inserter
	publishers      []Publisher
	now             func() time.Time
	logger          *zap.Logger
}

// NewIngestionService returns service instance.
func NewIngestionService(cache Cache, store Inserter, opts Options, logger *zap.Logger) *IngestionService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionService{
		apiKey:          []byte(opts.APIKey),
		table:           opts.Table,
		timestampColumn: opts.TimestampColumn,
		cache:           cache,
		store:           store,
		publishers:      opts.Publishers,
		now:             opts.Now,
		logger:          logger.Named("ingest"),
	}
}

// Submit runs one submission through authentication, validation, caching and persistence.
// A persistence failure is reported in Result but is not an error: the reading is already live.
func (s *IngestionService) Submit(ctx context.Context, payload []byte, credential string) (Result, error) {
	if err := s.Authorize(credential); err != nil {
		return Result{State: StateRejected}, err
	}

	temperature, humidity, err := parseReading(payload)
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) && errors.Is(vErr.Kind, ErrInvalidFieldType) {
			metrics.IngestRequests.WithLabelValues(metrics.OutcomeInvalidFieldType).Inc()
		} else {
			metrics.IngestRequests.WithLabelValues(metrics.OutcomeMalformedPayload).Inc()
		}
		s.logger.Info("rejected malformed reading", zap.Error(err))
		message := err.Error()
		s.commit(ctx, func() { s.cache.RecordError(message, s.now()) })
		return Result{State: StateRejected}, err
	}

	var reading models.Reading
	s.commit(ctx, func() {
		reading = models.Reading{
			Temperature: temperature,
			Humidity:    humidity,
			ObservedAt:  s.now(),
		}
		s.cache.Update(reading)
	})
	metrics.IngestRequests.WithLabelValues(metrics.OutcomeAccepted).Inc()
	metrics.LastReadingTimestamp.Set(float64(reading.ObservedAt.Unix()))
	s.logger.Info("reading accepted",
		zap.Float64("temperature", temperature),
		zap.Float64("humidity", humidity),
		zap.String("observed_at", reading.ObservedAt.Format(models.DisplayTimeLayout)),
	)

	result := Result{State: StatePersisted, Reading: reading}
	if err := s.store.Insert(ctx, s.table, s.fields(reading)); err != nil {
		metrics.PersistFailures.Inc()
		s.logger.Error("failed to persist reading", zap.String("table", s.table), zap.Error(err))
		result.State = StatePersistFailed
		result.PersistErr = err
	}
	return result, nil
}

// Latest returns the current snapshot.
func (s *IngestionService) Latest() models.Snapshot {
	return s.cache.Snapshot()
}

// Authorize checks credential against the shared secret. It can run before the body is read.
func (s *IngestionService) Authorize(credential string) error {
	if subtle.ConstantTimeCompare([]byte(credential), s.apiKey) == 1 {
		return nil
	}
	metrics.IngestRequests.WithLabelValues(metrics.OutcomeUnauthorized).Inc()
	s.logger.Warn("rejected submission with invalid credential")
	return ErrUnauthorized
}

func (s *IngestionService) fields(r models.Reading) map[string]any {
	fields := map[string]any{
		fieldTemperature: r.Temperature,
		fieldHumidity:    r.Humidity,
	}
	if s.timestampColumn != "" {
		fields[s.timestampColumn] = r.ObservedAt
	}
	return fields
}

// commit applies one cache change and publishes the resulting snapshot before the next change
// can start.
func (s *IngestionService) commit(ctx context.Context, apply func()) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	apply()
	if len(s.publishers) == 0 {
		return
	}
	snapshot := s.cache.Snapshot()
	for _, p := range s.publishers {
		if err := p.Publish(ctx, snapshot); err != nil {
			metrics.PublishFailures.WithLabelValues(p.Name()).Inc()
			s.logger.Warn("failed to publish snapshot", zap.String("sink", p.Name()), zap.Error(err))
		}
	}
}

// parseReading accepts a JSON object carrying numeric temperature and humidity. Strings that
// look like numbers are rejected rather than coerced.
func parseReading(payload []byte) (float64, float64, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil || raw == nil {
		msg := "Invalid JSON payload"
		if err != nil {
			msg = fmt.Sprintf("Invalid JSON payload: %v", err)
		}
		return 0, 0, &ValidationError{Kind: ErrMalformedPayload, Message: msg}
	}

	tempRaw, hasTemp := raw[fieldTemperature]
	humRaw, hasHum := raw[fieldHumidity]
	if !hasTemp || !hasHum {
		return 0, 0, &ValidationError{Kind: ErrMalformedPayload, Message: msgMissingFields}
	}

	temperature, ok := parseNumber(tempRaw)
	if !ok {
		return 0, 0, &ValidationError{Kind: ErrInvalidFieldType, Message: msgNotNumbers}
	}
	humidity, ok := parseNumber(humRaw)
	if !ok {
		return 0, 0, &ValidationError{Kind: ErrInvalidFieldType, Message: msgNotNumbers}
	}
	return temperature, humidity, nil
}

func parseNumber(raw json.RawMessage) (float64, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}
