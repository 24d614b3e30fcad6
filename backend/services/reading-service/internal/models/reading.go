package models

import "time"

// DisplayTimeLayout is the timestamp format shown to viewers.
const DisplayTimeLayout = "2006-01-02 15:04:05"

// Reading is one accepted temperature/humidity sample stamped with the server clock.
type Reading struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	ObservedAt  time.Time `json:"observed_at"`
}

// IngestionError describes the most recent rejected submission.
type IngestionError struct {
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Snapshot is a point-in-time copy of the latest outcome. Reading keeps the last good values
// even while Error is set.
type Snapshot struct {
	Reading *Reading        `json:"reading,omitempty"`
	Error   *IngestionError `json:"error,omitempty"`
}

// SnapshotView is the flat shape served to displays.
type SnapshotView struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Timestamp   *string  `json:"timestamp"`
	Error       *string  `json:"error"`
}

// View flattens the snapshot for display.
func (s Snapshot) View() SnapshotView {
	var view SnapshotView
	if s.Reading != nil {
		temperature := s.Reading.Temperature
		humidity := s.Reading.Humidity
		ts := s.Reading.ObservedAt.Format(DisplayTimeLayout)
		view.Temperature = &temperature
		view.Humidity = &humidity
		view.Timestamp = &ts
	}
	if s.Error != nil {
		msg := s.Error.Message
		view.Error = &msg
	}
	return view
}
