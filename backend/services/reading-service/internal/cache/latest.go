package cache

import (
	"sync"
	"time"

	"sensorhub/backend/services/reading-service/internal/models"
)

// Latest holds the most recent ingestion outcome.
type Latest struct {
	mu      sync.RWMutex
	reading *models.Reading
	err     *models.IngestionError
}

// NewLatest returns an empty cache.
func NewLatest() *Latest {
	return &Latest{}
}

// Update stores a new reading and clears any recorded error.
func (c *Latest) Update(r models.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reading = &r
	c.err = nil
}

// RecordError flags the latest outcome as failed. The last reading stays visible.
func (c *Latest) RecordError(message string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = &models.IngestionError{Message: message, OccurredAt: at}
}

// Restore replaces the whole slot, used to warm the cache at startup.
func (c *Latest) Restore(s models.Snapshot) {
	s = copySnapshot(s)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reading = s.Reading
	c.err = s.Error
}

// Snapshot returns a copy of the current state.
func (c *Latest) Snapshot() models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copySnapshot(models.Snapshot{Reading: c.reading, Error: c.err})
}

func copySnapshot(s models.Snapshot) models.Snapshot {
	var out models.Snapshot
	if s.Reading != nil {
		r := *s.Reading
		out.Reading = &r
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}
