package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorhub/backend/services/reading-service/internal/models"
)

func TestLatestStartsEmpty(t *testing.T) {
	snap := NewLatest().Snapshot()
	require.Nil(t, snap.Reading)
	require.Nil(t, snap.Error)
}

func TestLatestUpdateClearsError(t *testing.T) {
	c := NewLatest()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	c.RecordError("bad payload", now)
	c.Update(models.Reading{Temperature: 21.5, Humidity: 40, ObservedAt: now})

	snap := c.Snapshot()
	require.NotNil(t, snap.Reading)
	require.Equal(t, 21.5, snap.Reading.Temperature)
	require.Nil(t, snap.Error)
}

func TestLatestRecordErrorKeepsLastReading(t *testing.T) {
	c := NewLatest()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	c.Update(models.Reading{Temperature: 19, Humidity: 55, ObservedAt: now})

	c.RecordError("Temperature and humidity must be numbers", now.Add(time.Minute))

	snap := c.Snapshot()
	require.Equal(t, &models.Reading{Temperature: 19, Humidity: 55, ObservedAt: now}, snap.Reading)
	require.Equal(t, "Temperature and humidity must be numbers", snap.Error.Message)
	require.Equal(t, now.Add(time.Minute), snap.Error.OccurredAt)
}

func TestLatestSnapshotIsDetached(t *testing.T) {
	c := NewLatest()
	c.Update(models.Reading{Temperature: 1, Humidity: 2})

	snap := c.Snapshot()
	snap.Reading.Temperature = 99

	require.Equal(t, 1.0, c.Snapshot().Reading.Temperature)
}

func TestLatestRestore(t *testing.T) {
	c := NewLatest()
	in := models.Snapshot{
		Reading: &models.Reading{Temperature: 5, Humidity: 6},
		Error:   &models.IngestionError{Message: "stale"},
	}
	c.Restore(in)
	in.Reading.Temperature = 50

	snap := c.Snapshot()
	require.Equal(t, 5.0, snap.Reading.Temperature)
	require.Equal(t, "stale", snap.Error.Message)
}

func TestLatestConcurrentWritersNeverTear(t *testing.T) {
	c := NewLatest()
	const writers = 16
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				v := float64(w*rounds + i)
				// humidity mirrors temperature so a mixed read is detectable
				c.Update(models.Reading{Temperature: v, Humidity: -v})
				if i%10 == 0 {
					c.RecordError("oops", time.Now())
				}
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < writers*rounds; i++ {
			snap := c.Snapshot()
			if snap.Reading != nil {
				assert.Equal(t, -snap.Reading.Temperature, snap.Reading.Humidity)
			}
		}
	}()

	wg.Wait()
	<-done

	snap := c.Snapshot()
	require.NotNil(t, snap.Reading)
	require.Equal(t, -snap.Reading.Temperature, snap.Reading.Humidity)
}
