package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"sensorhub/backend/services/reading-service/internal/models"
)

const defaultKey = "readings:latest"

// LatestStore mirrors the latest snapshot into Redis so it survives restarts and can be read
// by other processes.
type LatestStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewLatestStore returns redis-backed store. A zero ttl keeps the key forever.
func NewLatestStore(client *redis.Client, ttl time.Duration) *LatestStore {
	return &LatestStore{client: client, key: defaultKey, ttl: ttl}
}

// Name identifies the sink in logs and metrics.
func (s *LatestStore) Name() string { return "redis" }

// Publish overwrites the mirrored snapshot.
func (s *LatestStore) Publish(ctx context.Context, snapshot models.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, s.ttl).Err()
}

// Load returns the mirrored snapshot, or ok=false when nothing is stored.
func (s *LatestStore) Load(ctx context.Context) (models.Snapshot, bool, error) {
	result, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Snapshot{}, false, nil
	}
	if err != nil {
		return models.Snapshot{}, false, err
	}
	var snapshot models.Snapshot
	if err := json.Unmarshal(result, &snapshot); err != nil {
		return models.Snapshot{}, false, err
	}
	return snapshot, true, nil
}
