package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/floodgate/pkg/floodgate"
)

// snapshotKey is the Redis key the snapshot lives under.
const snapshotKey = "floodgate:reputation"

// RedisStore persists reputation snapshots in Redis as a single versioned
// JSON value.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ SnapshotStore = (*RedisStore)(nil)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string        // Redis address (e.g. "localhost:6379")
	Password string        // empty for no auth
	DB       int           // Redis database number
	TTL      time.Duration // snapshot expiry; 0 keeps it forever
}

// NewRedisStore creates a Redis-backed snapshot store.
func NewRedisStore(config RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{
		client: client,
		ttl:    config.TTL,
	}
}

// Save stores the snapshot, replacing any previous one.
func (s *RedisStore) Save(ctx context.Context, snap *floodgate.ReputationSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or ErrNoSnapshot when none exists.
func (s *RedisStore) Load(ctx context.Context) (*floodgate.ReputationSnapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	if err == redis.Nil {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap floodgate.ReputationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.Version != floodgate.SnapshotVersion {
		return nil, ErrVersionMismatch
	}
	return &snap, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
