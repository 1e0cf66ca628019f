package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/weather-aggregator/internal/weather"
)

const defaultKey = "weather:history"

// Connect parses redisURL, creates a client, and verifies connectivity with a ping.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

// RedisStore keeps the history as a capped Redis list, oldest first.
type RedisStore struct {
	client *redis.Client
	key    string
	limit  int
	now    func() time.Time
}

// NewRedisStore constructs a RedisStore using the default list key.
func NewRedisStore(client *redis.Client, limit int) *RedisStore {
	return &RedisStore{client: client, key: defaultKey, limit: normalizeLimit(limit), now: time.Now}
}

// Append pushes a record and trims the list to the last limit entries in one
// MULTI/EXEC, so concurrent appends never lose each other.
func (s *RedisStore) Append(ctx context.Context, location string, snapshot weather.Snapshot) error {
	b, err := json.Marshal(NewRecord(location, snapshot, s.now()))
	if err != nil {
		return fmt.Errorf("marshaling history record for %s: %w", location, err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key, b)
	pipe.LTrim(ctx, s.key, int64(-s.limit), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending history record for %s: %w", location, err)
	}
	return nil
}

// All returns every retained record, oldest first.
func (s *RedisStore) All(ctx context.Context) ([]weather.HistoryRecord, error) {
	vals, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history list: %w", err)
	}

	records := make([]weather.HistoryRecord, 0, len(vals))
	for _, v := range vals {
		var rec weather.HistoryRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("unmarshaling history record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
