package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "tweetmap"

// Redis stores each record as a hash under tweetmap:{table}:{key}.
type Redis struct {
	client goredis.UniversalClient
}

// OpenRedis connects to redisURL (redis://[user:pass@]host:port/db) and
// pings it.
func OpenRedis(ctx context.Context, redisURL string) (*Redis, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client), nil
}

// NewRedis wraps an existing client.
func NewRedis(client goredis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func redisKey(table, key string) string {
	return fmt.Sprintf("%s:%s:%s", redisKeyPrefix, table, key)
}

func (r *Redis) Upsert(ctx context.Context, table, key string, rec Record) error {
	err := r.client.HSet(ctx, redisKey(table, key), map[string]any{
		"payload":      rec.Payload,
		"last_updated": rec.LastUpdated.UnixMilli(),
	}).Err()
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", table, key, err)
	}
	return nil
}

func (r *Redis) SelectByKey(ctx context.Context, table, key string) (Record, bool, error) {
	vals, err := r.client.HGetAll(ctx, redisKey(table, key)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("select %s/%s: %w", table, key, err)
	}
	payload, ok := vals["payload"]
	if !ok {
		return Record{}, false, nil
	}
	ms, err := strconv.ParseInt(vals["last_updated"], 10, 64)
	if err != nil {
		return Record{}, false, fmt.Errorf("select %s/%s: bad last_updated: %w", table, key, err)
	}
	return Record{Payload: []byte(payload), LastUpdated: time.UnixMilli(ms).UTC()}, true, nil
}

func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Redis) Close() error { return r.client.Close() }
