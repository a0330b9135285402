// Package push hands device push requests to the delivery transport.
// Requests are appended to a Redis stream; a separate delivery worker
// owns device tokens and the platform push APIs.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/breathe-app/breathe/internal/domain"
)

// DefaultStream is the stream push requests are appended to.
const DefaultStream = "breathe:push-requests"

// SchemaVersion tags every stream entry's payload layout.
const SchemaVersion = "v1"

// RedisPublisher publishes push requests to a Redis stream.
type RedisPublisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

var _ domain.Pusher = (*RedisPublisher)(nil)

// NewRedisPublisher connects to redisURL (redis://host:port/db).
// An empty stream uses DefaultStream; maxLen <= 0 means 10000.
func NewRedisPublisher(redisURL, stream string, maxLen int64) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return NewRedisPublisherWithClient(redis.NewClient(opts), stream, maxLen), nil
}

// NewRedisPublisherWithClient wraps an existing client.
func NewRedisPublisherWithClient(rdb *redis.Client, stream string, maxLen int64) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisPublisher{rdb: rdb, stream: stream, maxLen: maxLen}
}

// Push appends the request to the stream. The stream is trimmed
// approximately to maxLen so an idle consumer cannot grow it unbounded.
func (p *RedisPublisher) Push(ctx context.Context, req domain.PushRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal push request: %w", err)
	}

	err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload":        string(payload),
			"user_id":        req.UserID,
			"published_at":   time.Now().Unix(),
			"schema_version": SchemaVersion,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.stream, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Stream returns the stream name.
func (p *RedisPublisher) Stream() string {
	return p.stream
}

// Close closes the Redis client connection.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
