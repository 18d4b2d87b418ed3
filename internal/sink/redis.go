package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/sku-scraper/internal/models"
)

const DefaultStream = "stream:product_records"

// RedisClient is the part of the redis client the stream sink needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisStream publishes every record to a Redis stream for downstream consumers.
type RedisStream struct {
	client RedisClient
	stream string
	runID  string
	now    func() time.Time
}

func NewRedisStream(client RedisClient, stream, runID string) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStream{client: client, stream: stream, runID: runID, now: time.Now}
}

func (s *RedisStream) Append(ctx context.Context, records []*models.ExtractedRecord) error {
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		args := &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]interface{}{
				"data":      string(data),
				"type":      "PRODUCT_RECORD_EXTRACTED",
				"sku":       r.SKU,
				"retailer":  string(r.Retailer),
				"run_id":    s.runID,
				"timestamp": fmt.Sprintf("%d", s.now().UnixNano()),
			},
		}

		if _, err := s.client.XAdd(ctx, args).Result(); err != nil {
			return fmt.Errorf("failed to publish to redis: %w", err)
		}
	}
	return nil
}

func (s *RedisStream) Close() error {
	return s.client.Close()
}
