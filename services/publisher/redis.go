package publisher

import (
	"context"
	"encoding/base64"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"jssprz/pricewatcher/logger"
	"jssprz/pricewatcher/pkg/errors"
)

// RedisOptions configures a RedisPublisher
type RedisOptions struct {
	Addr            string
	DB              int
	StreamPrefix    string
	StreamCount     int
	StreamMaxLength int
}

// RedisPublisher implements Publisher using Redis streams
type RedisPublisher struct {
	client          *redis.Client
	streamPrefix    string
	streamCount     int
	streamMaxLength int
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(opts RedisOptions) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: opts.Addr,
		DB:   opts.DB,
	})

	return &RedisPublisher{
		client:          client,
		streamPrefix:    opts.StreamPrefix,
		streamCount:     max(opts.StreamCount, 1),
		streamMaxLength: opts.StreamMaxLength,
	}
}

// Ping checks that Redis is reachable
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// StreamFor returns the stream a partition is published to.
// With a streamCount of 10, stream names are <prefix>:0 to <prefix>:9.
func (p *RedisPublisher) StreamFor(partition string) string {
	n := xxhash.Sum64String(partition) % uint64(p.streamCount)
	return p.streamPrefix + ":" + strconv.FormatUint(n, 10)
}

// Publish publishes a message to a Redis stream
// The message is base64 encoded before publishing
func (p *RedisPublisher) Publish(ctx context.Context, partition, key string, message []byte) error {
	encodedMessage := base64.StdEncoding.EncodeToString(message)

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.StreamFor(partition),
		Values: map[string]interface{}{
			key: encodedMessage,
		},
	}).Err()
	if err != nil {
		return errors.NewPublisher(p.streamPrefix, "xadd failed", err)
	}
	return nil
}

// TrimStreams trims all streams to the configured maximum length
func (p *RedisPublisher) TrimStreams(ctx context.Context) error {
	if p.streamMaxLength <= 0 {
		return nil
	}

	// SCAN rather than KEYS so a large keyspace does not block the server
	iter := p.client.Scan(ctx, 0, p.streamPrefix+":*", 100).Iterator()
	trimmed := 0
	for iter.Next(ctx) {
		stream := iter.Val()
		if err := p.client.XTrimMaxLenApprox(ctx, stream, int64(p.streamMaxLength), 0).Err(); err != nil {
			return errors.NewPublisher(p.streamPrefix, "trim "+stream, err)
		}
		trimmed++
	}
	if err := iter.Err(); err != nil {
		return errors.NewPublisher(p.streamPrefix, "scan streams", err)
	}

	logger.ForPublisher().Debug().Int("streams", trimmed).Int("max_length", p.streamMaxLength).Msg("Trimmed streams")
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
