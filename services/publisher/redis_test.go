package publisher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jssprz/pricewatcher/internal/catalog"
)

func TestRedisPublisher(t *testing.T) {
	ctx := context.Background()
	publisher := NewRedisPublisher(RedisOptions{
		Addr:            "localhost:6379",
		StreamPrefix:    "test_stream_r",
		StreamCount:     1,
		StreamMaxLength: 100,
	})
	defer publisher.Close()

	// Test if Redis is available
	if err := publisher.Ping(ctx); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	stream := publisher.StreamFor("v1/s1")
	assert.Equal(t, "test_stream_r:0", stream)

	err := client.XGroupCreateMkStream(ctx, stream, "test_group", "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		require.NoError(t, err)
	}

	messages := make(chan string, 1)
	go func() {
		result, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Streams:  []string{stream, ">"},
			Group:    "test_group",
			Consumer: "test_consumer",
			Block:    2 * time.Second,
		}).Result()
		if err != nil || len(result) == 0 || len(result[0].Messages) == 0 {
			return
		}
		messages <- result[0].Messages[0].Values[ObservationKey].(string)
	}()

	time.Sleep(100 * time.Millisecond)

	event := NewObservationEvent(catalog.Observation{
		ID:             "o1",
		VariantID:      "v1",
		StoreID:        "s1",
		URLPathInStore: "/product/42",
		ObservedPrice:  decimal.NewFromInt(19990),
		Currency:       "CLP",
		ObservedAt:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}, catalog.Store{ID: "s1", Hostname: "example.cl"}, "template:generic-price")
	require.NoError(t, PublishObservation(ctx, publisher, event))

	select {
	case msg := <-messages:
		data, err := base64.StdEncoding.DecodeString(msg)
		require.NoError(t, err)

		var got ObservationEvent
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "19990", got.ObservedPrice)
		assert.Equal(t, "example.cl", got.StoreHostname)
		assert.False(t, got.Failed)
	case <-time.After(3 * time.Second):
		t.Error("Timed out waiting for message")
	}

	assert.NoError(t, publisher.TrimStreams(ctx))
}

func TestRedisPublisher_StreamFor(t *testing.T) {
	publisher := NewRedisPublisher(RedisOptions{StreamPrefix: "prices", StreamCount: 4})
	defer publisher.Close()

	// A partition always lands on the same stream
	first := publisher.StreamFor("v1/s1")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, publisher.StreamFor("v1/s1"))
	}
	assert.True(t, strings.HasPrefix(first, "prices:"))

	seen := map[string]bool{}
	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		seen[publisher.StreamFor(p)] = true
	}
	assert.LessOrEqual(t, len(seen), 4)
}

func TestMemoryPublisher(t *testing.T) {
	m := &MemoryPublisher{}
	obs := catalog.Observation{ID: "o1", VariantID: "v1", StoreID: "s1", ObservedPrice: decimal.NewFromInt(-1)}

	require.NoError(t, PublishObservation(context.Background(), m, NewObservationEvent(obs, catalog.Store{}, "not-found")))

	events := m.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].Failed)
	assert.Equal(t, "-1", events[0].ObservedPrice)
	assert.Equal(t, "v1/s1", m.Messages()[0].Partition)
}
