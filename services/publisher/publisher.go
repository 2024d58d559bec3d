package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"jssprz/pricewatcher/internal/catalog"
)

// ObservationKey is the stream field holding a base64 ObservationEvent
const ObservationKey = "b64_observation"

// Publisher represents a service for publishing messages
type Publisher interface {
	// Publish publishes a message to a stream chosen by partition
	Publish(ctx context.Context, partition, key string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}

// ObservationEvent announces a newly persisted price observation
type ObservationEvent struct {
	ID             string    `json:"id"`
	VariantID      string    `json:"variant_id"`
	StoreID        string    `json:"store_id"`
	StoreHostname  string    `json:"store_hostname"`
	URLPathInStore string    `json:"url_path_in_store"`
	ObservedPrice  string    `json:"observed_price"`
	Currency       string    `json:"currency"`
	Failed         bool      `json:"failed"`
	Method         string    `json:"method"`
	ObservedAt     time.Time `json:"observed_at"`
}

// NewObservationEvent builds the event for obs persisted against store
func NewObservationEvent(obs catalog.Observation, store catalog.Store, method string) ObservationEvent {
	return ObservationEvent{
		ID:             obs.ID,
		VariantID:      obs.VariantID,
		StoreID:        obs.StoreID,
		StoreHostname:  store.Hostname,
		URLPathInStore: obs.URLPathInStore,
		ObservedPrice:  obs.ObservedPrice.String(),
		Currency:       obs.Currency,
		Failed:         obs.Failed(),
		Method:         method,
		ObservedAt:     obs.ObservedAt,
	}
}

// PublishObservation encodes event and publishes it partitioned by its (variant, store) pair,
// so a consumer sees each pair's events in order
func PublishObservation(ctx context.Context, p Publisher, event ObservationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Publish(ctx, event.VariantID+"/"+event.StoreID, ObservationKey, data)
}

// Message is a message captured by MemoryPublisher
type Message struct {
	Partition string
	Key       string
	Data      []byte
}

// MemoryPublisher records published messages in process
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	// Err, when set, is returned by Publish
	Err error
}

// Publish records the message
func (m *MemoryPublisher) Publish(_ context.Context, partition, key string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, Message{Partition: partition, Key: key, Data: message})
	return nil
}

// Messages returns a copy of the recorded messages
func (m *MemoryPublisher) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Events decodes every recorded observation event
func (m *MemoryPublisher) Events() []ObservationEvent {
	var events []ObservationEvent
	for _, msg := range m.Messages() {
		if msg.Key != ObservationKey {
			continue
		}
		var event ObservationEvent
		if err := json.Unmarshal(msg.Data, &event); err == nil {
			events = append(events, event)
		}
	}
	return events
}

// TrimStreams is a no-op
func (m *MemoryPublisher) TrimStreams(context.Context) error { return nil }

// Close is a no-op
func (m *MemoryPublisher) Close() error { return nil }
