package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/notifly-go/pkg/logger"
	"github.com/segmentio/kafka-go"
)

const (
	UserCreated         = "user.created"
	UserUpdated         = "user.updated"
	UserDeleted         = "user.deleted"
	UserLoggedIn        = "user.logged_in"
	NotificationCreated = "notification.created"
	NotificationUpdated = "notification.updated"
	NotificationDeleted = "notification.deleted"
	NotificationSent    = "notification.sent"
)

type Event struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	AggregateID   string                 `json:"aggregateId"`
	AggregateType string                 `json:"aggregateType"`
	Timestamp     time.Time              `json:"timestamp"`
	UserID        string                 `json:"userId,omitempty"`
	Version       int                    `json:"version"`
	Payload       map[string]interface{} `json:"payload"`
}

// EventBus publishes domain events. Publishing is best effort from the
// caller's point of view; a failed publish never fails the operation.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type KafkaEventBus struct {
	writer *kafka.Writer
	logger logger.Logger
}

func NewKafkaEventBus(config KafkaConfig, log logger.Logger) *KafkaEventBus {
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 5 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: config.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaEventBus{writer: writer, logger: log}
}

func (k *KafkaEventBus) Publish(ctx context.Context, event Event) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

func (k *KafkaEventBus) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

func encode(event Event) (kafka.Message, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
		Time: event.Timestamp,
	}, nil
}

// LogEventBus is used when no broker is configured. It logs events at debug
// level and keeps the most recent ones for inspection.
type LogEventBus struct {
	logger logger.Logger
	mu     sync.Mutex
	events []Event
	limit  int
}

func NewLogEventBus(log logger.Logger) *LogEventBus {
	return &LogEventBus{logger: log, limit: 100}
}

func (b *LogEventBus) Publish(ctx context.Context, event Event) error {
	b.logger.Debug("Event published",
		"type", event.Type,
		"aggregateId", event.AggregateID,
		"aggregateType", event.AggregateType,
	)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	if len(b.events) > b.limit {
		b.events = b.events[len(b.events)-b.limit:]
	}
	return nil
}

// Events returns a copy of the retained events.
func (b *LogEventBus) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *LogEventBus) Close() error { return nil }

// Event builder helper
type EventBuilder struct {
	event Event
}

func NewEventBuilder(eventType string) *EventBuilder {
	return &EventBuilder{
		event: Event{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now().UTC(),
			Version:   1,
			Payload:   make(map[string]interface{}),
		},
	}
}

func (b *EventBuilder) WithAggregateID(id string) *EventBuilder {
	b.event.AggregateID = id
	return b
}

func (b *EventBuilder) WithAggregateType(aggregateType string) *EventBuilder {
	b.event.AggregateType = aggregateType
	return b
}

func (b *EventBuilder) WithUserID(userID string) *EventBuilder {
	b.event.UserID = userID
	return b
}

func (b *EventBuilder) WithPayload(key string, value interface{}) *EventBuilder {
	b.event.Payload[key] = value
	return b
}

func (b *EventBuilder) Build() Event {
	return b.event
}

// PublishAsync publishes in the background and logs failures. The event is
// detached from the request context so a finished request does not cancel it.
func PublishAsync(ctx context.Context, bus EventBus, log logger.Logger, event Event) {
	if bus == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		pctx, cancel := context.WithTimeout(detached, 5*time.Second)
		defer cancel()
		if err := bus.Publish(pctx, event); err != nil {
			log.Warn("Failed to publish event", "type", event.Type, "error", err)
		}
	}()
}
