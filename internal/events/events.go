package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"inventory/internal/models"
)

type Type string

const (
	ImageCreated   Type = "image.created"
	ImageDeleted   Type = "image.deleted"
	ImageReordered Type = "image.reordered"
	ParentDeleted  Type = "parent.deleted"
)

type Event struct {
	Type       Type                `json:"type"`
	ParentType models.ParentType   `json:"parent_type"`
	ParentID   int64               `json:"parent_id"`
	ImageID    int64               `json:"image_id,omitempty"`
	Image      *models.ImageRecord `json:"image,omitempty"`
	At         time.Time           `json:"at"`
}

// Key keeps every event of one parent in the same partition.
func (e Event) Key() string {
	return fmt.Sprintf("%s:%d", e.ParentType, e.ParentID)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// batchTimeout bounds how long a message waits for its batch to fill.
const batchTimeout = 10 * time.Millisecond

// NewPublisher returns a Kafka publisher when broker is set, otherwise Nop.
func NewPublisher(broker, topic string, log zerolog.Logger) Publisher {
	if broker == "" {
		return Nop{}
	}
	return NewKafka(broker, topic, log)
}

// Kafka writes asynchronously: Publish only enqueues, delivery failures are
// logged from the completion callback.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(broker, topic string, log zerolog.Logger) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		MaxAttempts:  3,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Warn().Err(err).Int("messages", len(msgs)).Str("topic", topic).Msg("event delivery failed")
			}
		},
	}}
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	const op = "events.Publish"
	msg, err := encode(e)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

func encode(e Event) (kafka.Message, error) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(e.Key()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}, nil
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
