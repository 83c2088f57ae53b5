// Package audit emits pipeline events to a Kafka topic for downstream
// consumers. Publishing is best-effort: an unreachable broker never affects
// the verification flow.
package audit

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rahimunlu/humanID/internal/platform/kafka/producer"
)

// EventType identifies the pipeline stage that produced an event.
type EventType string

const (
	EventEnrollmentCompleted      EventType = "enrollment_completed"
	EventSimilarityCheckCompleted EventType = "similarity_check_completed"
)

// Event is the audit payload published per completed operation.
type Event struct {
	EventID    string            `json:"event_id"`
	Type       EventType         `json:"type"`
	UserID     string            `json:"user_id"`
	RecordID   string            `json:"record_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Details    map[string]string `json:"details,omitempty"`
}

// Publisher emits audit events. Implementations must not block the caller.
type Publisher interface {
	Publish(event Event)
}

type kafkaProducer interface {
	ProduceAsync(msg *producer.Message) error
}

// KafkaPublisher writes events to a Kafka topic keyed by user ID.
type KafkaPublisher struct {
	producer kafkaProducer
	topic    string
	logger   *slog.Logger
}

// NewKafka builds a publisher over an existing producer.
func NewKafka(p kafkaProducer, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(event Event) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode audit event", "type", string(event.Type), "error", err)
		return
	}

	err = p.producer.ProduceAsync(&producer.Message{
		Topic: p.topic,
		Key:   []byte(event.UserID),
		Value: value,
		Headers: map[string]string{
			"event_type": string(event.Type),
		},
	})
	if err != nil {
		p.logger.Warn("audit event dropped", "type", string(event.Type), "error", err)
	}
}

// Noop discards events. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(Event) {}
