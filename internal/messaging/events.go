package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wager-settlement/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type EventType string

const (
	EventWagerCreated      EventType = "wager.created"
	EventWagerEnded        EventType = "wager.ended"
	EventWagerResolved     EventType = "wager.resolved"
	EventWagerCancelled    EventType = "wager.cancelled"
	EventBetPlaced         EventType = "bet.placed"
	EventTransferCompleted EventType = "transfer.completed"
	EventTransferFailed    EventType = "transfer.failed"
)

// Event is a settlement fact published for downstream consumers
type Event struct {
	Type       EventType   `json:"type"`
	WagerID    uuid.UUID   `json:"wager_id"`
	BettorID   int64       `json:"bettor_id,omitempty"`
	TransferID *uuid.UUID  `json:"transfer_id,omitempty"`
	Side       models.Side `json:"side,omitempty"`
	Amount     int64       `json:"amount,omitempty"`
	Reference  string      `json:"reference,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Publisher emits settlement events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NewWriter builds a Kafka writer for one topic
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// KafkaPublisher writes events keyed by wager id so each wager stays ordered within a partition
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return writeJSON(ctx, p.writer, event.WagerID.String(), event)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher records events in the log when no broker is configured
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.log.Info("settlement event",
		zap.String("type", string(event.Type)),
		zap.String("wager_id", event.WagerID.String()),
		zap.Int64("bettor_id", event.BettorID),
		zap.Int64("amount", event.Amount),
		zap.String("reference", event.Reference),
	)
	return nil
}

func writeJSON(ctx context.Context, w *kafka.Writer, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}
