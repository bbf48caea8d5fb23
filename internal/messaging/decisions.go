package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"wager-settlement/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	side1OptionPrefix = "winner_side1_"
	side2OptionPrefix = "winner_side2_"
)

var (
	ErrUnknownDecision   = errors.New("unknown decision value")
	ErrMalformedDecision = errors.New("malformed decision response")
)

const maxRetryDelay = 30 * time.Second

// DecisionOption is one labeled answer the recipient can pick
type DecisionOption struct {
	Label string      `json:"label"`
	Value string      `json:"value"`
	Side  models.Side `json:"side"`
}

// DecisionRequest asks a wager creator to pick the winning side
type DecisionRequest struct {
	WagerID     uuid.UUID         `json:"wager_id"`
	RecipientID int64             `json:"recipient_id"`
	Prompt      string            `json:"prompt"`
	Options     [2]DecisionOption `json:"options"`
	RequestedAt time.Time         `json:"requested_at"`
}

// NewDecisionOptions returns the two answer options for a wager
func NewDecisionOptions(wager *models.Wager) [2]DecisionOption {
	return [2]DecisionOption{
		{Label: wager.Side1Label, Value: side1OptionPrefix + wager.ID.String(), Side: models.Side1},
		{Label: wager.Side2Label, Value: side2OptionPrefix + wager.ID.String(), Side: models.Side2},
	}
}

// ParseDecisionValue reverses an option value into its wager and side
func ParseDecisionValue(value string) (uuid.UUID, models.Side, error) {
	var side models.Side
	var rest string
	switch {
	case strings.HasPrefix(value, side1OptionPrefix):
		side, rest = models.Side1, strings.TrimPrefix(value, side1OptionPrefix)
	case strings.HasPrefix(value, side2OptionPrefix):
		side, rest = models.Side2, strings.TrimPrefix(value, side2OptionPrefix)
	default:
		return uuid.Nil, "", fmt.Errorf("%w: %q", ErrUnknownDecision, value)
	}

	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %q", ErrUnknownDecision, value)
	}
	return id, side, nil
}

// Notifier delivers decision requests to the messaging front-end
type Notifier interface {
	RequestDecision(ctx context.Context, req DecisionRequest) error
}

// KafkaNotifier publishes decision requests for the front-end to render
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(writer *kafka.Writer) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func (n *KafkaNotifier) RequestDecision(ctx context.Context, req DecisionRequest) error {
	return writeJSON(ctx, n.writer, req.WagerID.String(), req)
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LogNotifier only logs decision requests
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notifier")}
}

func (n *LogNotifier) RequestDecision(_ context.Context, req DecisionRequest) error {
	n.log.Info("winner decision required",
		zap.String("wager_id", req.WagerID.String()),
		zap.Int64("recipient_id", req.RecipientID),
		zap.String("option_1", req.Options[0].Value),
		zap.String("option_2", req.Options[1].Value),
	)
	return nil
}

// DecisionResponse is the front-end's answer to a DecisionRequest
type DecisionResponse struct {
	ResponderID int64  `json:"responder_id"`
	Value       string `json:"value"`
}

// DecisionHandler applies a decision; it is AssignWinner in production
type DecisionHandler func(ctx context.Context, wagerID uuid.UUID, responderID int64, side models.Side) error

// MessageSource is the consumer-group side of a kafka.Reader
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// DecisionConsumer reads decision responses from Kafka and applies them.
// A message is committed once it was applied or rejected for good; any
// other handler error is retried and the offset stays where it is.
type DecisionConsumer struct {
	Log    *zap.Logger
	Reader MessageSource
	Handle DecisionHandler
	// Final reports whether a handler error rejects the decision for good.
	// Nil treats every handler error as retryable.
	Final func(err error) bool

	RetryDelay time.Duration
	OnError    func(stage string)
}

// NewReader builds a consumer-group reader for one topic
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
}

// Run consumes until ctx is cancelled
func (c *DecisionConsumer) Run(ctx context.Context) error {
	for {
		m, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Warn("kafka read failed", zap.Error(err))
			c.fail("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if !c.process(ctx, m) {
			return ctx.Err()
		}
		if err := c.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
			c.fail("commit")
		}
	}
}

// process applies one message until it succeeds or is rejected for good.
// It returns false when ctx ended first and the message must not be committed.
func (c *DecisionConsumer) process(ctx context.Context, m kafka.Message) bool {
	delay := c.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	for attempt := 1; ; attempt++ {
		err := c.apply(ctx, m.Value)
		if err == nil {
			return true
		}
		if c.final(err) {
			c.Log.Warn("decision rejected", zap.ByteString("payload", m.Value), zap.Error(err))
			return true
		}

		c.Log.Warn("decision not applied, retrying",
			zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func (c *DecisionConsumer) final(err error) bool {
	if errors.Is(err, ErrMalformedDecision) || errors.Is(err, ErrUnknownDecision) {
		return true
	}
	return c.Final != nil && c.Final(err)
}

func (c *DecisionConsumer) apply(ctx context.Context, payload []byte) error {
	var resp DecisionResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		c.fail("decode")
		return fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}

	wagerID, side, err := ParseDecisionValue(resp.Value)
	if err != nil {
		c.fail("decode")
		return err
	}

	if err := c.Handle(ctx, wagerID, resp.ResponderID, side); err != nil {
		c.fail("apply")
		return err
	}
	return nil
}

func (c *DecisionConsumer) fail(stage string) {
	if c.OnError != nil {
		c.OnError(stage)
	}
}
