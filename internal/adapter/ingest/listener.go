package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafka.Reader the listener uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ShippingEnvelope wraps webhook-shaped payloads relayed over Kafka.
type ShippingEnvelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ShippingListener feeds shipping events from Kafka through the same
// processor as the HTTP webhook.
type ShippingListener struct {
	reader    MessageReader
	processor *WebhookProcessor
	logger    *zap.Logger
	backoff   time.Duration
}

func NewShippingListener(reader MessageReader, processor *WebhookProcessor, logger *zap.Logger) *ShippingListener {
	return &ShippingListener{
		reader:    reader,
		processor: processor,
		logger:    logger,
		backoff:   time.Second,
	}
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

func (l *ShippingListener) Start(ctx context.Context) {
	l.logger.Info("starting shipping listener")
	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("stopping shipping listener")
				return
			}
			l.logger.Error("failed to read kafka message", zap.Error(err))
			if !l.sleep(ctx) {
				return
			}
			continue
		}

		// The reader has already moved past msg, so it is retried here until
		// it goes through. Committing a later offset would skip it for good.
		for !l.handle(ctx, msg) {
			if !l.sleep(ctx) {
				l.logger.Info("stopping shipping listener", zap.Int64("uncommitted_offset", msg.Offset))
				return
			}
		}
		if err := l.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			l.logger.Error("failed to commit kafka message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle reports whether msg is done with, including messages that can
// never be processed. Other processing errors leave it pending.
func (l *ShippingListener) handle(ctx context.Context, msg kafka.Message) bool {
	var env ShippingEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		l.logger.Error("failed to unmarshal shipping event", zap.Int64("offset", msg.Offset), zap.Error(err))
		return true
	}

	ev, err := Decode(env.EventType, env.Payload)
	if err != nil {
		l.logger.Error("failed to decode shipping event",
			zap.String("event_id", env.EventID),
			zap.String("event_type", env.EventType),
			zap.Error(err),
		)
		return true
	}
	if on, ok := ev.(OrderNotify); ok {
		on.EventID = env.EventID
		ev = on
	}

	if _, err := l.processor.Process(ctx, ev); err != nil {
		if errors.Is(err, ErrMalformedPayload) {
			l.logger.Error("dropping shipping event",
				zap.String("event_id", env.EventID),
				zap.String("event_type", env.EventType),
				zap.Error(err),
			)
			return true
		}
		l.logger.Error("failed to process shipping event",
			zap.String("event_id", env.EventID),
			zap.String("event_type", env.EventType),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (l *ShippingListener) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(l.backoff):
		return true
	}
}

func (l *ShippingListener) Close() error {
	return l.reader.Close()
}
