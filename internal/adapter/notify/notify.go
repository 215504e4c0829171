package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

// MessageWriter is the part of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier publishes low-stock events keyed by SKU so that events for
// one item stay ordered within a partition.
type KafkaNotifier struct {
	writer MessageWriter
}

func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func (k *KafkaNotifier) Notify(ctx context.Context, event domain.LowStockEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode low-stock event: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.SKU),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("LOW_STOCK")},
		},
	})
}

// StoreNotifier records events in the notifications table and announces
// them on the change feed.
type StoreNotifier struct {
	repo port.NotificationRepository
	feed port.ChangeFeed
}

func NewStoreNotifier(repo port.NotificationRepository, feed port.ChangeFeed) *StoreNotifier {
	return &StoreNotifier{repo: repo, feed: feed}
}

func (s *StoreNotifier) Notify(ctx context.Context, event domain.LowStockEvent) error {
	if err := s.repo.SaveNotification(ctx, &event); err != nil {
		return err
	}
	if s.feed == nil {
		return nil
	}
	return s.feed.Publish(ctx, domain.Change{
		Collection: domain.CollectionNotifications,
		ID:         event.ID,
		At:         event.Timestamp,
	})
}

// Fanout delivers to every notifier. One failing sink does not keep the
// event from the others.
type Fanout struct {
	notifiers []port.Notifier
	logger    *zap.Logger
}

func NewFanout(logger *zap.Logger, notifiers ...port.Notifier) *Fanout {
	return &Fanout{notifiers: notifiers, logger: logger}
}

func (f *Fanout) Notify(ctx context.Context, event domain.LowStockEvent) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			f.logger.Error("low-stock notifier failed",
				zap.String("sku", event.SKU),
				zap.String("notifier", fmt.Sprintf("%T", n)),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
