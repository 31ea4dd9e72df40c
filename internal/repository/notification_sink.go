package repository

import (
	"context"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	pkgkafka "TradePulse/pkg/kafka"
)

// KafkaNotificationSink publishes persisted signals to a Kafka topic,
// keyed by symbol so per-symbol ordering survives partitioning.
type KafkaNotificationSink struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaNotificationSink creates the sink.
func NewKafkaNotificationSink(producer *pkgkafka.Producer, topic string) *KafkaNotificationSink {
	return &KafkaNotificationSink{producer: producer, topic: topic}
}

var _ drepo.NotificationSink = (*KafkaNotificationSink)(nil)

// Publish sends the batch in one write.
func (s *KafkaNotificationSink) Publish(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(signals))
	for i, sig := range signals {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(sig.Symbol),
			Value: sig,
		}
	}
	return s.producer.PublishBatch(ctx, s.topic, msgs)
}

// Close closes the underlying producer.
func (s *KafkaNotificationSink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// NopNotificationSink drops everything. Used when Kafka is disabled.
type NopNotificationSink struct{}

func (NopNotificationSink) Publish(context.Context, []models.Signal) error { return nil }
func (NopNotificationSink) Close() error                                   { return nil }
