package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/yashrajoria/settlement-service/models"
	"go.uber.org/zap"
)

// MessageWriter is the part of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PaymentEventProducer publishes committed settlements keyed by order ref so
// every event for one order lands on the same partition in order.
type PaymentEventProducer struct {
	writer MessageWriter
	topic  string
	logger *zap.Logger
}

func NewPaymentEventProducer(brokers []string, topic string, logger *zap.Logger) *PaymentEventProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 5 * time.Second,
	}
	logger.Info("Kafka payment event producer initialized",
		zap.String("topic", topic),
		zap.Strings("brokers", brokers),
	)
	return NewPaymentEventProducerWithWriter(w, topic, logger)
}

func NewPaymentEventProducerWithWriter(w MessageWriter, topic string, logger *zap.Logger) *PaymentEventProducer {
	return &PaymentEventProducer{writer: w, topic: topic, logger: logger}
}

func (p *PaymentEventProducer) Publish(ctx context.Context, event models.PaymentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.RefCode),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "provider", Value: []byte(event.Provider)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s: %w", p.topic, err)
	}
	return nil
}

func (p *PaymentEventProducer) Close() {
	if err := p.writer.Close(); err != nil {
		p.logger.Warn("Kafka producer close failed", zap.Error(err))
		return
	}
	p.logger.Info("Kafka producer closed")
}
