package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	sinkBatchTimeout = 10 * time.Millisecond
	sinkWriteTimeout = 10 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink forwards every domain event to a topic, keyed by order id so one
// order's events land on one partition in publish order.
type KafkaSink struct {
	writer messageWriter
	logger *zap.Logger
	now    func() time.Time
}

type envelope struct {
	Kind       Kind      `json:"kind"`
	OrderID    string    `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    Event     `json:"payload"`
}

// NewKafkaSink builds an async writer: Handle returns once the event is
// queued, and delivery failures are logged from the completion callback.
func NewKafkaSink(brokers []string, topic string, l *zap.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: sinkBatchTimeout,
		WriteTimeout: sinkWriteTimeout,
		MaxAttempts:  3,
		Async:        true,
		Completion:   completionLogger(l),
		Logger:       zap.NewStdLog(l.With(zap.String("kafka_component", "event_sink"))),
	}

	l.Info("Kafka event sink initialized", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return newKafkaSink(writer, l)
}

func completionLogger(l *zap.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		for _, m := range msgs {
			l.Error("event delivery to kafka failed", zap.String("order_id", string(m.Key)), zap.Error(err))
		}
	}
}

func newKafkaSink(writer messageWriter, l *zap.Logger) *KafkaSink {
	return &KafkaSink{writer: writer, logger: l, now: time.Now}
}

func (s *KafkaSink) Handle(ctx context.Context, e Event) error {
	value, err := json.Marshal(envelope{
		Kind:       e.Kind(),
		OrderID:    e.OrderID(),
		OccurredAt: s.now().UTC(),
		Payload:    e,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.OrderID()),
		Value: value,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event to kafka: %w", err)
	}
	s.logger.Debug("Produced event", zap.String("kind", string(e.Kind())), zap.String("order_id", e.OrderID()))
	return nil
}

func (s *KafkaSink) Close() error {
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
