package event

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"

	"payment-service/internal/message"
)

var (
	publishSuccessCounter = metrics.GetOrCreateCounter(`payment_events_published_total{result="success"}`)
	publishErrorCounter   = metrics.GetOrCreateCounter(`payment_events_published_total{result="error"}`)
)

// KafkaPublisher writes verified payment events to the payment-events topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaPublisher(writer *kafka.Writer, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e message.PaymentVerified) error {
	value, err := json.Marshal(e)
	if err != nil {
		publishErrorCounter.Inc()
		return err
	}

	msg := kafka.Message{
		// Order ID as key to keep per-order ordering.
		Key:   []byte(e.OrderID),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "Error publishing payment event", "orderId", e.OrderID, "error", err)
		publishErrorCounter.Inc()
		return err
	}

	p.logger.InfoContext(ctx, "Published payment event", "orderId", e.OrderID)
	publishSuccessCounter.Inc()
	return nil
}
