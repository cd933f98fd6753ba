// Package sink provides optional downstream destinations for filtered
// events beyond the UDP broadcast.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"ampfilter/internal/logger"
	"ampfilter/internal/metrics"
	"ampfilter/internal/models"
)

// Sink errors
var (
	ErrSinkClosed      = errors.New("kafka sink is closed")
	ErrSerializeFailed = errors.New("failed to serialize event")
)

// Kafka publishes every filtered event to a topic, keyed by device id so
// per-device ordering survives partitioning. Publishing is best effort;
// failures are counted and logged by the caller, never retried here.
type Kafka struct {
	writer *kafka.Writer
	closed atomic.Bool
}

// NewKafka creates the sink. At least one broker and a topic are required.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // Partition by key
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	lg := logger.WithComponent("kafka_sink")
	lg.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Msg("kafka sink initialized")

	return &Kafka{writer: writer}, nil
}

// Name implements engine.Sink.
func (k *Kafka) Name() string { return "kafka" }

// Publish implements engine.Sink.
func (k *Kafka) Publish(ctx context.Context, event *models.Event) error {
	if k.closed.Load() {
		return ErrSinkClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.Itoa(event.DeviceID)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "device_id", Value: []byte(strconv.Itoa(event.DeviceID))},
		},
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
		return err
	}

	metrics.KafkaPublishTotal.WithLabelValues("success").Inc()
	return nil
}

// Close flushes and closes the underlying writer.
func (k *Kafka) Close() error {
	if k.closed.Swap(true) {
		return nil
	}
	return k.writer.Close()
}
