package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/ensembl-io/handover/internal/handoverspec"
)

// Compile-time interface assertion.
var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher fans out journal reports onto a Kafka topic, fire-and-
// forget, keyed by the report's handover_token so consumers of a given
// token land on the same partition (spec.md §4.2 "broadcast to an
// external pub/sub channel").
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher constructs a publisher writing to brokers. The writer
// itself has no Topic; each message carries the topic passed to Publish
// (and the handover_token as its Key), so one writer serves every topic.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, report handoverspec.Report) error {
	value, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("journal: marshal report for broadcast: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(report.Params.HandoverToken),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("journal: kafka publish failed: %w", err)
	}

	return nil
}

// Close closes the underlying Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
