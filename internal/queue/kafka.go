package queue

import (
	"context"
	"fmt"

	"consentry/internal/platform/kafka/producer"
)

// Kafka publishes jobs to a Kafka topic per job name. A worker consuming the
// topic calls the same orchestrator processing methods the synchronous path
// uses.
type Kafka struct {
	producer    *producer.Producer
	topicPrefix string
}

// NewKafka wraps a producer. Topic is "<prefix>.<job>".
func NewKafka(p *producer.Producer, topicPrefix string) *Kafka {
	if topicPrefix == "" {
		topicPrefix = "consentry"
	}
	return &Kafka{producer: p, topicPrefix: topicPrefix}
}

func (k *Kafka) Enqueue(ctx context.Context, job string, payload []byte) error {
	msg := &producer.Message{
		Topic: fmt.Sprintf("%s.%s", k.topicPrefix, job),
		Value: payload,
	}
	if err := k.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", job, err)
	}
	return nil
}
