// Package kafka publishes and consumes the JSON messages of the ingestion
// pipeline and the red-flag alert topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"baria-go/pkg/log"
	"baria-go/pkg/resilience"
)

// Producer writes JSON values to one topic.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer returns a producer for topic. brokers is a comma-separated list.
func NewProducer(brokers, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(splitBrokers(brokers)...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	log.Infof("[Kafka] producer ready, topic: %s", topic)
	return &Producer{writer: w, topic: topic}
}

// Publish marshals v and writes it under key, retrying transient failures.
func (p *Producer) Publish(ctx context.Context, key string, v interface{}) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", p.topic, err)
	}
	msg := kafka.Message{Key: []byte(key), Value: value}
	return resilience.Retry(ctx, "kafka publish "+p.topic, resilience.RetryConfig{MaxAttempts: 3}, func() error {
		return p.writer.WriteMessages(ctx, msg)
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
