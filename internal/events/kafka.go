package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// KafkaSink publishes audit events to a Kafka topic. Events are keyed by
// threat ID when present so all events for one threat land on one partition
// in order.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaSink connects a synchronous producer to the given brokers.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("events: create kafka producer: %w", err)
	}

	return &KafkaSink{producer: producer, topic: topic}, nil
}

var _ Sink = (*KafkaSink)(nil)

func (s *KafkaSink) Write(_ context.Context, e *Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Value: sarama.ByteEncoder(payload),
	}
	if threatID, ok := e.Data["threatId"].(string); ok {
		msg.Key = sarama.StringEncoder(threatID)
	}

	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("events: publish to kafka: %w", err)
	}
	return nil
}

// Close shuts the producer down.
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
