package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types emitted by the commission engine
const (
	EventCommissionEarned = "commission.earned"
)

// EventPublisher delivers domain events to the message bus
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
	Close() error
}

// KafkaEventPublisher publishes events to Kafka, one topic per event type
type KafkaEventPublisher struct {
	writer       *kafka.Writer
	topicByEvent map[string]string
}

// NewKafkaEventPublisher creates a publisher. Events without a mapped topic
// are written to a topic named after the event type.
func NewKafkaEventPublisher(brokers []string, topicByEvent map[string]string, writeTimeout time.Duration) (*KafkaEventPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &KafkaEventPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			WriteTimeout: writeTimeout,
		},
		topicByEvent: topicByEvent,
	}, nil
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topicFor(eventType),
		Key:   []byte(partitionKey),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaEventPublisher) topicFor(eventType string) string {
	if mapped, ok := p.topicByEvent[eventType]; ok && mapped != "" {
		return mapped
	}
	return eventType
}

func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}

// NoopEventPublisher drops events; used when Kafka is disabled
type NoopEventPublisher struct {
	Verbose bool
}

func NewNoopEventPublisher(verbose bool) *NoopEventPublisher {
	return &NoopEventPublisher{Verbose: verbose}
}

func (p *NoopEventPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	if p.Verbose {
		log.Printf("event %s (key %s) not published: kafka disabled", eventType, partitionKey)
	}
	return nil
}

func (p *NoopEventPublisher) Close() error {
	return nil
}
