package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// Publisher ships processed events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
	Close()
}

type KafkaConfig struct {
	Brokers      string
	Topic        string
	ClientID     string
	DeliveryWait time.Duration
}

type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
	wait     time.Duration
}

func NewKafkaPublisher(cfg *KafkaConfig) (*KafkaPublisher, error) {
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"client.id":         cfg.ClientID,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	wait := cfg.DeliveryWait
	if wait <= 0 {
		wait = 5 * time.Second
	}

	return &KafkaPublisher{
		producer: p,
		topic:    cfg.Topic,
		wait:     wait,
	}, nil
}

// Publish produces one message and waits for its delivery report.
func (k *KafkaPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          payload,
	}

	deliveryChan := make(chan kafka.Event, 1)
	if err := k.producer.Produce(msg, deliveryChan); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	timer := time.NewTimer(k.wait)
	defer timer.Stop()

	select {
	case e := <-deliveryChan:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event: %v", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("delivery report not received within %s", k.wait)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *KafkaPublisher) Close() {
	k.producer.Flush(int(k.wait / time.Millisecond))
	k.producer.Close()
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, []byte) error { return nil }
func (NopPublisher) Close()                                        {}
