package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/IBM/sarama"
)

// Push hands notifications to the push gateway through a Kafka topic,
// keyed by target user so one user's events stay ordered.
type Push struct {
	producer sarama.SyncProducer
	topic    string
}

var newSyncProducer = sarama.NewSyncProducer

// NewPush connects a sync producer. It returns nil, nil when Kafka is not configured.
func NewPush(brokers []string, topic string) (*Push, error) {
	if len(brokers) == 0 || strings.TrimSpace(topic) == "" {
		return nil, nil
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3

	producer, err := newSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("push: new producer: %w", err)
	}
	return NewPushWithProducer(producer, topic), nil
}

// NewPushWithProducer wraps an existing producer.
func NewPushWithProducer(producer sarama.SyncProducer, topic string) *Push {
	return &Push{producer: producer, topic: topic}
}

// Notify sends n to the push topic.
func (p *Push) Notify(_ context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("push: marshal: %w", err)
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(n.TargetID, 10)),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("push: send to user %d: %w", n.TargetID, err)
	}
	return nil
}

// Close closes the producer.
func (p *Push) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}
