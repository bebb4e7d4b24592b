package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/pricepilot/backend/internal/domain"
)

// DefaultTopic receives search.completed events
const DefaultTopic = "pricepilot.search.completed"

const eventTypeSearchCompleted = "search.completed"

// KafkaConfig holds Kafka producer configuration
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// KafkaPublisher publishes search events to a Kafka topic
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher connects a synchronous producer to the brokers
func NewKafkaPublisher(config KafkaConfig) (*KafkaPublisher, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Timeout = 2 * time.Second
	if config.ClientID != "" {
		saramaConfig.ClientID = config.ClientID
	}

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("kafka: create producer: %w", err)
	}

	log.Printf("[EVENTS] Kafka producer connected to %v (topic %s)", config.Brokers, topicOrDefault(config.Topic))
	return NewKafkaPublisherWithProducer(producer, config.Topic), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topicOrDefault(topic)}
}

// PublishSearchCompleted sends the event keyed by request id so events of one
// request land on the same partition. It gives up when ctx is done.
func (p *KafkaPublisher) PublishSearchCompleted(ctx context.Context, event domain.SearchCompletedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: encode event: %w", err)
	}

	key := event.RequestID
	if key == "" {
		key = event.EventID
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventTypeSearchCompleted)},
		},
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := p.producer.SendMessage(msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("kafka: send event %s: %w", event.EventID, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kafka: send event %s: %w", event.EventID, ctx.Err())
	}
}

// Close flushes and closes the producer
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func topicOrDefault(topic string) string {
	if topic == "" {
		return DefaultTopic
	}
	return topic
}
