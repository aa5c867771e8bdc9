package queue

import (
	"context"
	"errors"
	"fmt"

	"asinpusher/types"

	"github.com/IBM/sarama"
)

// KafkaConfig holds Kafka producer configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPusher publishes one message per token, keyed by site.
type KafkaPusher struct {
	client   sarama.Client
	producer sarama.SyncProducer
	topic    string
}

// NewSaramaConfig returns the producer settings used for the crawl topic.
func NewSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Net.DialTimeout = connectTimeout
	return cfg
}

// NewKafkaPusher connects to the brokers and creates a synchronous producer.
func NewKafkaPusher(cfg KafkaConfig) (*KafkaPusher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	client, err := sarama.NewClient(cfg.Brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to kafka at %v: %w", cfg.Brokers, err)
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaPusher{client: client, producer: producer, topic: cfg.Topic}, nil
}

// NewKafkaPusherWithProducer wraps an existing producer. Ping is a no-op without a client.
func NewKafkaPusherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPusher {
	return &KafkaPusher{producer: producer, topic: topic}
}

func (p *KafkaPusher) Name() string { return "kafka" }

// Push sends all tokens in one batch. Kafka has no set semantics, so every token counts
// as added and the queue size is unknown.
func (p *KafkaPusher) Push(ctx context.Context, records []types.Record) (PushResult, error) {
	res := PushResult{Pushed: len(records), Total: -1}
	if len(records) == 0 {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(rec.Site),
			Value: sarama.StringEncoder(rec.Token()),
		})
	}
	if err := p.producer.SendMessages(msgs); err != nil {
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			res.Added = len(msgs) - len(perrs)
		}
		return res, fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	res.Added = len(msgs)
	return res, nil
}

// Ping refreshes topic metadata from the brokers.
func (p *KafkaPusher) Ping(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.client.RefreshMetadata(p.topic)
}

// Close shuts down the producer and its client.
func (p *KafkaPusher) Close() error {
	err := p.producer.Close()
	if p.client != nil && !p.client.Closed() {
		err = errors.Join(err, p.client.Close())
	}
	return err
}
