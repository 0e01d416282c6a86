// Package kafka forwards confirmed-transaction stats to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/brojonat/slotrelay/service/relay"
)

// Envelope wraps every message written to the topic.
type Envelope struct {
	Type string              `json:"type"`
	TS   int64               `json:"ts"`
	Data relay.ConfirmedStat `json:"data"`
}

const envelopeType = "confirmed_stat"

// Sink publishes stats with a synchronous producer. Messages are keyed by
// endpoint so one endpoint's stats stay ordered within a partition.
type Sink struct {
	topic  string
	p      sarama.SyncProducer
	logger *slog.Logger
}

// NewProducerConfig returns the producer settings used by NewSink.
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "slotrelay"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	// SyncProducer requires both.
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	return cfg
}

// NewSink dials brokers and returns a Sink writing to topic.
func NewSink(brokers []string, topic string, logger *slog.Logger) (*Sink, error) {
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers")
	}
	p, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	logger.Info("kafka sink initialized", "brokers", brokers, "topic", topic)
	return NewSinkWithProducer(p, topic, logger), nil
}

// NewSinkWithProducer wraps an existing producer.
func NewSinkWithProducer(p sarama.SyncProducer, topic string, logger *slog.Logger) *Sink {
	return &Sink{topic: topic, p: p, logger: logger}
}

var _ relay.StatsSink = (*Sink)(nil)

func (s *Sink) Name() string { return "kafka" }

// Submit writes stat and waits for the broker ack. SyncProducer does not take
// a context, so ctx is only checked before sending.
func (s *Sink) Submit(ctx context.Context, stat relay.ConfirmedStat) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := json.Marshal(Envelope{
		Type: envelopeType,
		TS:   time.Now().UnixMilli(),
		Data: stat,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal stat: %w", err)
	}

	partition, offset, err := s.p.SendMessage(&sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(stat.Endpoint),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("kafka emit failed: %w", err)
	}

	s.logger.Debug("published stat to kafka",
		"topic", s.topic,
		"partition", partition,
		"offset", offset,
		"signature", stat.Signature,
	)
	return nil
}

func (s *Sink) Close() error {
	if s.p != nil {
		return s.p.Close()
	}
	return nil
}
