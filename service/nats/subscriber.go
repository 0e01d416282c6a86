package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// SubscribeOptions selects which stats a consumer receives.
type SubscribeOptions struct {
	// Endpoint filters to one endpoint's subject. Empty means all endpoints.
	Endpoint string
	// Durable names a durable consumer that survives restarts. Empty means ephemeral.
	Durable string
	// NewOnly skips events stored before the consumer was created.
	NewOnly bool
}

// FilterSubject returns the subject filter for the options.
func (o SubscribeOptions) FilterSubject() string {
	if o.Endpoint == "" {
		return StreamSubjects
	}
	return SubjectFor(o.Endpoint)
}

// Subscribe consumes stats events until ctx is done, calling handle for each.
// Messages that fail to decode are acked and skipped.
func Subscribe(ctx context.Context, js jetstream.JetStream, opts SubscribeOptions, logger *slog.Logger, handle func(*StatsEvent)) error {
	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: opts.FilterSubject(),
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if opts.NewOnly {
		consumerConfig.DeliverPolicy = jetstream.DeliverNewPolicy
	}
	if opts.Durable != "" {
		consumerConfig.Durable = opts.Durable
		consumerConfig.Name = opts.Durable
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	msgChan := make(chan jetstream.Msg, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		select {
		case msgChan <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	for {
		select {
		case msg := <-msgChan:
			event, err := DecodeStatsEvent(msg.Data())
			if err != nil {
				logger.Warn("skipping malformed stats event", "subject", msg.Subject(), "error", err)
			} else {
				handle(event)
			}
			if err := msg.Ack(); err != nil {
				logger.Warn("failed to ack stats event", "error", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// DecodeStatsEvent parses a published stats event.
func DecodeStatsEvent(data []byte) (*StatsEvent, error) {
	var event StatsEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to decode stats event: %w", err)
	}
	if event.Signature == "" {
		return nil, fmt.Errorf("stats event has no signature")
	}
	return &event, nil
}
