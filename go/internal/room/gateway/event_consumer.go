package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/buzzroom/go/internal/room/events"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// EventSource feeds room events to a ConnectionManager.
type EventSource interface {
	Start(ctx context.Context) error
	Stop() error
}

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	StreamName    string
	ConsumerName  string // one per gateway process, every process sees every event
	SubjectFilter string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	// InactiveThreshold removes the consumer after its gateway goes away.
	InactiveThreshold time.Duration
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		StreamName:        events.StreamName,
		ConsumerName:      "buzz-gateway-" + uuid.NewString()[:8],
		SubjectFilter:     events.SubjectPrefix + ".>",
		MaxDeliver:        5,
		AckWait:           30 * time.Second,
		MaxAckPending:     1000,
		InactiveThreshold: 5 * time.Minute,
	}
}

// EventConsumer consumes events from JetStream and broadcasts to websocket clients
type EventConsumer struct {
	connectionManager *ConnectionManager
	js                jetstream.JetStream
	consumer          jetstream.Consumer
	config            JetStreamConsumerConfig

	mu      sync.Mutex
	consume jetstream.ConsumeContext
}

// NewEventConsumer creates a JetStream event consumer on an existing connection
func NewEventConsumer(ctx context.Context, cm *ConnectionManager, js jetstream.JetStream, config JetStreamConsumerConfig) (*EventConsumer, error) {
	ec := &EventConsumer{
		connectionManager: cm,
		js:                js,
		config:            config,
	}
	if err := ec.ensureConsumer(ctx); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return ec, nil
}

func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:              ec.config.ConsumerName,
		Durable:           ec.config.ConsumerName,
		Description:       "buzzroom gateway websocket consumer",
		FilterSubject:     ec.config.SubjectFilter,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		MaxDeliver:        ec.config.MaxDeliver,
		AckWait:           ec.config.AckWait,
		MaxAckPending:     ec.config.MaxAckPending,
		ReplayPolicy:      jetstream.ReplayInstantPolicy,
		InactiveThreshold: ec.config.InactiveThreshold,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("JetStream consumer ready")

	ec.consumer = consumer
	return nil
}

// Start consumes events until ctx is done.
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	ec.mu.Lock()
	ec.consume = consumeCtx
	ec.mu.Unlock()
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.processMessage(msg); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("dropping undecodable event")
				if termErr := msg.Term(); termErr != nil {
					log.Error().Err(termErr).Msg("failed to TERM message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

func (ec *EventConsumer) processMessage(msg jetstream.Msg) error {
	var e events.Event
	if err := json.Unmarshal(msg.Data(), &e); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	if e.Room == "" {
		return fmt.Errorf("event %s has no room", e.ID)
	}

	log.Debug().
		Str("event_id", e.ID).
		Str("room", e.Room).
		Str("event_type", string(e.Type)).
		Msg("processing JetStream event")

	ec.connectionManager.BroadcastEvent(e)
	return nil
}

// Stop stops message delivery. The NATS connection belongs to the caller.
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping event consumer")

	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.consume != nil {
		ec.consume.Stop()
	}
	return nil
}

// GetConsumerInfo returns information about the consumer
func (ec *EventConsumer) GetConsumerInfo(ctx context.Context) (*jetstream.ConsumerInfo, error) {
	return ec.consumer.Info(ctx)
}

// Subscriber is an in-process event source such as *events.Bus.
type Subscriber interface {
	Subscribe(ctx context.Context, room string) <-chan events.Event
}

// BusConsumer broadcasts events of an in-process bus. It serves single
// process deployments that run without NATS.
type BusConsumer struct {
	connectionManager *ConnectionManager
	feed              <-chan events.Event
	cancel            context.CancelFunc
}

// NewBusConsumer subscribes to every room's events on subscriber. Events
// published after this call are delivered once Start runs.
func NewBusConsumer(cm *ConnectionManager, subscriber Subscriber) *BusConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &BusConsumer{
		connectionManager: cm,
		feed:              subscriber.Subscribe(ctx, ""),
		cancel:            cancel,
	}
}

// Start forwards events until ctx is done or Stop is called.
func (bc *BusConsumer) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			bc.cancel()
			return nil
		case e, ok := <-bc.feed:
			if !ok {
				return nil
			}
			bc.connectionManager.BroadcastEvent(e)
		}
	}
}

func (bc *BusConsumer) Stop() error {
	bc.cancel()
	return nil
}
