package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"CoverLedger/internal/observability"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds events
// into the deterministic core via the eventChan. JetStream is the primary
// high-throughput ingestion surface; each event family has its own subject
// for independent scaling.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
	metrics   *observability.Metrics
}

// RawEvent is the parsed-but-untyped event from NATS, ready for the shell
// to validate and convert into a typed event.Event before sending to the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to event types.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "cover.pools.created.>", EventType: "PoolCreated", ConsumerName: "cover-pool-create", StreamName: "COVER_POOLS"},
		{Subject: "cover.liquidity.added.>", EventType: "LiquidityAdded", ConsumerName: "cover-liq-add", StreamName: "COVER_LIQUIDITY"},
		{Subject: "cover.liquidity.withdrawn.>", EventType: "LiquidityWithdrawn", ConsumerName: "cover-liq-withdraw", StreamName: "COVER_LIQUIDITY"},
		{Subject: "cover.policies.bought.>", EventType: "PolicyBought", ConsumerName: "cover-policy-buy", StreamName: "COVER_POLICIES"},
		{Subject: "cover.vesting.created.>", EventType: "VestingCreated", ConsumerName: "cover-vest-create", StreamName: "COVER_VESTING"},
		{Subject: "cover.vesting.canceled.>", EventType: "VestingCanceled", ConsumerName: "cover-vest-cancel", StreamName: "COVER_VESTING"},
		{Subject: "cover.vesting.withdrawn.>", EventType: "VestingWithdrawn", ConsumerName: "cover-vest-withdraw", StreamName: "COVER_VESTING"},
		{Subject: "cover.vesting.excess.>", EventType: "ExcessiveTokensWithdrawn", ConsumerName: "cover-vest-excess", StreamName: "COVER_VESTING"},
		{Subject: "cover.mining.invested.>", EventType: "DAIInvested", ConsumerName: "cover-mine-invest", StreamName: "COVER_MINING"},
		{Subject: "cover.mining.checked.>", EventType: "RewardChecked", ConsumerName: "cover-mine-check", StreamName: "COVER_MINING"},
		{Subject: "cover.mining.claimed.>", EventType: "RewardClaimed", ConsumerName: "cover-mine-claim", StreamName: "COVER_MINING"},
		{Subject: "cover.mining.nft.>", EventType: "NFTDistributed", ConsumerName: "cover-mine-nft", StreamName: "COVER_MINING"},
		{Subject: "cover.staking.staked.>", EventType: "SharesStaked", ConsumerName: "cover-stake-lock", StreamName: "COVER_STAKING"},
		{Subject: "cover.staking.withdrawn.>", EventType: "SharesWithdrawn", ConsumerName: "cover-stake-unlock", StreamName: "COVER_STAKING"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent, metrics *observability.Metrics) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		metrics:   metrics,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			if ns.metrics != nil {
				if meta, metaErr := msg.Metadata(); metaErr == nil {
					ns.metrics.NATSPullLatency.WithLabelValues(msg.Subject()).
						Observe(time.Since(meta.Timestamp).Seconds())
				}
			}

			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
				// Successfully queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "COVER_POOLS",
			Subjects:  []string{"cover.pools.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "COVER_LIQUIDITY",
			Subjects:  []string{"cover.liquidity.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "COVER_POLICIES",
			Subjects:  []string{"cover.policies.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "COVER_VESTING",
			Subjects:  []string{"cover.vesting.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "COVER_MINING",
			Subjects:  []string{"cover.mining.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "COVER_STAKING",
			Subjects:  []string{"cover.staking.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
