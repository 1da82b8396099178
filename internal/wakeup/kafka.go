package wakeup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// versionEvent is the one-line JSON payload published to Kafka on each
// new version, additional to (never instead of) the unix datagram
// fanout (SPEC_FULL.md §4.2/§D.3).
type versionEvent struct {
	Serial int64 `json:"serial"`
	Time   int64 `json:"time"`
}

// KafkaNotifier publishes version-change events to a Kafka topic, for
// server fleets that don't share a filesystem with the builder.
type KafkaNotifier struct {
	client *kgo.Client
	topic  string
	log    zerolog.Logger
}

// NewKafkaNotifier connects to brokers and makes sure topic exists
// (creating it with a single partition if it doesn't), mirroring the
// admin-then-produce pattern the rv-live Kafka stage uses on the
// consume side.
func NewKafkaNotifier(ctx context.Context, brokers []string, topic string, log zerolog.Logger) (*KafkaNotifier, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("wakeup/kafka: %w", err)
	}

	adm := kadm.NewClient(client)
	defer adm.Close()
	if _, err := adm.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		// topic probably already exists; the producer will surface any
		// real connectivity problem on the first Produce call.
		log.Debug().Err(err).Str("topic", topic).Msg("wakeup/kafka: create topic")
	}

	return &KafkaNotifier{client: client, topic: topic, log: log}, nil
}

// Notify publishes a version-change event for serial.
func (k *KafkaNotifier) Notify(ctx context.Context, serial uint32) error {
	body, err := json.Marshal(versionEvent{Serial: int64(serial), Time: time.Now().Unix()})
	if err != nil {
		return err
	}

	result := k.client.ProduceSync(ctx, &kgo.Record{Topic: k.topic, Value: body})
	return result.FirstErr()
}

func (k *KafkaNotifier) Close() {
	k.client.Close()
}

// KafkaSubscriber is the server side: it consumes version-change
// events and forwards them onto a channel with the same shape as
// Bus.Events, so a server can select on either source uniformly.
type KafkaSubscriber struct {
	client *kgo.Client
	events chan []byte
	log    zerolog.Logger
}

// NewKafkaSubscriber connects as a fresh consumer group member reading
// only new events (spec: a missed notification is harmless, since the
// server re-reads "current" on every client interaction regardless).
func NewKafkaSubscriber(group string, brokers []string, topic string, log zerolog.Logger) (*KafkaSubscriber, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if err != nil {
		return nil, fmt.Errorf("wakeup/kafka: %w", err)
	}

	s := &KafkaSubscriber{client: client, events: make(chan []byte, 4), log: log}
	go s.pollLoop()
	return s, nil
}

func (s *KafkaSubscriber) pollLoop() {
	defer close(s.events)
	ctx := context.Background()
	for {
		fetches := s.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		fetches.EachError(func(_ string, _ int32, err error) {
			s.log.Warn().Err(err).Msg("wakeup/kafka: fetch error")
		})
		fetches.EachRecord(func(r *kgo.Record) {
			select {
			case s.events <- r.Value:
			default:
			}
		})
	}
}

func (s *KafkaSubscriber) Events() <-chan []byte { return s.events }

func (s *KafkaSubscriber) Close() { s.client.Close() }
