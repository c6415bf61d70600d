// Package kafka implements a bus.Transport over IBM/sarama: produce via a
// sync producer, consume via a consumer-group, and topology provisioning
// via sarama's cluster admin client.
package kafka

import (
	"context"
	"sync"

	"github.com/IBM/sarama"
	"github.com/chris-alexander-pop/busrt/pkg/bus"
	"github.com/chris-alexander-pop/busrt/pkg/logger"
	"github.com/chris-alexander-pop/busrt/pkg/messaging"
)

// Config configures the Kafka transport.
type Config struct {
	Brokers []string `env:"KAFKA_BROKERS"`

	// Version is the Kafka protocol version sarama should negotiate.
	// Defaults to sarama's own DefaultVersion when zero.
	Version sarama.KafkaVersion

	// PartitionCount/ReplicationFactor are used when ProvisionTopology
	// creates a topic that does not yet exist.
	PartitionCount    int32
	ReplicationFactor int16
}

// Transport is a bus.Transport and bus.Consumable backed by a single
// sarama client shared between a sync producer and any consumer groups
// registered via RegisterConsumer (orig §6 "Transport port").
type Transport struct {
	cfg Config

	client   sarama.Client
	producer sarama.SyncProducer
	admin    sarama.ClusterAdmin

	mu     sync.Mutex
	groups []*consumerGroup
}

// New dials brokers and constructs the shared client, sync producer, and
// cluster admin.
func New(cfg Config) (*Transport, error) {
	saramaCfg := sarama.NewConfig()
	if cfg.Version != (sarama.KafkaVersion{}) {
		saramaCfg.Version = cfg.Version
	}
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, messaging.ErrConnectionFailed(err)
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, messaging.ErrConnectionFailed(err)
	}
	admin, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		_ = producer.Close()
		_ = client.Close()
		return nil, messaging.ErrConnectionFailed(err)
	}

	return &Transport{cfg: cfg, client: client, producer: producer, admin: admin}, nil
}

func (t *Transport) Start(ctx context.Context) error { return nil }

// Stop stops every registered consumer group but leaves the producer and
// admin client usable.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	groups := t.groups
	t.mu.Unlock()
	for _, g := range groups {
		g.stop()
	}
	return nil
}

// ProvisionTopology creates every named topic that doesn't already exist
// (orig §6 "reconcile required paths/groups before starting").
func (t *Transport) ProvisionTopology(ctx context.Context, paths []bus.PathSpec) error {
	existing, err := t.admin.ListTopics()
	if err != nil {
		return messaging.ErrTopicNotFound("(list)", err)
	}

	partitions := t.cfg.PartitionCount
	if partitions <= 0 {
		partitions = 1
	}
	replication := t.cfg.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}

	seen := make(map[string]bool)
	for _, p := range paths {
		if p.Path == "" || seen[p.Path] {
			continue
		}
		seen[p.Path] = true
		if _, ok := existing[p.Path]; ok {
			continue
		}
		err := t.admin.CreateTopic(p.Path, &sarama.TopicDetail{
			NumPartitions:     partitions,
			ReplicationFactor: replication,
		}, false)
		if err != nil && err != sarama.ErrTopicAlreadyExists {
			return messaging.ErrInvalidConfig("failed to create topic "+p.Path, err)
		}
	}
	return nil
}

// ProduceToPath publishes payload+headers to the Kafka topic named path.
// routingAttrs["partitionKey"] (messaging.AttrPartitionKey), if present, is
// used as the message key.
func (t *Transport) ProduceToPath(ctx context.Context, payload []byte, headers bus.Headers, path string, routingAttrs map[string]any) error {
	msg := &sarama.ProducerMessage{
		Topic: path,
		Value: sarama.ByteEncoder(payload),
	}
	if key := messaging.Bytes(routingAttrs, messaging.AttrPartitionKey); len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	if _, _, err := t.producer.SendMessage(msg); err != nil {
		return messaging.ErrPublishFailed(err)
	}
	return nil
}

// RegisterConsumer starts a sarama consumer group for (path, group) and
// hands every claimed message to deliver.
func (t *Transport) RegisterConsumer(ctx context.Context, path, group string, deliver bus.ConsumerDeliverFunc) error {
	cg, err := sarama.NewConsumerGroupFromClient(group, t.client)
	if err != nil {
		return messaging.ErrConsumeFailed(err)
	}

	g := &consumerGroup{
		cg:      cg,
		topic:   path,
		group:   group,
		deliver: deliver,
	}
	runCtx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel

	t.mu.Lock()
	t.groups = append(t.groups, g)
	t.mu.Unlock()

	go func() {
		for {
			if err := cg.Consume(runCtx, []string{path}, g); err != nil {
				if runCtx.Err() != nil {
					return
				}
				logger.L().ErrorContext(runCtx, "kafka consumer group error", "topic", path, "group", group, "error", err)
			}
			if runCtx.Err() != nil {
				return
			}
		}
	}()
	return nil
}

// Dispose stops every consumer group and closes the producer, admin and
// client in that order.
func (t *Transport) Dispose(ctx context.Context) error {
	_ = t.Stop(ctx)
	if err := t.producer.Close(); err != nil {
		return messaging.ErrClosed(err)
	}
	if err := t.admin.Close(); err != nil {
		return messaging.ErrClosed(err)
	}
	if err := t.client.Close(); err != nil {
		return messaging.ErrClosed(err)
	}
	return nil
}

// consumerGroup adapts a bus.ConsumerDeliverFunc to sarama's
// ConsumerGroupHandler interface.
type consumerGroup struct {
	cg      sarama.ConsumerGroup
	topic   string
	group   string
	deliver bus.ConsumerDeliverFunc
	cancel  context.CancelFunc
}

func (g *consumerGroup) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (g *consumerGroup) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim runs until claim's channel closes, delivering each message
// to the consumer pipeline and marking it consumed on success so sarama
// commits the offset (orig §4.6 step 1, "the transport... decides
// retry/ack policy" — a dispatch failure is logged but the offset is still
// marked, since sarama's auto-commit has no per-message nack concept).
func (g *consumerGroup) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		env := &bus.Envelope{Payload: msg.Value, Headers: make(bus.Headers, len(msg.Headers))}
		for _, h := range msg.Headers {
			env.Headers[string(h.Key)] = string(h.Value)
		}

		outcome, err := g.deliver(session.Context(), env)
		if err != nil {
			logger.L().ErrorContext(session.Context(), "kafka dispatch failed",
				"topic", g.topic, "group", g.group, "error", err)
		}
		if outcome.Consumed {
			session.MarkMessage(msg, "")
		}
	}
	return nil
}

func (g *consumerGroup) stop() {
	g.cancel()
	_ = g.cg.Close()
}

var _ bus.Transport = (*Transport)(nil)
var _ bus.Consumable = (*Transport)(nil)
