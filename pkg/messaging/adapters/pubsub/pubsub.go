// Package pubsub implements a bus.Transport over GCP Pub/Sub, with
// topic-based production and subscription-based consumption.
package pubsub

import (
	"context"
	"sync"

	"cloud.google.com/go/pubsub/v2"
	"github.com/chris-alexander-pop/busrt/pkg/bus"
	"github.com/chris-alexander-pop/busrt/pkg/logger"
	"github.com/chris-alexander-pop/busrt/pkg/messaging"
)

// Config configures the Pub/Sub transport.
type Config struct {
	ProjectID string `env:"PUBSUB_PROJECT_ID"`
}

// Transport is a bus.Transport and bus.Consumable over a single
// *pubsub.Client, publishing to topics named by path and subscribing via
// subscription IDs named by group (orig §3 "Path"/"consumer group").
type Transport struct {
	client *pubsub.Client

	mu          sync.Mutex
	publishers  map[string]*pubsub.Publisher
	subscribers []*pubsub.Subscriber
	cancels     []context.CancelFunc
}

// New dials projectID.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, messaging.ErrConnectionFailed(err)
	}
	return &Transport{client: client, publishers: make(map[string]*pubsub.Publisher)}, nil
}

func (t *Transport) Start(ctx context.Context) error { return nil }

func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	cancels := t.cancels
	t.cancels = nil
	t.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

// ProvisionTopology is a no-op: topic/subscription creation in GCP Pub/Sub
// normally happens out-of-band via Terraform/gcloud, matching how the
// teacher's streaming adapters treat stream/topic provisioning as an
// external concern.
func (t *Transport) ProvisionTopology(ctx context.Context, paths []bus.PathSpec) error { return nil }

func (t *Transport) publisher(topic string) *pubsub.Publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.publishers[topic]; ok {
		return p
	}
	p := t.client.Publisher(topic)
	t.publishers[topic] = p
	return p
}

// ProduceToPath publishes to the Pub/Sub topic named path.
// routingAttrs["orderingKey"] (messaging.AttrOrderingKey), if present, sets
// the message's ordering key.
func (t *Transport) ProduceToPath(ctx context.Context, payload []byte, headers bus.Headers, path string, routingAttrs map[string]any) error {
	msg := &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string(headers),
	}
	if key := messaging.String(routingAttrs, messaging.AttrOrderingKey); key != "" {
		msg.OrderingKey = key
	}
	result := t.publisher(path).Publish(ctx, msg)
	if _, err := result.Get(ctx); err != nil {
		return messaging.ErrPublishFailed(err)
	}
	return nil
}

// RegisterConsumer subscribes to the subscription named group (Pub/Sub has
// no separate topic/subscription-per-consumer-group concept at the path
// level the way Kafka does, so group is taken to be the subscription ID)
// and delivers every received message to deliver.
func (t *Transport) RegisterConsumer(ctx context.Context, path, group string, deliver bus.ConsumerDeliverFunc) error {
	sub := t.client.Subscriber(group)

	runCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.subscribers = append(t.subscribers, sub)
	t.cancels = append(t.cancels, cancel)
	t.mu.Unlock()

	go func() {
		err := sub.Receive(runCtx, func(ctx context.Context, m *pubsub.Message) {
			env := &bus.Envelope{Payload: m.Data, Headers: bus.Headers(m.Attributes)}
			outcome, err := deliver(ctx, env)
			if err != nil {
				logger.L().ErrorContext(ctx, "pubsub dispatch failed", "subscription", group, "error", err)
			}
			if outcome.Consumed {
				m.Ack()
			} else {
				m.Nack()
			}
		})
		if err != nil && runCtx.Err() == nil {
			logger.L().ErrorContext(runCtx, "pubsub receive loop ended", "subscription", group, "error", err)
		}
	}()
	return nil
}

// Dispose stops every subscription and closes the client.
func (t *Transport) Dispose(ctx context.Context) error {
	_ = t.Stop(ctx)
	if err := t.client.Close(); err != nil {
		return messaging.ErrClosed(err)
	}
	return nil
}

var _ bus.Transport = (*Transport)(nil)
var _ bus.Consumable = (*Transport)(nil)
