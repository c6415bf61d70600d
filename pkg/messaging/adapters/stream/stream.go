// Package stream bridges pkg/streaming.Client (Kinesis, Event Hubs, or the
// in-memory test client) into a bus.Transport. It is produce-only: these
// streaming clients have no subscribe side, so a Transport built here never
// satisfies bus.Consumable, matching the spec's note that not every
// adapter supports consumption.
package stream

import (
	"context"

	"github.com/chris-alexander-pop/busrt/pkg/bus"
	"github.com/chris-alexander-pop/busrt/pkg/messaging"
	"github.com/chris-alexander-pop/busrt/pkg/streaming"
)

// Transport wraps a streaming.Client so it can back a bus's produce side
// (e.g. publishing domain events onto a Kinesis/Event Hubs stream that
// another system tails independently).
type Transport struct {
	client streaming.Client
}

// New wraps client.
func New(client streaming.Client) *Transport {
	return &Transport{client: client}
}

func (t *Transport) Start(ctx context.Context) error                                  { return nil }
func (t *Transport) Stop(ctx context.Context) error                                    { return nil }
func (t *Transport) ProvisionTopology(ctx context.Context, paths []bus.PathSpec) error { return nil }

// ProduceToPath writes payload to the stream named path.
// routingAttrs["partitionKey"] (messaging.AttrPartitionKey), if present, is
// used as the record's partition key; headers are dropped, since
// streaming.Client.PutRecord carries no attribute/header channel.
func (t *Transport) ProduceToPath(ctx context.Context, payload []byte, headers bus.Headers, path string, routingAttrs map[string]any) error {
	partitionKey := string(messaging.Bytes(routingAttrs, messaging.AttrPartitionKey))
	if err := t.client.PutRecord(ctx, path, partitionKey, payload); err != nil {
		return messaging.ErrPublishFailed(err)
	}
	return nil
}

// Dispose closes the underlying streaming client.
func (t *Transport) Dispose(ctx context.Context) error {
	if err := t.client.Close(); err != nil {
		return messaging.ErrClosed(err)
	}
	return nil
}

var _ bus.Transport = (*Transport)(nil)
