// Package messaging hosts shared concerns for bus.Transport adapters:
// well-known routing-attachment keys, a fluent Attachments builder, and the
// decorator layer (instrumented.go, resilient.go) every concrete adapter
// under pkg/messaging/adapters can be wrapped with.
//
// # Architecture
//
// Core ports (Transport, Consumable, Envelope) live in pkg/bus — this
// package only adds the transport-facing concerns that sit on top of them.
// Each concrete adapter lives in its own sub-package
// (pkg/messaging/adapters/{driver}) so callers pull in only the SDK they
// need.
//
// # Usage
//
//	import (
//	    "github.com/chris-alexander-pop/busrt/pkg/bus"
//	    "github.com/chris-alexander-pop/busrt/pkg/messaging"
//	    "github.com/chris-alexander-pop/busrt/pkg/messaging/adapters/kafka"
//	)
//
//	transport, err := kafka.New(kafka.Config{Brokers: []string{"localhost:9092"}})
//	attrs := messaging.NewAttachments().WithPartitionKey([]byte("order-42"))
//	err = transport.ProduceToPath(ctx, payload, headers, "orders", attrs)
package messaging

// Well-known routing-attachment keys passed from ProducerSettings.
// Attachments, as the routingAttrs argument of Transport.ProduceToPath, to a
// concrete adapter
// (orig §3 "keyProvider, partitionProvider"). An adapter only reads the
// keys it understands and ignores the rest.
const (
	AttrOrderingKey     = "orderingKey"     // GCP Pub/Sub ordering key
	AttrPartitionKey    = "partitionKey"    // Kafka partition/message key
	AttrDelaySeconds    = "delaySeconds"    // SQS / Azure Service Bus delivery delay
	AttrMessageGroupID  = "messageGroupId"  // SQS FIFO message group
	AttrDeduplicationID = "deduplicationId" // SQS FIFO dedup id
)

// Attachments is a fluent builder for a routingAttrs map, kept in the same
// WithX(...) option style the teacher used for PublishOption so call sites
// read the same way even though the destination is now a plain map
// passed as ProduceToPath's routingAttrs rather than a broker-specific struct.
type Attachments map[string]any

// NewAttachments starts an empty attachment set.
func NewAttachments() Attachments {
	return Attachments{}
}

// WithOrderingKey sets the GCP Pub/Sub ordering key.
func (a Attachments) WithOrderingKey(key string) Attachments {
	a[AttrOrderingKey] = key
	return a
}

// WithPartitionKey sets the Kafka partition/message key.
func (a Attachments) WithPartitionKey(key []byte) Attachments {
	a[AttrPartitionKey] = key
	return a
}

// WithDelay sets a delivery delay in seconds (SQS, Azure Service Bus).
func (a Attachments) WithDelay(seconds int64) Attachments {
	a[AttrDelaySeconds] = seconds
	return a
}

// WithMessageGroupID sets the SQS FIFO message group id.
func (a Attachments) WithMessageGroupID(groupID string) Attachments {
	a[AttrMessageGroupID] = groupID
	return a
}

// WithDeduplicationID sets the SQS FIFO deduplication id.
func (a Attachments) WithDeduplicationID(dedupID string) Attachments {
	a[AttrDeduplicationID] = dedupID
	return a
}

// String looks up key in attrs and type-asserts it to string, returning ""
// on a miss or type mismatch. Adapters use this rather than repeating the
// two-value assertion at every call site.
func String(attrs map[string]any, key string) string {
	v, _ := attrs[key].(string)
	return v
}

// Bytes looks up key in attrs and type-asserts it to []byte.
func Bytes(attrs map[string]any, key string) []byte {
	v, _ := attrs[key].([]byte)
	return v
}

// Int64 looks up key in attrs and type-asserts it to int64.
func Int64(attrs map[string]any, key string) int64 {
	v, _ := attrs[key].(int64)
	return v
}
