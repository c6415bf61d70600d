/*
Package messaging holds what the bus.Transport adapters share.

Adapters for Kafka, AWS SQS, GCP Pub/Sub, a generic streaming.Client bridge
and an in-memory bus live in pkg/messaging/adapters/{kafka,sqs,pubsub,stream,
memory}; each implements the Transport port defined in pkg/bus.

# Architecture

  - Core ports (Transport, Consumable, Envelope) are defined in pkg/bus, not here
  - This package adds routing-attachment keys, the Attachments builder and
    the InstrumentedTransport/ResilientTransport decorators
  - Each adapter lives in its own sub-package, so callers pull in only the
    SDK they need

# Usage

	transport, err := kafka.New(kafka.Config{Brokers: []string{"localhost:9092"}})
	attrs := messaging.NewAttachments().WithPartitionKey([]byte("order-42"))
	err = transport.ProduceToPath(ctx, payload, headers, "orders", attrs)
*/
package messaging
