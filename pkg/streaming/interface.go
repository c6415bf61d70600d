// Package streaming provides a unified interface for real-time data streaming.
//
// Supported backends:
//   - AWS Kinesis
//   - Azure Event Hubs
//
// Usage:
//
//	import "github.com/chris-alexander-pop/busrt/pkg/streaming/adapters/kinesis"
//
//	client, err := kinesis.New(ctx)
//	err = client.PutRecord(ctx, "my-stream", partitionKey, data)
package streaming
