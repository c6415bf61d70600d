// Package sqs implements a bus.Transport over AWS SQS. Unlike the
// push-based Kafka/Pub/Sub adapters, SQS is a pull-style queue server, so
// consumption is driven by the reference pull loop in pkg/bus/pull rather
// than a transport-owned push subscription (orig §4.7).
package sqs

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/chris-alexander-pop/busrt/pkg/bus"
	"github.com/chris-alexander-pop/busrt/pkg/bus/pull"
	"github.com/chris-alexander-pop/busrt/pkg/messaging"
)

// Config configures the SQS transport.
type Config struct {
	Region string `env:"SQS_REGION"`

	// QueueURLs maps a bus path to the SQS queue URL that backs it.
	// ProvisionTopology and ProduceToPath both resolve through this map.
	QueueURLs map[string]string

	// WaitTimeSeconds is the long-poll duration used by the pull Source's
	// ReceiveMessage calls (max 20, per the SQS API).
	WaitTimeSeconds int32
}

// Transport is a bus.Transport and bus.Consumable over SQS. Consumption is
// implemented by registering one pull.Source per RegisterConsumer call on
// a shared pull.Loop.
type Transport struct {
	cfg    Config
	client *sqs.Client
	loop   *pull.Loop

	mu      sync.Mutex
	started bool
}

// New constructs a Transport from cfg, loading AWS credentials the
// standard SDK way (environment, shared config, or instance role).
func New(ctx context.Context, cfg Config) (*Transport, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, messaging.ErrConnectionFailed(err)
	}
	if cfg.WaitTimeSeconds <= 0 {
		cfg.WaitTimeSeconds = 10
	}
	return &Transport{
		cfg:    cfg,
		client: sqs.NewFromConfig(awsCfg),
		loop:   pull.New(pull.Config{}),
	}, nil
}

func (t *Transport) queueURL(path string) (string, error) {
	url, ok := t.cfg.QueueURLs[path]
	if !ok {
		return "", messaging.ErrTopicNotFound(path, nil)
	}
	return url, nil
}

// Start launches the shared pull loop; every queue registered via
// RegisterConsumer before Start begins polling now.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}
	t.loop.Start(ctx)
	t.started = true
	return nil
}

// Stop halts the pull loop, awaiting its in-flight poll.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return nil
	}
	t.loop.Stop()
	t.started = false
	return nil
}

// ProvisionTopology is a no-op: QueueURLs are supplied by the caller in
// Config rather than created here, since queue creation typically happens
// out-of-band (Terraform/CloudFormation).
func (t *Transport) ProvisionTopology(ctx context.Context, paths []bus.PathSpec) error { return nil }

// ProduceToPath sends a message to the SQS queue mapped from path.
// routingAttrs["messageGroupId"]/["deduplicationId"]
// (messaging.AttrMessageGroupID/AttrDeduplicationID) are honored for FIFO
// queues; ["delaySeconds"] (messaging.AttrDelaySeconds) sets a delivery
// delay.
func (t *Transport) ProduceToPath(ctx context.Context, payload []byte, headers bus.Headers, path string, routingAttrs map[string]any) error {
	url, err := t.queueURL(path)
	if err != nil {
		return err
	}

	attrs := make(map[string]types.MessageAttributeValue, len(headers))
	for k, v := range headers {
		attrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(url),
		MessageBody:       aws.String(string(payload)),
		MessageAttributes: attrs,
	}
	if groupID := messaging.String(routingAttrs, messaging.AttrMessageGroupID); groupID != "" {
		input.MessageGroupId = aws.String(groupID)
	}
	if dedupID := messaging.String(routingAttrs, messaging.AttrDeduplicationID); dedupID != "" {
		input.MessageDeduplicationId = aws.String(dedupID)
	}
	if delay := messaging.Int64(routingAttrs, messaging.AttrDelaySeconds); delay > 0 {
		input.DelaySeconds = int32(delay)
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return messaging.ErrPublishFailed(err)
	}
	return nil
}

// RegisterConsumer adds path as a queue on the shared pull loop, one
// processor which invokes deliver and deletes the SQS message on success
// (orig §4.7 "per-queue processor list").
func (t *Transport) RegisterConsumer(ctx context.Context, path, group string, deliver bus.ConsumerDeliverFunc) error {
	url, err := t.queueURL(path)
	if err != nil {
		return err
	}

	source := &queueSource{client: t.client, queueURL: url, waitSeconds: t.cfg.WaitTimeSeconds}
	processor := func(ctx context.Context, env *bus.Envelope) error {
		outcome, err := deliver(ctx, env)
		if outcome.Consumed {
			source.delete(ctx, env)
		}
		return err
	}
	t.loop.AddQueue(path, source, processor)
	return nil
}

// Dispose stops the pull loop. The SQS client itself owns no closable
// resources.
func (t *Transport) Dispose(ctx context.Context) error {
	return t.Stop(ctx)
}

// queueSource implements pull.Source over a single SQS queue, long-polling
// for up to one message per Pop call and keeping the receipt handle in a
// map keyed by the envelope so delete() can acknowledge it.
type queueSource struct {
	client      *sqs.Client
	queueURL    string
	waitSeconds int32

	mu      sync.Mutex
	handles map[*bus.Envelope]string
}

func (s *queueSource) Pop(ctx context.Context) (*bus.Envelope, bool, error) {
	out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     s.waitSeconds,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, false, messaging.ErrConsumeFailed(err)
	}
	if len(out.Messages) == 0 {
		return nil, false, nil
	}

	msg := out.Messages[0]
	headers := make(bus.Headers, len(msg.MessageAttributes))
	for k, v := range msg.MessageAttributes {
		if v.StringValue != nil {
			headers[k] = *v.StringValue
		}
	}
	env := &bus.Envelope{Payload: []byte(aws.ToString(msg.Body)), Headers: headers}

	s.mu.Lock()
	if s.handles == nil {
		s.handles = make(map[*bus.Envelope]string)
	}
	s.handles[env] = aws.ToString(msg.ReceiptHandle)
	s.mu.Unlock()

	return env, true, nil
}

func (s *queueSource) delete(ctx context.Context, env *bus.Envelope) {
	s.mu.Lock()
	handle, ok := s.handles[env]
	if ok {
		delete(s.handles, env)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	_, _ = s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: aws.String(handle),
	})
}

var _ bus.Transport = (*Transport)(nil)
var _ bus.Consumable = (*Transport)(nil)
var _ pull.Source = (*queueSource)(nil)
