package bus

import "time"

// Well-known header keys (orig spec §6 "Headers on the wire").
const (
	HeaderCorrelationID = "CorrelationId"
	HeaderReplyTo       = "ReplyTo"
	HeaderMessageType   = "MessageType"
	HeaderExpires       = "Expires"
	HeaderOriginator    = "Originator"
	HeaderError         = "Error"
	HeaderErrorCode     = "ErrorCode"
)

// Headers is the wire header map. Values are primitives on the wire
// (string | int | long | bool); the in-process representation keeps them as
// strings and leaves numeric/bool parsing to callers that need it, since the
// core never branches on header value types itself.
type Headers map[string]string

// Clone returns a shallow copy of h. A nil receiver returns an empty, non-nil map.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Envelope is the transport-neutral triple the spec calls the "message
// envelope on the wire": payload bytes, a header map, and transport-specific
// routing keys. Header map insertion order is not significant.
type Envelope struct {
	Payload []byte
	Headers Headers

	// RoutingAttrs carries transport-specific routing keys (e.g. a Kafka
	// partition key, an SQS message-group ID) keyed by attachment name. The
	// core neither sets nor reads this field: producer attachments reach the
	// transport as the routingAttrs argument of ProduceToPath instead.
	RoutingAttrs map[string]any
}

// NewEnvelope builds an Envelope with a non-nil header map.
func NewEnvelope(payload []byte) *Envelope {
	return &Envelope{Payload: payload, Headers: make(Headers)}
}

// CorrelationID returns the envelope's correlation-id header, if any.
func (e *Envelope) CorrelationID() string {
	return e.Headers[HeaderCorrelationID]
}

// expiresAt parses the Expires header (RFC3339) set by the producer
// pipeline on a request message. Returns the zero time if absent/invalid.
func (e *Envelope) expiresAt() time.Time {
	raw, ok := e.Headers[HeaderExpires]
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
