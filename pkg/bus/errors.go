package bus

import "github.com/chris-alexander-pop/busrt/pkg/errors"

// Error codes for bus operations (orig §7). Every failure surfaced by this
// package is an *errors.AppError carrying one of these codes, so callers can
// classify with errors.CodeOf/errors.Is regardless of which pipeline stage
// raised it.
const (
	CodeConfiguration = "BUS_CONFIGURATION"
	CodeProducer      = "BUS_PRODUCER"
	CodeSerialization = "BUS_SERIALIZATION"
	CodeTransport     = "BUS_TRANSPORT"
	CodeTimeout       = "BUS_TIMEOUT"
	CodeCancelled     = "BUS_CANCELLED"
	CodeDisposed      = "BUS_DISPOSED"
	CodeHandler       = "BUS_HANDLER"
	CodeConsumer      = "BUS_CONSUMER"
)

// ErrConfiguration wraps a build/construction-time configuration failure.
// Always fatal to startup; never retried.
func ErrConfiguration(message string, cause error) *errors.AppError {
	return errors.New(CodeConfiguration, message, cause)
}

// ErrProducer wraps a missing-producer or path-resolution failure,
// surfaced synchronously to the caller of Produce/Publish/Send.
func ErrProducer(message string, cause error) *errors.AppError {
	return errors.New(CodeProducer, message, cause)
}

// ErrSerialization wraps an encode/decode failure.
func ErrSerialization(message string, cause error) *errors.AppError {
	return errors.New(CodeSerialization, message, cause)
}

// ErrTransport wraps a produce/subscribe I/O failure from the adapter.
func ErrTransport(message string, cause error) *errors.AppError {
	return errors.New(CodeTransport, message, cause)
}

// ErrTimeout wraps a pending-request deadline exceeded. Surfaces to the
// caller as cancellation.
func ErrTimeout(message string) *errors.AppError {
	return errors.New(CodeTimeout, message, nil)
}

// ErrCancelled wraps a caller-cancellation signal firing. Idempotent with
// ErrTimeout: whichever transition wins first is what the waiter observes.
func ErrCancelled(message string) *errors.AppError {
	return errors.New(CodeCancelled, message, nil)
}

// ErrDisposed wraps an operation attempted on a torn-down bus. Always fatal
// to that call.
func ErrDisposed(message string) *errors.AppError {
	return errors.New(CodeDisposed, message, nil)
}

// ErrHandler wraps an error returned by a user consumer/handler.
// Surfaced to the transport adapter in the consumer Outcome, and for
// request messages also serialized into an error-reply envelope.
func ErrHandler(message string, cause error) *errors.AppError {
	return errors.New(CodeHandler, message, cause)
}

// ErrConsumer wraps a failure to resolve consumer settings for an inbound
// envelope (unknown type header, no consumer declared for the type, or a
// reply without a correlation id).
func ErrConsumer(message string, cause error) *errors.AppError {
	return errors.New(CodeConsumer, message, cause)
}
