package messaging

// Config holds the base configuration for messaging.
// Each adapter has its own detailed configuration struct.
type Config struct {
	// Driver specifies which bus.Transport adapter to use.
	// Supported values: memory, kafka, sqs, pubsub
	Driver string `env:"MESSAGING_DRIVER" env-default:"memory"`
}
