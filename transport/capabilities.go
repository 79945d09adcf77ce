package transport

// Capabilities describes the delivery guarantees of a transport backend.
// The service uses them to warn when failed readings cannot be redelivered.
type Capabilities struct {
	Name string

	// SupportsAck indicates the transport acknowledges messages explicitly.
	SupportsAck bool

	// SupportsNack indicates a failed message is redelivered by the broker.
	SupportsNack bool

	// SupportsOrdering indicates messages are delivered in publish order.
	SupportsOrdering bool

	// MaxMessageSize is the maximum message size in bytes (0 = unknown).
	MaxMessageSize int64
}

// SupportsReliableDelivery returns true if failed readings are redelivered,
// which is what makes retriable pipeline errors safe.
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Fits reports whether a message of size bytes is within the limit.
func (c Capabilities) Fits(size int) bool {
	return c.MaxMessageSize == 0 || int64(size) <= c.MaxMessageSize
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsAck:      true,
		SupportsNack:     false,
		SupportsOrdering: true,
		MaxMessageSize:   1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
	}

	NATSCapabilities = Capabilities{
		Name:           "nats",
		MaxMessageSize: 1048576,
	}

	AWSCapabilities = Capabilities{
		Name:             "aws",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
		MaxMessageSize:   262144,
	}

	HTTPCapabilities = Capabilities{
		Name: "http",
	}
)

// GetCapabilities returns the capabilities registered for a transport name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
