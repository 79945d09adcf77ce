// Package transport defines how cookflow reaches its message bus. Each
// backend (kafka, rabbitmq, aws, ...) lives in its own sub-package and
// registers a Builder with the registry from an init function.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Initializer returns the subscriber as a SubscribeInitializer when the
// backend can provision topics ahead of use, or nil.
func (t Transport) Initializer() message.SubscribeInitializer {
	if si, ok := t.Subscriber.(message.SubscribeInitializer); ok {
		return si
	}
	return nil
}

// Close shuts down the publisher and, when it is a different object, the
// subscriber.
func (t Transport) Close() error {
	var firstErr error
	if t.Publisher != nil {
		firstErr = t.Publisher.Close()
	}
	if t.Subscriber != nil && any(t.Subscriber) != any(t.Publisher) {
		if err := t.Subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config exposes only the settings transports need, so backends do not
// depend on the full config package.
type Config interface {
	GetPubSubSystem() string

	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	GetRabbitMQURL() string

	GetNATSURL() string

	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}
