package queuestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/cookflow/internal/runtime/ids"
	"github.com/drblury/cookflow/internal/runtime/logging"
	"github.com/drblury/cookflow/internal/runtime/metadata"
)

// Transport forwards onto the configured message bus, so the outbound queue
// is a topic on Kafka, RabbitMQ, NATS, SNS/SQS, HTTP or the Go channel.
type Transport struct {
	publisher   message.Publisher
	initializer message.SubscribeInitializer
	logger      logging.ServiceLogger
}

// NewTransport wraps a watermill publisher. initializer is optional; when
// set, CreateQueue uses it to provision the topic ahead of the first publish.
func NewTransport(publisher message.Publisher, initializer message.SubscribeInitializer, logger logging.ServiceLogger) (*Transport, error) {
	if publisher == nil {
		return nil, errors.New("queuestore: publisher is required")
	}
	if logger == nil {
		logger = logging.NewNopServiceLogger()
	}
	return &Transport{
		publisher:   publisher,
		initializer: initializer,
		logger:      logger.With(logging.LogFields{"queue_backend": "transport"}),
	}, nil
}

func (t *Transport) CreateQueue(ctx context.Context, name string) error {
	if err := validateQueueName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.initializer == nil {
		return nil
	}
	if err := t.initializer.SubscribeInitialize(name); err != nil {
		return fmt.Errorf("initialize topic %q: %w", name, err)
	}
	t.logger.Debug("Topic ready", logging.LogFields{"topic": name})
	return nil
}

func (t *Transport) Enqueue(ctx context.Context, queue string, body []byte, md metadata.Metadata) error {
	msg := message.NewMessage(ids.New(), body)
	msg.Metadata = metadata.ToWatermill(md)
	msg.SetContext(ctx)
	if err := t.publisher.Publish(queue, msg); err != nil {
		return fmt.Errorf("publish to %q: %w", queue, err)
	}
	return nil
}

// Close leaves the publisher open; the service that created it owns it.
func (t *Transport) Close() error { return nil }
