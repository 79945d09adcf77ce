package runtime

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/cookflow/internal/runtime/errors"
	idspkg "github.com/drblury/cookflow/internal/runtime/ids"
	metadatapkg "github.com/drblury/cookflow/internal/runtime/metadata"
	"github.com/drblury/cookflow/internal/runtime/reading"
)

// Producer emits readings onto a transport.
type Producer interface {
	PublishReading(ctx context.Context, ev *reading.Event, metadata metadatapkg.Metadata) error
}

// NewReadingMessage encodes ev into a Watermill message tagged with its
// session key. Entries in metadata take precedence over the session tags.
func NewReadingMessage(ev *reading.Event, metadata metadatapkg.Metadata) (*message.Message, error) {
	payload, err := reading.Encode(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reading: %w", err)
	}

	md := metadatapkg.ForReading(ev.DeviceID, ev.CookID, ev.Time)
	for k, v := range metadata {
		md[k] = v
	}
	msg := message.NewMessage(idspkg.New(), payload)
	msg.Metadata = metadatapkg.ToWatermill(md)
	return msg, nil
}

// PublishReading encodes ev and publishes it to topic.
func PublishReading(ctx context.Context, publisher message.Publisher, topic string, ev *reading.Event, metadata metadatapkg.Metadata) error {
	if publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}

	msg, err := NewReadingMessage(ev, metadata)
	if err != nil {
		return err
	}
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return publisher.Publish(topic, msg)
}

// PublishReading sends ev to the service's own inbound topic, e.g. to replay
// a reading or feed a device that cannot reach the broker.
func (s *Service) PublishReading(ctx context.Context, ev *reading.Event, metadata metadatapkg.Metadata) error {
	if s == nil || s.Conf == nil {
		return errspkg.ErrServiceRequired
	}
	return PublishReading(ctx, s.publisher, s.Conf.InboundTopic, ev, metadata)
}
