// Package forward hands persisted readings to downstream consumers through
// the outbound queue.
package forward

import (
	"context"
	"errors"

	errspkg "github.com/drblury/cookflow/internal/runtime/errors"
	"github.com/drblury/cookflow/internal/runtime/logging"
	"github.com/drblury/cookflow/internal/runtime/metadata"
	"github.com/drblury/cookflow/internal/runtime/provision"
	"github.com/drblury/cookflow/internal/runtime/queuestore"
	"github.com/drblury/cookflow/internal/runtime/reading"
)

// Forwarder enqueues readings. Delivery is at least once: the same reading
// may be forwarded again when its inbound message is redelivered.
type Forwarder struct {
	queues *provision.Provisioner[queuestore.Queue]
	logger logging.ServiceLogger
}

func New(store queuestore.Store, cache provision.Cache, logger logging.ServiceLogger) *Forwarder {
	if logger == nil {
		logger = logging.NewNopServiceLogger()
	}
	return &Forwarder{
		queues: provision.New[queuestore.Queue](provision.KindQueue, queuestore.Backend{Store: store}, cache, logger),
		logger: logger,
	}
}

// Forward enqueues the JSON form of ev on queueName, creating the queue on
// first use.
func (f *Forwarder) Forward(ctx context.Context, ev *reading.Event, queueName string) error {
	if queueName == "" {
		return errspkg.ErrQueueNameRequired
	}
	if ev == nil {
		return errspkg.ErrEventRequired
	}

	body, err := reading.Encode(ev)
	if err != nil {
		return &errspkg.ForwardError{Queue: queueName, Err: err}
	}
	md := metadata.ForReading(ev.DeviceID, ev.CookID, ev.Time).
		With(metadata.KeyCorrelationID, metadata.CorrelationIDFromContext(ctx))

	err = f.queues.Use(ctx, queueName, queueMissing, func(queue queuestore.Queue) error {
		return queue.Enqueue(ctx, body, md)
	})
	if err != nil {
		var provErr *errspkg.ProvisionError
		if errors.As(err, &provErr) {
			return err
		}
		return &errspkg.ForwardError{Queue: queueName, Err: err}
	}

	f.logger.Debug("Reading forwarded", logging.LogFields{
		"queue":     queueName,
		"device_id": ev.DeviceID,
		"cook_id":   ev.CookID,
	})
	return nil
}

func queueMissing(err error) bool {
	return errors.Is(err, queuestore.ErrQueueNotFound)
}
