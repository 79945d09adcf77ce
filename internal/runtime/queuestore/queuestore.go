// Package queuestore is the contract between the delivery forwarder and the
// outbound message queue.
package queuestore

import (
	"context"
	"errors"

	"github.com/drblury/cookflow/internal/runtime/metadata"
)

// ErrQueueNotFound is returned when a message is enqueued to a queue that was
// never created.
var ErrQueueNotFound = errors.New("queuestore: queue not found")

// Store is an outbound message queue service.
type Store interface {
	// CreateQueue creates the named queue unless it already exists.
	CreateQueue(ctx context.Context, name string) error
	// Enqueue appends one message to the queue. md travels with the message
	// where the backend supports it.
	Enqueue(ctx context.Context, queue string, body []byte, md metadata.Metadata) error
	Close() error
}

func validateQueueName(name string) error {
	if name == "" {
		return errors.New("queuestore: queue name is required")
	}
	return nil
}

// Queue is a Store bound to one queue name.
type Queue struct {
	store Store
	name  string
}

// Bind returns a handle for queue name on store.
func Bind(store Store, name string) Queue {
	return Queue{store: store, name: name}
}

func (q Queue) Name() string { return q.name }

func (q Queue) Enqueue(ctx context.Context, body []byte, md metadata.Metadata) error {
	return q.store.Enqueue(ctx, q.name, body, md)
}

// Backend adapts a Store to the provisioner.
type Backend struct {
	Store Store
}

func (b Backend) CreateIfNotExists(ctx context.Context, name string) error {
	return b.Store.CreateQueue(ctx, name)
}

func (b Backend) Handle(name string) Queue {
	return Bind(b.Store, name)
}
