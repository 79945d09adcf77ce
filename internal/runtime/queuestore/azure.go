package queuestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	configpkg "github.com/drblury/cookflow/internal/runtime/config"
	"github.com/drblury/cookflow/internal/runtime/logging"
	"github.com/drblury/cookflow/internal/runtime/metadata"
)

const azureQueueExists = "QueueAlreadyExists"

// Azure enqueues into Azure Queue Storage (or Azurite). Azure queues carry
// no per-message headers, so metadata passed to Enqueue is dropped.
type Azure struct {
	client *azqueue.ServiceClient
	base64 bool
	logger logging.ServiceLogger
}

// NewAzure builds a store from a storage account connection string. When
// base64Bodies is set, message bodies are base64 encoded before enqueueing.
func NewAzure(connectionString string, base64Bodies bool, logger logging.ServiceLogger) (*Azure, error) {
	if connectionString == "" {
		return nil, errors.New("queuestore: storage connection string is required")
	}
	client, err := azqueue.NewServiceClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create queue service client: %w", err)
	}
	if logger == nil {
		logger = logging.NewNopServiceLogger()
	}
	return &Azure{
		client: client,
		base64: base64Bodies,
		logger: logger.With(logging.LogFields{"queue_backend": "azure"}),
	}, nil
}

func (a *Azure) CreateQueue(ctx context.Context, name string) error {
	if !configpkg.ValidQueueName(name) {
		return fmt.Errorf("queuestore: invalid azure queue name %q", name)
	}
	_, err := a.client.NewQueueClient(name).Create(ctx, nil)
	if err != nil && !isConflict(err) {
		return fmt.Errorf("create queue %q: %w", name, err)
	}
	a.logger.Debug("Queue ready", logging.LogFields{"queue": name})
	return nil
}

func (a *Azure) Enqueue(ctx context.Context, queue string, body []byte, _ metadata.Metadata) error {
	_, err := a.client.NewQueueClient(queue).EnqueueMessage(ctx, encodeBody(body, a.base64), nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrQueueNotFound, queue)
		}
		return fmt.Errorf("enqueue into %q: %w", queue, err)
	}
	return nil
}

func (a *Azure) Close() error { return nil }

func encodeBody(body []byte, b64 bool) string {
	if b64 {
		return base64.StdEncoding.EncodeToString(body)
	}
	return string(body)
}

func isConflict(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) &&
		respErr.StatusCode == http.StatusConflict &&
		respErr.ErrorCode == azureQueueExists
}
