package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrServiceRequired      = sterrors.New("cookflow: service is required")
	ErrPublisherRequired    = sterrors.New("cookflow: publisher is required")
	ErrTopicRequired        = sterrors.New("cookflow: topic is required")
	ErrConfigRequired       = sterrors.New("cookflow: config is required")
	ErrLoggerRequired       = sterrors.New("cookflow: logger is required")
	ErrResourceNameRequired = sterrors.New("cookflow: resource name is required")
	ErrQueueNameRequired    = sterrors.New("cookflow: queue name is required")
	ErrEventRequired        = sterrors.New("cookflow: reading event is required")
	ErrUnknownBackend       = sterrors.New("cookflow: unknown storage backend")
)

// DecodeError reports an inbound payload that can never be processed.
// Redelivering the same bytes cannot succeed, so it is never retried.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "decode reading: " + e.Reason
	}
	if e.Reason == "" {
		return "decode reading: " + e.Err.Error()
	}
	return fmt.Sprintf("decode reading: %s: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ProvisionError reports a failed "create if not exists" call for a table or queue.
type ProvisionError struct {
	Kind string
	Name string
	Err  error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// PersistError reports a failed upsert of one of the derived records.
type PersistError struct {
	Record string
	Table  string
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s record into %q: %v", e.Record, e.Table, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// ForwardError reports a failed enqueue onto the delivery queue.
type ForwardError struct {
	Queue string
	Err   error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("forward reading to queue %q: %v", e.Queue, e.Err)
}

func (e *ForwardError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err carries a DecodeError anywhere in its chain.
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return sterrors.As(err, &decodeErr)
}

// IsRetriable reports whether redelivering the message may succeed. Only
// decode failures are permanent; infrastructure and unknown failures are
// treated as transient.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	return !IsDecodeError(err)
}
