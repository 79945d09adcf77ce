// Package metadata holds the headers carried next to an inbound or forwarded
// reading on the message bus.
package metadata

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	KeyCorrelationID = "correlation_id"
	KeyEventSchema   = "event_message_schema"
	KeyDeviceID      = "cookflow_device_id"
	KeyCookID        = "cookflow_cook_id"
	KeyReadingTime   = "cookflow_reading_time"
)

// Metadata represents the headers carried alongside an event.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
// Empty values are skipped.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	if value != "" {
		cloned[key] = value
	}
	return cloned
}

// CorrelationID returns the correlation identifier, if present.
func (m Metadata) CorrelationID() string {
	return m[KeyCorrelationID]
}

type correlationKey struct{}

// ContextWithCorrelationID stores the correlation identifier of the message
// being handled so that downstream publishes can carry it.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the identifier stored by
// ContextWithCorrelationID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// ForReading tags a forwarded message with the session key of the reading it
// carries so consumers can deduplicate without decoding the payload.
func ForReading(deviceID, cookID, readingTime string) Metadata {
	return Metadata{
		KeyDeviceID:    deviceID,
		KeyCookID:      cookID,
		KeyReadingTime: readingTime,
	}
}

// FromWatermill converts Watermill metadata into Metadata.
func FromWatermill(md message.Metadata) Metadata {
	if len(md) == 0 {
		return Metadata{}
	}

	result := make(Metadata, len(md))
	for k, v := range md {
		result[k] = v
	}
	return result
}

// ToWatermill converts Metadata into a Watermill map.
func ToWatermill(md Metadata) message.Metadata {
	if len(md) == 0 {
		return message.Metadata{}
	}

	wm := make(message.Metadata, len(md))
	for k, v := range md {
		wm[k] = v
	}
	return wm
}
