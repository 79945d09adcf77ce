package runtime

import (
	"context"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	loggingpkg "github.com/drblury/cookflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/cookflow/internal/runtime/metadata"
)

// ReadingContext describes one delivery of an inbound reading to hooks.
type ReadingContext struct {
	MessageUUID   string
	CorrelationID string
	Metadata      message.Metadata
	Context       context.Context
	StartedAt     time.Time
	// Duration is only set in OnDone and OnError.
	Duration time.Duration
	// Attempt counts handler invocations for this delivery, so it grows
	// when the retry middleware runs outside the hooks.
	Attempt int
}

// ReadingHooks are optional callbacks around the processing of each reading.
// Hooks observe only; they cannot change the outcome.
type ReadingHooks struct {
	OnStart func(ReadingContext)
	OnDone  func(ReadingContext)
	OnError func(ReadingContext, error)
}

func (h ReadingHooks) empty() bool {
	return h.OnStart == nil && h.OnDone == nil && h.OnError == nil
}

// Merge combines two hook sets; the hooks of other run after those of h.
func (h ReadingHooks) Merge(other ReadingHooks) ReadingHooks {
	return ReadingHooks{
		OnStart: chainHooks(h.OnStart, other.OnStart),
		OnDone:  chainHooks(h.OnDone, other.OnDone),
		OnError: chainErrorHooks(h.OnError, other.OnError),
	}
}

func chainHooks(a, b func(ReadingContext)) func(ReadingContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(rc ReadingContext) {
		a(rc)
		b(rc)
	}
}

func chainErrorHooks(a, b func(ReadingContext, error)) func(ReadingContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(rc ReadingContext, err error) {
		a(rc, err)
		b(rc, err)
	}
}

// ReadingHooksMiddleware invokes hooks around each handler attempt.
func ReadingHooksMiddleware(hooks ReadingHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "reading_hooks",
		Builder: func(*Service) (message.HandlerMiddleware, error) {
			if hooks.empty() {
				return nil, nil
			}
			return readingHooksMiddleware(hooks), nil
		},
	}
}

func readingHooksMiddleware(hooks ReadingHooks) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			rc := ReadingContext{
				MessageUUID:   msg.UUID,
				CorrelationID: msg.Metadata.Get(metadatapkg.KeyCorrelationID),
				Metadata:      msg.Metadata,
				Context:       msg.Context(),
				StartedAt:     time.Now(),
				Attempt:       attempt(msg),
			}
			if hooks.OnStart != nil {
				hooks.OnStart(rc)
			}

			msgs, err := h(msg)

			rc.Duration = time.Since(rc.StartedAt)
			switch {
			case err != nil && hooks.OnError != nil:
				hooks.OnError(rc, err)
			case err == nil && hooks.OnDone != nil:
				hooks.OnDone(rc)
			}
			return msgs, err
		}
	}
}

const attemptKey = "cookflow_attempt"

func attempt(msg *message.Message) int {
	if msg.Metadata == nil {
		msg.Metadata = message.Metadata{}
	}
	n, _ := strconv.Atoi(msg.Metadata.Get(attemptKey))
	n++
	msg.Metadata.Set(attemptKey, strconv.Itoa(n))
	return n
}

// LoggingHooks logs the outcome of every reading.
func LoggingHooks(logger loggingpkg.ServiceLogger) ReadingHooks {
	return ReadingHooks{
		OnDone: func(rc ReadingContext) {
			logger.Debug("Reading processed", loggingpkg.LogFields{
				"message_uuid":   rc.MessageUUID,
				"correlation_id": rc.CorrelationID,
				"duration_ms":    rc.Duration.Milliseconds(),
			})
		},
		OnError: func(rc ReadingContext, err error) {
			logger.Error("Reading attempt failed", err, loggingpkg.LogFields{
				"message_uuid":   rc.MessageUUID,
				"correlation_id": rc.CorrelationID,
				"duration_ms":    rc.Duration.Milliseconds(),
				"attempt":        rc.Attempt,
			})
		},
	}
}
