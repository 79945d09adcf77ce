// Package pipeline runs one inbound reading through decode, persistence and
// forwarding.
package pipeline

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/cookflow/internal/runtime/errors"
	"github.com/drblury/cookflow/internal/runtime/logging"
	"github.com/drblury/cookflow/internal/runtime/metadata"
	"github.com/drblury/cookflow/internal/runtime/reading"
)

const tracerName = "github.com/drblury/cookflow/pipeline"

// Stage is how far a unit of work progressed.
type Stage string

const (
	StageReceived     Stage = "received"
	StageDecoded      Stage = "decoded"
	StagePersisted    Stage = "persisted"
	StageForwarded    Stage = "forwarded"
	StageAcknowledged Stage = "acknowledged"
	StageFailed       Stage = "failed"
)

// Steps, as used in span names, metrics and logs.
const (
	stepDecode  = "decode"
	stepHistory = "persist_history"
	stepState   = "persist_state"
	stepForward = "forward"
)

// Writer persists the two records of a reading.
type Writer interface {
	PersistHistory(ctx context.Context, ev *reading.Event) error
	PersistState(ctx context.Context, ev *reading.Event) error
}

// Forwarder hands a reading to the outbound queue.
type Forwarder interface {
	Forward(ctx context.Context, ev *reading.Event, queueName string) error
}

// Options tunes a Pipeline.
type Options struct {
	// QueueName is the outbound queue readings are forwarded to.
	QueueName string
	// OperationTimeout bounds each storage or queue step. Zero disables it.
	OperationTimeout time.Duration
}

// Result reports how far Process got. LastGood is the final stage reached
// before a failure; Event is nil when decoding failed.
type Result struct {
	Stage    Stage
	LastGood Stage
	Event    *reading.Event
}

// Pipeline processes readings. It holds no per-message state and is safe for
// concurrent use.
type Pipeline struct {
	writer    Writer
	forwarder Forwarder
	opts      Options
	logger    logging.ServiceLogger
	metrics   *Metrics
	tracer    trace.Tracer
}

// New builds a pipeline. metrics may be nil.
func New(writer Writer, forwarder Forwarder, opts Options, logger logging.ServiceLogger, metrics *Metrics) *Pipeline {
	if logger == nil {
		logger = logging.NewNopServiceLogger()
	}
	return &Pipeline{
		writer:    writer,
		forwarder: forwarder,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer(tracerName),
	}
}

// Process decodes raw, writes the history and state records, and forwards
// the reading, in that order. Steps never run concurrently and the first
// failure ends the unit of work. Decode failures are not retriable.
func (p *Pipeline) Process(ctx context.Context, raw []byte) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "cookflow.process")
	defer span.End()

	res := Result{Stage: StageReceived}
	p.advance(&res, StageReceived)

	var ev *reading.Event
	err := p.step(ctx, stepDecode, false, func(context.Context) error {
		var err error
		ev, err = reading.Decode(raw)
		return err
	})
	if err != nil {
		return p.fail(span, res, err)
	}
	res.Event = ev
	span.SetAttributes(
		attribute.String("cookflow.device_id", ev.DeviceID),
		attribute.String("cookflow.cook_id", ev.CookID),
		attribute.String("cookflow.time", ev.Time),
	)
	p.advance(&res, StageDecoded)

	if err := p.step(ctx, stepHistory, true, func(ctx context.Context) error {
		return p.writer.PersistHistory(ctx, ev)
	}); err != nil {
		return p.fail(span, res, err)
	}
	if err := p.step(ctx, stepState, true, func(ctx context.Context) error {
		return p.writer.PersistState(ctx, ev)
	}); err != nil {
		return p.fail(span, res, err)
	}
	p.advance(&res, StagePersisted)

	if err := p.step(ctx, stepForward, true, func(ctx context.Context) error {
		return p.forwarder.Forward(ctx, ev, p.opts.QueueName)
	}); err != nil {
		return p.fail(span, res, err)
	}
	p.advance(&res, StageForwarded)

	p.advance(&res, StageAcknowledged)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

// HandlerFunc adapts Process to a watermill handler. Retriable failures are
// returned so the router nacks and the broker redelivers. Decode failures are
// returned only when deadLetter is set, for the poison queue middleware to
// pick up; otherwise they are logged and the message is acked.
func (p *Pipeline) HandlerFunc(deadLetter bool) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		ctx := metadata.ContextWithCorrelationID(msg.Context(), msg.Metadata.Get(metadata.KeyCorrelationID))
		res, err := p.Process(ctx, msg.Payload)
		if err == nil {
			return nil
		}

		fields := logging.LogFields{
			"message_uuid":   msg.UUID,
			"correlation_id": msg.Metadata.Get(metadata.KeyCorrelationID),
			"last_stage":     string(res.LastGood),
		}
		if res.Event != nil {
			fields["device_id"] = res.Event.DeviceID
			fields["cook_id"] = res.Event.CookID
		}

		if errspkg.IsDecodeError(err) {
			if deadLetter {
				p.logger.Error("Undecodable reading, dead-lettering", err, fields)
				return err
			}
			p.logger.Error("Dropping undecodable reading", err, fields)
			return nil
		}
		p.logger.Error("Reading processing failed, awaiting redelivery", err, fields)
		return err
	}
}

func (p *Pipeline) step(ctx context.Context, name string, bounded bool, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "cookflow."+name)
	defer span.End()

	if bounded && p.opts.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.OperationTimeout)
		defer cancel()
	}

	started := time.Now()
	err := fn(ctx)
	p.metrics.observe(name, started)
	if err != nil {
		retriable := errspkg.IsRetriable(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("cookflow.retriable", retriable))
		p.metrics.failure(name, retriable)
		return err
	}
	return nil
}

func (p *Pipeline) advance(res *Result, s Stage) {
	res.Stage = s
	res.LastGood = s
	p.metrics.stage(s)
}

func (p *Pipeline) fail(span trace.Span, res Result, err error) (Result, error) {
	res.Stage = StageFailed
	p.metrics.stage(StageFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return res, err
}
