package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/cookflow/internal/runtime/errors"
	"github.com/drblury/cookflow/internal/runtime/forward"
	"github.com/drblury/cookflow/internal/runtime/persist"
	"github.com/drblury/cookflow/internal/runtime/provision"
	"github.com/drblury/cookflow/internal/runtime/queuestore"
	"github.com/drblury/cookflow/internal/runtime/reading"
	"github.com/drblury/cookflow/internal/runtime/tablestore"
)

const scenarioPayload = `{"device_id":"d1","cook_id":"c1","time":"2024-01-01T00:00:00Z","chamber_target":225.0,"cooker_on":true,"readings":[{"pin":0,"value":512,"resistance":10000.0,"kelvins":310.5}]}`

type harness struct {
	tables  *tablestore.Memory
	queues  *queuestore.Memory
	metrics *Metrics
	p       *Pipeline
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	if opts.QueueName == "" {
		opts.QueueName = "readings"
	}
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	h := &harness{
		tables:  tablestore.NewMemory(),
		queues:  queuestore.NewMemory(),
		metrics: metrics,
	}
	cache := provision.NewMemoryCache()
	writer := persist.NewWriter(h.tables, cache, persist.Options{}, nil)
	forwarder := forward.New(h.queues, cache, nil)
	h.p = New(writer, forwarder, opts, nil, metrics)
	return h
}

func (h *harness) stageCount(s Stage) float64 {
	return testutil.ToFloat64(h.metrics.stages.WithLabelValues(string(s)))
}

func TestProcessScenario(t *testing.T) {
	h := newHarness(t, Options{})

	res, err := h.p.Process(context.Background(), []byte(scenarioPayload))
	require.NoError(t, err)
	assert.Equal(t, StageAcknowledged, res.Stage)
	require.NotNil(t, res.Event)
	assert.Equal(t, "d1", res.Event.DeviceID)

	history := h.tables.Entities("Reading")
	require.Len(t, history, 1)
	assert.Equal(t, "d1|c1", history[0].PartitionKey)
	assert.Equal(t, "2024-01-01T00:00:00Z", history[0].RowKey)
	assert.Equal(t, 225.0, history[0].Properties["chamber_target"])
	assert.Equal(t, true, history[0].Properties["cooker_on"])

	state := h.tables.Entities("Cook")
	require.Len(t, state, 1)
	assert.Equal(t, "d1", state[0].PartitionKey)
	assert.Equal(t, "c1", state[0].RowKey)
	assert.Equal(t, "2024-01-01T00:00:00Z", state[0].String("last_time"))

	msgs := h.queues.Messages("readings")
	require.Len(t, msgs, 1)
	assert.JSONEq(t, scenarioPayload, string(msgs[0].Body))

	for _, s := range []Stage{StageReceived, StageDecoded, StagePersisted, StageForwarded, StageAcknowledged} {
		assert.Equal(t, 1.0, h.stageCount(s), "stage %s", s)
	}
	assert.Zero(t, h.stageCount(StageFailed))
}

func TestProcessRejectsMalformedPayload(t *testing.T) {
	for _, raw := range []string{"not json", `{"device_id":"d1","cook_id":`, `{"cook_id":"c1","time":"t"}`} {
		h := newHarness(t, Options{})

		res, err := h.p.Process(context.Background(), []byte(raw))
		require.Error(t, err)
		assert.True(t, errspkg.IsDecodeError(err), "payload %q", raw)
		assert.False(t, errspkg.IsRetriable(err))
		assert.Equal(t, StageFailed, res.Stage)
		assert.Equal(t, StageReceived, res.LastGood)
		assert.Nil(t, res.Event)

		assert.Zero(t, h.tables.Calls(tablestore.OpCreateTable))
		assert.Zero(t, h.tables.Calls(tablestore.OpUpsert))
		assert.Zero(t, h.queues.Calls(queuestore.OpEnqueue))
		assert.Equal(t, 1.0, h.stageCount(StageFailed))
	}
}

func TestProcessStopsOnStorageFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.tables.FailWith(tablestore.OpUpsert, errors.New("server busy"))

	res, err := h.p.Process(context.Background(), []byte(scenarioPayload))
	var persistErr *errspkg.PersistError
	require.ErrorAs(t, err, &persistErr)
	assert.True(t, errspkg.IsRetriable(err))
	assert.Equal(t, StageFailed, res.Stage)
	assert.Equal(t, StageDecoded, res.LastGood)
	assert.Equal(t, 1, h.tables.Calls(tablestore.OpUpsert))
	assert.Zero(t, h.queues.Calls(queuestore.OpCreateQueue))
	assert.Zero(t, h.queues.Calls(queuestore.OpEnqueue))

	h.tables.FailWith(tablestore.OpUpsert, nil)
	res, err = h.p.Process(context.Background(), []byte(scenarioPayload))
	require.NoError(t, err, "redelivery succeeds once storage recovers")
	assert.Equal(t, StageAcknowledged, res.Stage)
	assert.Len(t, h.tables.Entities("Reading"), 1)
}

func TestProcessStopsOnQueueFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.queues.FailWith(queuestore.OpEnqueue, errors.New("queue unavailable"))

	res, err := h.p.Process(context.Background(), []byte(scenarioPayload))
	var fwdErr *errspkg.ForwardError
	require.ErrorAs(t, err, &fwdErr)
	assert.True(t, errspkg.IsRetriable(err))
	assert.Equal(t, StagePersisted, res.LastGood)
	assert.Len(t, h.tables.Entities("Reading"), 1, "records written before the failure stay")
	assert.Empty(t, h.queues.Messages("readings"))
}

type blockingWriter struct{}

func (blockingWriter) PersistHistory(ctx context.Context, _ *reading.Event) error {
	<-ctx.Done()
	return &errspkg.PersistError{Record: "history", Table: "Reading", Err: ctx.Err()}
}

func (blockingWriter) PersistState(context.Context, *reading.Event) error { return nil }

type unusedForwarder struct{ calls int }

func (f *unusedForwarder) Forward(context.Context, *reading.Event, string) error {
	f.calls++
	return nil
}

func TestProcessAppliesOperationTimeout(t *testing.T) {
	fwd := &unusedForwarder{}
	p := New(blockingWriter{}, fwd, Options{QueueName: "readings", OperationTimeout: 20 * time.Millisecond}, nil, nil)

	started := time.Now()
	_, err := p.Process(context.Background(), []byte(scenarioPayload))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, errspkg.IsRetriable(err))
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Zero(t, fwd.calls)
}

func TestProcessMissingQueueName(t *testing.T) {
	tables := tablestore.NewMemory()
	queues := queuestore.NewMemory()
	p := New(persist.NewWriter(tables, nil, persist.Options{}, nil), forward.New(queues, nil, nil), Options{}, nil, nil)

	res, err := p.Process(context.Background(), []byte(scenarioPayload))
	require.ErrorIs(t, err, errspkg.ErrQueueNameRequired)
	assert.Equal(t, StagePersisted, res.LastGood)
}

func TestHandlerFunc(t *testing.T) {
	t.Run("success acks", func(t *testing.T) {
		h := newHarness(t, Options{})
		err := h.p.HandlerFunc(false)(message.NewMessage("1", []byte(scenarioPayload)))
		require.NoError(t, err)
	})

	t.Run("decode failure without poison queue is dropped", func(t *testing.T) {
		h := newHarness(t, Options{})
		err := h.p.HandlerFunc(false)(message.NewMessage("2", []byte("not json")))
		require.NoError(t, err)
	})

	t.Run("decode failure with poison queue is returned", func(t *testing.T) {
		h := newHarness(t, Options{})
		err := h.p.HandlerFunc(true)(message.NewMessage("3", []byte("not json")))
		require.True(t, errspkg.IsDecodeError(err))
	})

	t.Run("retriable failure is returned", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.tables.FailWith(tablestore.OpCreateTable, errors.New("forbidden"))
		err := h.p.HandlerFunc(false)(message.NewMessage("4", []byte(scenarioPayload)))
		var provErr *errspkg.ProvisionError
		require.ErrorAs(t, err, &provErr)
	})

	t.Run("correlation id is forwarded", func(t *testing.T) {
		h := newHarness(t, Options{})
		msg := message.NewMessage("5", []byte(scenarioPayload))
		msg.Metadata.Set("correlation_id", "corr-5")
		require.NoError(t, h.p.HandlerFunc(false)(msg))

		msgs := h.queues.Messages("readings")
		require.Len(t, msgs, 1)
		assert.Equal(t, "corr-5", msgs[0].Metadata.CorrelationID())
	})
}

func TestNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	require.NoError(t, err)
	second, err := NewMetrics(reg)
	require.NoError(t, err)

	first.stage(StageDecoded)
	second.stage(StageDecoded)
	assert.Equal(t, 2.0, testutil.ToFloat64(first.stages.WithLabelValues(string(StageDecoded))))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.stage(StageFailed) })
}
