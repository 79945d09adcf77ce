package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/cookflow/internal/runtime/config"
	loggingpkg "github.com/drblury/cookflow/internal/runtime/logging"
	"github.com/drblury/cookflow/internal/runtime/queuestore"
	"github.com/drblury/cookflow/internal/runtime/tablestore"
)

const testReading = `{"device_id":"d1","cook_id":"c1","time":"2024-01-01T00:00:00Z","chamber_target":225.0,"cooker_on":true,"readings":[{"pin":0,"value":512,"resistance":10000.0,"kelvins":310.5}]}`

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func memoryConfig() *configpkg.Config {
	return &configpkg.Config{
		PubSubSystem:         "channel",
		TableBackend:         configpkg.TableBackendMemory,
		QueueBackend:         configpkg.QueueBackendMemory,
		RetryMaxRetries:      1,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     time.Millisecond,
	}
}

type testStores struct {
	tables *tablestore.Memory
	queues *queuestore.Memory
}

func memoryDeps() (ServiceDependencies, testStores) {
	stores := testStores{tables: tablestore.NewMemory(), queues: queuestore.NewMemory()}
	return ServiceDependencies{
		Tables:          stores.tables,
		Queues:          stores.queues,
		MetricsRegistry: prometheus.NewRegistry(),
	}, stores
}

type testPublisher struct {
	mu        sync.Mutex
	published []string
	err       error
	closed    bool
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, topic)
	return nil
}

func (p *testPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *testPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]string, len(p.published))
	copy(clone, p.published)
	return clone
}

type testSubscriber struct{}

func (s *testSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error { return nil }

type recordingServiceLogger struct {
	mu     sync.Mutex
	infos  []string
	debugs []string
	errors []string
}

func (r *recordingServiceLogger) With(loggingpkg.LogFields) loggingpkg.ServiceLogger { return r }

func (r *recordingServiceLogger) Debug(msg string, _ loggingpkg.LogFields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debugs = append(r.debugs, msg)
}

func (r *recordingServiceLogger) Info(msg string, _ loggingpkg.LogFields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, msg)
}

func (r *recordingServiceLogger) Error(msg string, _ error, _ loggingpkg.LogFields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *recordingServiceLogger) Trace(string, loggingpkg.LogFields) {}

func (r *recordingServiceLogger) counts() (infos, debugs, errors int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.infos), len(r.debugs), len(r.errors)
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	log := newTestLogger()
	router, err := message.NewRouter(message.RouterConfig{}, loggingpkg.NewWatermillAdapter(log))
	if err != nil {
		t.Fatalf("router init failed: %v", err)
	}
	return &Service{
		Conf:            memoryConfig(),
		Logger:          log,
		router:          router,
		publisher:       &testPublisher{},
		subscriber:      &testSubscriber{},
		metricsRegistry: prometheus.NewRegistry(),
	}
}
