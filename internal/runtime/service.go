package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	configpkg "github.com/drblury/cookflow/internal/runtime/config"
	errspkg "github.com/drblury/cookflow/internal/runtime/errors"
	"github.com/drblury/cookflow/internal/runtime/forward"
	loggingpkg "github.com/drblury/cookflow/internal/runtime/logging"
	"github.com/drblury/cookflow/internal/runtime/persist"
	"github.com/drblury/cookflow/internal/runtime/pipeline"
	"github.com/drblury/cookflow/internal/runtime/provision"
	"github.com/drblury/cookflow/internal/runtime/queuestore"
	"github.com/drblury/cookflow/internal/runtime/tablestore"
	transportpkg "github.com/drblury/cookflow/internal/runtime/transport"
	"github.com/drblury/cookflow/transport"
)

// HandlerName is the router name of the ingestion handler.
const HandlerName = "cookflow_ingest"

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds optional collaborators. Leave fields nil to have
// the Service build them from its configuration.
type ServiceDependencies struct {
	Tables           tablestore.Store
	Queues           queuestore.Store
	ProvisionCache   provision.Cache
	TransportFactory transportpkg.Factory
	// MetricsRegistry receives pipeline and router metrics; defaults to the
	// global Prometheus registry.
	MetricsRegistry prometheus.Registerer
	Hooks           ReadingHooks
	// Middlewares are appended after the default middleware chain.
	Middlewares               []MiddlewareRegistration
	DisableDefaultMiddlewares bool
}

// Service consumes readings from the inbound topic and runs each through the
// ingestion pipeline.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	transport    transport.Transport
	publisher    message.Publisher
	subscriber   message.Subscriber
	router       *message.Router
	capabilities transport.Capabilities

	tables      tablestore.Store
	queues      queuestore.Store
	redisClient *redis.Client
	pipeline    *pipeline.Pipeline

	metricsRegistry prometheus.Registerer

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	// started is set once Start hands the router to Run; a router that never
	// ran has no handlers to wait for on Close.
	started   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewService validates conf, connects the transport and storage backends and
// registers the ingestion handler. Call Start to begin consuming.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	normalized := conf.WithDefaults()
	conf = &normalized
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info("Creating ingestion service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf.String(),
	})

	s := &Service{
		Conf:            conf,
		Logger:          log,
		metricsRegistry: deps.MetricsRegistry,
	}
	if err := s.build(ctx, deps); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build(ctx context.Context, deps ServiceDependencies) error {
	wmLogger := loggingpkg.NewWatermillAdapter(s.Logger)

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	tr, err := factory.Build(ctx, s.Conf, wmLogger)
	if err != nil {
		return err
	}
	s.transport = tr
	s.publisher = tr.Publisher
	s.subscriber = tr.Subscriber

	s.capabilities = transportpkg.Capabilities(s.Conf)
	if !s.capabilities.SupportsReliableDelivery() {
		s.Logger.Info("Transport cannot redeliver failed readings; retriable failures after the last retry are lost", loggingpkg.LogFields{
			"pubsub_system": s.Conf.PubSubSystem,
		})
	}

	s.tables = deps.Tables
	if s.tables == nil {
		if s.tables, err = openTableStore(ctx, s.Conf, s.Logger); err != nil {
			return fmt.Errorf("open table store: %w", err)
		}
	}
	s.queues = deps.Queues
	if s.queues == nil {
		if s.queues, err = openQueueStore(s.Conf, tr, s.Logger); err != nil {
			return fmt.Errorf("open queue store: %w", err)
		}
	}
	cache := deps.ProvisionCache
	if cache == nil {
		if cache, s.redisClient, err = openProvisionCache(ctx, s.Conf); err != nil {
			return fmt.Errorf("open provision cache: %w", err)
		}
	}

	var metrics *pipeline.Metrics
	if s.Conf.MetricsEnabled {
		if metrics, err = pipeline.NewMetrics(s.registerer()); err != nil {
			return fmt.Errorf("register pipeline metrics: %w", err)
		}
	}

	s.pipeline = pipeline.New(
		persist.NewWriter(s.tables, cache, persist.OptionsFromConfig(s.Conf), s.Logger),
		forward.New(s.queues, cache, s.Logger),
		pipeline.Options{QueueName: s.Conf.OutboundQueue, OperationTimeout: s.Conf.OperationTimeout},
		s.Logger,
		metrics,
	)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return err
	}

	s.router.AddNoPublisherHandler(
		HandlerName,
		s.Conf.InboundTopic,
		s.subscriber,
		s.pipeline.HandlerFunc(s.Conf.PoisonQueue != ""),
	)
	return nil
}

// Start runs the router until ctx is cancelled or a signal arrives, then
// releases the stores and the transport.
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.router == nil {
		return errspkg.ErrServiceRequired
	}
	s.startHTTPServers(ctx)
	s.started.Store(true)
	runErr := routerRun(s.router, ctx)
	return errors.Join(runErr, s.Close())
}

// Running is closed once the router has started its handlers.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Pipeline exposes the ingestion pipeline, e.g. to process a payload
// received outside the transport.
func (s *Service) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

// Capabilities reports the delivery guarantees of the inbound transport.
func (s *Service) Capabilities() transport.Capabilities {
	return s.capabilities
}

// Close releases the transport and storage connections. It is safe to call
// more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.router != nil && s.started.Load() {
			errs = append(errs, s.router.Close())
		}
		if s.tables != nil {
			errs = append(errs, s.tables.Close())
		}
		if s.queues != nil {
			errs = append(errs, s.queues.Close())
		}
		if s.redisClient != nil {
			errs = append(errs, s.redisClient.Close())
		}
		errs = append(errs, s.transport.Close())
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares)+1)
	registrations = append(registrations, defaults...)
	registrations = append(registrations, ReadingHooksMiddleware(deps.Hooks))
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// RegisterHTTPHandler mounts handler on the HTTP server for port. Servers
// start with Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers(ctx context.Context) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": server.Addr})
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server failed", err, loggingpkg.LogFields{"address": server.Addr})
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}
}
