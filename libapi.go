package cookflow

import (
	runtimepkg "github.com/drblury/cookflow/internal/runtime"
	configpkg "github.com/drblury/cookflow/internal/runtime/config"
	errspkg "github.com/drblury/cookflow/internal/runtime/errors"
	idspkg "github.com/drblury/cookflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/cookflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/cookflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/cookflow/internal/runtime/metadata"
	"github.com/drblury/cookflow/internal/runtime/pipeline"
	"github.com/drblury/cookflow/internal/runtime/provision"
	"github.com/drblury/cookflow/internal/runtime/queuestore"
	"github.com/drblury/cookflow/internal/runtime/reading"
	"github.com/drblury/cookflow/internal/runtime/tablestore"
	transportpkg "github.com/drblury/cookflow/internal/runtime/transport"
	newtransport "github.com/drblury/cookflow/transport"
)

type (
	Config              = configpkg.Config
	EnvLookup           = configpkg.LookupFunc
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	TransportFactory    = transportpkg.Factory
	TransportFactoryFn  = transportpkg.FactoryFunc

	Reading       = reading.Event
	ReadingSample = reading.Sample

	Pipeline       = pipeline.Pipeline
	PipelineResult = pipeline.Result
	Stage          = pipeline.Stage

	TableStore     = tablestore.Store
	Entity         = tablestore.Entity
	QueueStore     = queuestore.Store
	ProvisionCache = provision.Cache

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig  = runtimepkg.RetryMiddlewareConfig

	// Reading lifecycle hooks
	ReadingContext = runtimepkg.ReadingContext
	ReadingHooks   = runtimepkg.ReadingHooks

	Producer = runtimepkg.Producer

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Failure taxonomy
	DecodeError    = errspkg.DecodeError
	ProvisionError = errspkg.ProvisionError
	PersistError   = errspkg.PersistError
	ForwardError   = errspkg.ForwardError

	// Modular transport types
	Transport             = newtransport.Transport
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

var (
	NewService     = runtimepkg.NewService
	ValidateConfig = configpkg.ValidateConfig
	FromEnv        = configpkg.FromEnv
	LoadEnvFile    = configpkg.LoadEnvFile

	DecodeReading  = reading.Decode
	EncodeReading  = reading.Encode
	PublishReading = runtimepkg.PublishReading

	NewMemoryTableStore = tablestore.NewMemory
	NewMemoryQueueStore = queuestore.NewMemory
	NewMemoryCache      = provision.NewMemoryCache

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RetryMiddleware         = runtimepkg.RetryMiddleware
	PoisonQueueMiddleware   = runtimepkg.PoisonQueueMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	// Reading lifecycle hooks
	ReadingHooksMiddleware = runtimepkg.ReadingHooksMiddleware
	LoggingHooks           = runtimepkg.LoggingHooks

	// Transport capabilities
	GetCapabilities = newtransport.GetCapabilities

	// Use RegisterTransport and BuildTransport to work with the transport packages.
	// Import individual transports via: _ "github.com/drblury/cookflow/transport/kafka"
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	DefaultTransportFactory  = transportpkg.DefaultFactory

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	IsDecodeError = errspkg.IsDecodeError
	IsRetriable   = errspkg.IsRetriable

	ErrServiceRequired   = errspkg.ErrServiceRequired
	ErrPublisherRequired = errspkg.ErrPublisherRequired
	ErrTopicRequired     = errspkg.ErrTopicRequired
	ErrConfigRequired    = errspkg.ErrConfigRequired
	ErrLoggerRequired    = errspkg.ErrLoggerRequired
	ErrEventRequired     = errspkg.ErrEventRequired
	ErrUnknownBackend    = errspkg.ErrUnknownBackend
	ErrUnknownTransport  = newtransport.ErrUnknownTransport

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewJSONServiceLogger = loggingpkg.NewJSONServiceLogger
	ParseLogLevel        = loggingpkg.ParseLevel

	NewID = idspkg.New
)

// Metadata keys set on forwarded readings.
const (
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyDeviceID      = metadatapkg.KeyDeviceID
	MetadataKeyCookID        = metadatapkg.KeyCookID
	MetadataKeyReadingTime   = metadatapkg.KeyReadingTime
)

// Pipeline stages.
const (
	StageReceived     = pipeline.StageReceived
	StageDecoded      = pipeline.StageDecoded
	StagePersisted    = pipeline.StagePersisted
	StageForwarded    = pipeline.StageForwarded
	StageAcknowledged = pipeline.StageAcknowledged
	StageFailed       = pipeline.StageFailed
)

// Storage backends.
const (
	TableBackendAzure     = configpkg.TableBackendAzure
	TableBackendSQLite    = configpkg.TableBackendSQLite
	TableBackendPostgres  = configpkg.TableBackendPostgres
	TableBackendMemory    = configpkg.TableBackendMemory
	QueueBackendAzure     = configpkg.QueueBackendAzure
	QueueBackendTransport = configpkg.QueueBackendTransport
	QueueBackendMemory    = configpkg.QueueBackendMemory
)

// Record policies.
const (
	HistoryKeyingSession = configpkg.HistoryKeyingSession
	HistoryKeyingDevice  = configpkg.HistoryKeyingDevice
	StartTimeOrigin      = configpkg.StartTimeOrigin
	StartTimeEvent       = configpkg.StartTimeEvent
	StartTimeFirstSeen   = configpkg.StartTimeFirstSeen
)
