package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every variable read by FromEnv.
const EnvPrefix = "COOKFLOW_"

// AzureWebJobsStorageEnv is the connection string variable set by the Azure
// Functions host. It is used when COOKFLOW_STORAGE_CONNECTION_STRING is unset.
const AzureWebJobsStorageEnv = "AzureWebJobsStorage"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadEnvFile loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadEnvFile(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}

// FromEnv builds a Config from environment variables. Defaults are applied
// for anything left unset; malformed numeric, boolean or duration values are
// reported together.
func FromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	r := envReader{lookup: lookup}

	cfg := Config{
		PubSubSystem:  r.str("PUBSUB_SYSTEM"),
		InboundTopic:  r.str("INBOUND_TOPIC"),
		OutboundQueue: r.str("OUTBOUND_QUEUE"),
		PoisonQueue:   r.str("POISON_QUEUE"),

		KafkaBrokers:       r.list("KAFKA_BROKERS"),
		KafkaConsumerGroup: r.str("KAFKA_CONSUMER_GROUP"),
		RabbitMQURL:        r.str("RABBITMQ_URL"),
		NATSURL:            r.str("NATS_URL"),
		HTTPServerAddress:  r.str("HTTP_SERVER_ADDRESS"),
		HTTPPublisherURL:   r.str("HTTP_PUBLISHER_URL"),

		AWSRegion:          r.str("AWS_REGION"),
		AWSAccountID:       r.str("AWS_ACCOUNT_ID"),
		AWSAccessKeyID:     r.str("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: r.str("AWS_SECRET_ACCESS_KEY"),
		AWSEndpoint:        r.str("AWS_ENDPOINT"),

		TableBackend:            r.str("TABLE_BACKEND"),
		QueueBackend:            r.str("QUEUE_BACKEND"),
		StorageConnectionString: r.str("STORAGE_CONNECTION_STRING"),
		SQLiteFile:              r.str("SQLITE_FILE"),
		PostgresURL:             r.str("POSTGRES_URL"),
		RedisURL:                r.str("REDIS_URL"),
		Base64QueueMessages:     r.boolean("BASE64_QUEUE_MESSAGES", true),

		HistoryTable:    r.str("HISTORY_TABLE"),
		StateTable:      r.str("STATE_TABLE"),
		HistoryKeying:   r.str("HISTORY_KEYING"),
		StartTimePolicy: r.str("START_TIME_POLICY"),
		StrictLastTime:  r.boolean("STRICT_LAST_TIME", false),

		OperationTimeout: r.duration("OPERATION_TIMEOUT"),

		RetryMaxRetries:      r.integer("RETRY_MAX_RETRIES"),
		RetryInitialInterval: r.duration("RETRY_INITIAL_INTERVAL"),
		RetryMaxInterval:     r.duration("RETRY_MAX_INTERVAL"),

		MetricsEnabled: r.boolean("METRICS_ENABLED", false),
		MetricsPort:    r.integer("METRICS_PORT"),

		LogLevel: r.str("LOG_LEVEL"),
	}

	if cfg.StorageConnectionString == "" {
		if v, ok := lookup(AzureWebJobsStorageEnv); ok {
			cfg.StorageConnectionString = strings.TrimSpace(v)
		}
	}

	return cfg.WithDefaults(), errors.Join(r.errs...)
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (r *envReader) str(key string) string {
	v, _ := r.lookup(EnvPrefix + key)
	return strings.TrimSpace(v)
}

func (r *envReader) list(key string) []string {
	raw := r.str(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *envReader) boolean(key string, fallback bool) bool {
	raw := r.str(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return fallback
	}
	return v
}

func (r *envReader) integer(key string) int {
	raw := r.str(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return 0
	}
	return v
}

func (r *envReader) duration(key string) time.Duration {
	raw := r.str(key)
	if raw == "" {
		return 0
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return 0
	}
	return v
}
