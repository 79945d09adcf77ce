package runtime

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"

	configpkg "github.com/drblury/cookflow/internal/runtime/config"
	errspkg "github.com/drblury/cookflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/cookflow/internal/runtime/logging"
	"github.com/drblury/cookflow/internal/runtime/provision"
	"github.com/drblury/cookflow/internal/runtime/queuestore"
	"github.com/drblury/cookflow/internal/runtime/tablestore"
	"github.com/drblury/cookflow/transport"
)

// openTableStore connects the table backend named by the configuration.
func openTableStore(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger) (tablestore.Store, error) {
	switch conf.TableBackend {
	case configpkg.TableBackendAzure:
		store, err := tablestore.NewAzure(conf.StorageConnectionString, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case configpkg.TableBackendSQLite:
		store, err := tablestore.OpenSQLite(conf.SQLiteFile, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case configpkg.TableBackendPostgres:
		store, err := tablestore.OpenPostgres(ctx, conf.PostgresURL, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case configpkg.TableBackendMemory:
		return tablestore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: table backend %q", errspkg.ErrUnknownBackend, conf.TableBackend)
	}
}

// openQueueStore connects the queue backend named by the configuration. The
// transport backend forwards through the inbound transport's publisher.
func openQueueStore(conf *configpkg.Config, tr transport.Transport, log loggingpkg.ServiceLogger) (queuestore.Store, error) {
	switch conf.QueueBackend {
	case configpkg.QueueBackendAzure:
		store, err := queuestore.NewAzure(conf.StorageConnectionString, conf.Base64QueueMessages, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case configpkg.QueueBackendTransport:
		store, err := queuestore.NewTransport(tr.Publisher, tr.Initializer(), log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case configpkg.QueueBackendMemory:
		return queuestore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: queue backend %q", errspkg.ErrUnknownBackend, conf.QueueBackend)
	}
}

// openProvisionCache shares the provisioned-resource cache through Redis
// when configured, so replicas skip create calls another replica made. The
// Redis set is scoped to the configured storage.
func openProvisionCache(ctx context.Context, conf *configpkg.Config) (provision.Cache, *redis.Client, error) {
	if conf.RedisURL == "" {
		return provision.NewMemoryCache(), nil, nil
	}
	client, err := provision.NewRedisClient(ctx, conf.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return provision.NewRedisCache(client, provision.RedisSetKey(provisionScope(conf)...)), client, nil
}

// provisionScope names the table and queue storage the cache entries
// describe, without any credentials.
func provisionScope(conf *configpkg.Config) []string {
	var table, queue string
	switch conf.TableBackend {
	case configpkg.TableBackendAzure:
		table = storageAccount(conf.StorageConnectionString, "TableEndpoint")
	case configpkg.TableBackendSQLite:
		table = conf.SQLiteFile
	case configpkg.TableBackendPostgres:
		table = urlLocation(conf.PostgresURL)
	}
	switch conf.QueueBackend {
	case configpkg.QueueBackendAzure:
		queue = storageAccount(conf.StorageConnectionString, "QueueEndpoint")
	case configpkg.QueueBackendTransport:
		queue = conf.PubSubSystem
	}
	return []string{scopePart(conf.TableBackend, table), scopePart(conf.QueueBackend, queue)}
}

func scopePart(backend, location string) string {
	if location == "" {
		return backend
	}
	return backend + "=" + location
}

// storageAccount returns the account an Azure connection string points at,
// or the service endpoint for SAS-only strings.
func storageAccount(connectionString, endpointKey string) string {
	fields := make(map[string]string)
	for _, part := range strings.Split(connectionString, ";") {
		if k, v, ok := strings.Cut(part, "="); ok {
			fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	switch {
	case strings.EqualFold(fields["UseDevelopmentStorage"], "true"):
		return "devstoreaccount1"
	case fields["AccountName"] != "":
		return fields["AccountName"]
	default:
		return fields[endpointKey]
	}
}

func urlLocation(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return ""
	}
	return u.Host + u.Path
}
