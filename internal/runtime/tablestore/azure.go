package tablestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/drblury/cookflow/internal/runtime/jsoncodec"
	"github.com/drblury/cookflow/internal/runtime/logging"
)

const (
	azureTableExists = "TableAlreadyExists"
	edmDouble        = "Edm.Double"
	odataTypeSuffix  = "@odata.type"
)

// Azure stores entities in Azure Table Storage (or Azurite).
type Azure struct {
	client *aztables.ServiceClient
	logger logging.ServiceLogger
}

// NewAzure builds a store from a storage account connection string. No
// network call is made until the first operation.
func NewAzure(connectionString string, logger logging.ServiceLogger) (*Azure, error) {
	if connectionString == "" {
		return nil, errors.New("tablestore: storage connection string is required")
	}
	client, err := aztables.NewServiceClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create table service client: %w", err)
	}
	if logger == nil {
		logger = logging.NewNopServiceLogger()
	}
	return &Azure{client: client, logger: logger.With(logging.LogFields{"table_backend": "azure"})}, nil
}

func (a *Azure) CreateTable(ctx context.Context, name string) error {
	if err := validateTableName(name); err != nil {
		return err
	}
	_, err := a.client.CreateTable(ctx, name, nil)
	if err != nil && !isResponseError(err, http.StatusConflict, azureTableExists) {
		return fmt.Errorf("create table %q: %w", name, err)
	}
	a.logger.Debug("Table ready", logging.LogFields{"table": name})
	return nil
}

func (a *Azure) Upsert(ctx context.Context, table string, entity Entity) error {
	if err := validateKeys(entity); err != nil {
		return err
	}
	payload, err := marshalAzureEntity(entity)
	if err != nil {
		return err
	}
	_, err = a.client.NewClient(table).UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{
		UpdateMode: aztables.UpdateModeReplace,
	})
	if err != nil {
		if isResponseError(err, http.StatusNotFound, "") {
			return fmt.Errorf("%w: %s", ErrTableNotFound, table)
		}
		return fmt.Errorf("upsert into %q: %w", table, err)
	}
	return nil
}

func (a *Azure) Get(ctx context.Context, table, partitionKey, rowKey string) (Entity, bool, error) {
	resp, err := a.client.NewClient(table).GetEntity(ctx, partitionKey, rowKey, nil)
	if err != nil {
		if isResponseError(err, http.StatusNotFound, "ResourceNotFound") {
			return Entity{}, false, nil
		}
		if isResponseError(err, http.StatusNotFound, "TableNotFound") {
			return Entity{}, false, fmt.Errorf("%w: %s", ErrTableNotFound, table)
		}
		return Entity{}, false, fmt.Errorf("read from %q: %w", table, err)
	}
	entity, err := unmarshalAzureEntity(resp.Value)
	if err != nil {
		return Entity{}, false, err
	}
	return entity, true, nil
}

func (a *Azure) Close() error { return nil }

// marshalAzureEntity renders the entity in the Table service's JSON shape.
// Floating point properties carry an explicit Edm.Double annotation so that
// whole numbers such as 225.0 are not stored as Int32.
func marshalAzureEntity(entity Entity) ([]byte, error) {
	doc := make(map[string]any, len(entity.Properties)*2+2)
	for name, value := range entity.Properties {
		doc[name] = value
		switch value.(type) {
		case float32, float64:
			doc[name+odataTypeSuffix] = edmDouble
		}
	}
	doc["PartitionKey"] = entity.PartitionKey
	doc["RowKey"] = entity.RowKey
	payload, err := jsoncodec.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}
	return payload, nil
}

func unmarshalAzureEntity(payload []byte) (Entity, error) {
	doc := map[string]any{}
	if err := jsoncodec.Unmarshal(payload, &doc); err != nil {
		return Entity{}, fmt.Errorf("decode entity: %w", err)
	}
	entity := Entity{Properties: make(map[string]any, len(doc))}
	for name, value := range doc {
		switch {
		case name == "PartitionKey":
			entity.PartitionKey, _ = value.(string)
		case name == "RowKey":
			entity.RowKey, _ = value.(string)
		case name == "Timestamp", name == "odata.etag", name == "odata.metadata":
		case strings.HasSuffix(name, odataTypeSuffix):
		default:
			entity.Properties[name] = value
		}
	}
	return entity, nil
}

// isResponseError reports whether err is a service response with the given
// status and, when code is non-empty, the given error code.
func isResponseError(err error, status int, code string) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	if respErr.StatusCode != status {
		return false
	}
	return code == "" || respErr.ErrorCode == code
}
