package tablestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntity(lastTime string) Entity {
	return Entity{
		PartitionKey: "d1",
		RowKey:       "c1",
		Properties: map[string]any{
			"start_time":     "2024-01-01T00:00:00Z",
			"last_time":      lastTime,
			"chamber_target": 225.0,
			"cooker_on":      true,
		},
	}
}

// exerciseStore runs the shared contract against any backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	err := store.Upsert(ctx, "Cook", sampleEntity("t1"))
	require.ErrorIs(t, err, ErrTableNotFound)

	require.NoError(t, store.CreateTable(ctx, "Cook"))
	require.NoError(t, store.CreateTable(ctx, "Cook"), "create must be idempotent")

	_, found, err := store.Get(ctx, "Cook", "d1", "c1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Upsert(ctx, "Cook", sampleEntity("t1")))
	require.NoError(t, store.Upsert(ctx, "Cook", sampleEntity("t1")))

	got, found, err := store.Get(ctx, "Cook", "d1", "c1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "d1", got.PartitionKey)
	assert.Equal(t, "c1", got.RowKey)
	assert.Equal(t, "t1", got.String("last_time"))
	assert.Equal(t, 225.0, got.Properties["chamber_target"])
	assert.Equal(t, true, got.Properties["cooker_on"])

	replacement := sampleEntity("t0")
	delete(replacement.Properties, "cooker_on")
	require.NoError(t, store.Upsert(ctx, "Cook", replacement))

	got, _, err = store.Get(ctx, "Cook", "d1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "t0", got.String("last_time"), "upsert replaces unconditionally")
	assert.NotContains(t, got.Properties, "cooker_on", "upsert replaces the whole entity")

	err = store.Upsert(ctx, "Cook", Entity{PartitionKey: "d1"})
	require.Error(t, err)
	require.Error(t, store.CreateTable(ctx, "bad-name"))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemory()
	exerciseStore(t, store)

	assert.Equal(t, []string{"Cook"}, store.Tables())
	assert.Len(t, store.Entities("Cook"), 1)
	assert.Equal(t, 2, store.Calls(OpCreateTable), "invalid names are rejected before counting")
}

func TestMemoryStoreFailureInjection(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	store.FailWith(OpCreateTable, boom)
	require.ErrorIs(t, store.CreateTable(ctx, "Cook"), boom)
	store.FailWith(OpCreateTable, nil)
	require.NoError(t, store.CreateTable(ctx, "Cook"))

	store.FailWith(OpUpsert, boom)
	require.ErrorIs(t, store.Upsert(ctx, "Cook", sampleEntity("t1")), boom)
	assert.Empty(t, store.Entities("Cook"))
	assert.Equal(t, 1, store.Calls(OpUpsert))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.CreateTable(ctx, "Cook"))

	entity := sampleEntity("t1")
	require.NoError(t, store.Upsert(ctx, "Cook", entity))
	entity.Properties["last_time"] = "mutated"

	got, _, err := store.Get(ctx, "Cook", "d1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.String("last_time"))
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cook.db")
	ctx := context.Background()

	store, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.CreateTable(ctx, "Reading"))
	require.NoError(t, store.Upsert(ctx, "Reading", Entity{
		PartitionKey: "d1|c1",
		RowKey:       "2024-01-01T00:00:00Z",
		Properties:   map[string]any{"readings": "[]"},
	}))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, found, err := reopened.Get(ctx, "Reading", "d1|c1", "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "[]", got.String("readings"))
}

func TestOpenRequiresLocation(t *testing.T) {
	_, err := OpenSQLite("", nil)
	require.Error(t, err)

	_, err = OpenPostgres(context.Background(), "", nil)
	require.Error(t, err)

	_, err = NewAzure("", nil)
	require.Error(t, err)
}

func TestAzureEntityEncoding(t *testing.T) {
	payload, err := marshalAzureEntity(sampleEntity("t1"))
	require.NoError(t, err)

	doc := string(payload)
	assert.Contains(t, doc, `"PartitionKey":"d1"`)
	assert.Contains(t, doc, `"RowKey":"c1"`)
	assert.Contains(t, doc, `"chamber_target@odata.type":"Edm.Double"`)
	assert.NotContains(t, doc, `"cooker_on@odata.type"`)

	entity, err := unmarshalAzureEntity([]byte(`{
		"odata.metadata":"https://acct.table.core.windows.net/$metadata#Cook/@Element",
		"odata.etag":"W/\"datetime'2024-01-01T00%3A00%3A00Z'\"",
		"PartitionKey":"d1",
		"RowKey":"c1",
		"Timestamp":"2024-01-01T00:00:00Z",
		"chamber_target@odata.type":"Edm.Double",
		"chamber_target":225.0,
		"last_time":"t1"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "d1", entity.PartitionKey)
	assert.Equal(t, "c1", entity.RowKey)
	assert.Equal(t, map[string]any{"chamber_target": 225.0, "last_time": "t1"}, entity.Properties)
}

func TestAzureResponseErrorClassification(t *testing.T) {
	exists := &azcore.ResponseError{StatusCode: 409, ErrorCode: azureTableExists}
	assert.True(t, isResponseError(exists, 409, azureTableExists))
	assert.False(t, isResponseError(exists, 409, "QueueAlreadyExists"))
	assert.True(t, isResponseError(exists, 409, ""))
	assert.False(t, isResponseError(errors.New("plain"), 409, ""))
}

func TestNewAzureParsesConnectionString(t *testing.T) {
	store, err := NewAzure("DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;"+
		"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;"+
		"TableEndpoint=http://127.0.0.1:10002/devstoreaccount1;", nil)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NoError(t, store.Close())
}
