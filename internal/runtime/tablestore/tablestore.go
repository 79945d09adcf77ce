// Package tablestore is the contract between the persistence writer and the
// durable keyed-record service. Every backend offers the same three calls:
// create-if-absent for a table, insert-or-replace for an entity and a point
// read used by the optional state guards.
package tablestore

import (
	"context"
	"errors"
	"fmt"

	configpkg "github.com/drblury/cookflow/internal/runtime/config"
)

// ErrTableNotFound is returned when an entity is written to or read from a
// table that was never created.
var ErrTableNotFound = errors.New("tablestore: table not found")

// Entity is one keyed record. Property values are strings, booleans or
// numbers; numbers read back from a backend may come back as float64.
type Entity struct {
	PartitionKey string
	RowKey       string
	Properties   map[string]any
}

// Key returns the composite primary key of the entity.
func (e Entity) Key() string {
	return e.PartitionKey + "\x00" + e.RowKey
}

// String returns a property as a string, or "" when absent or not a string.
func (e Entity) String(name string) string {
	s, _ := e.Properties[name].(string)
	return s
}

// Clone returns a copy whose property map can be mutated independently.
func (e Entity) Clone() Entity {
	props := make(map[string]any, len(e.Properties))
	for k, v := range e.Properties {
		props[k] = v
	}
	return Entity{PartitionKey: e.PartitionKey, RowKey: e.RowKey, Properties: props}
}

// Store is a durable keyed-record service.
type Store interface {
	// CreateTable creates the named table unless it already exists.
	CreateTable(ctx context.Context, name string) error
	// Upsert inserts the entity or replaces the one with the same key.
	Upsert(ctx context.Context, table string, entity Entity) error
	// Get reads one entity; found is false when the key is absent.
	Get(ctx context.Context, table, partitionKey, rowKey string) (entity Entity, found bool, err error)
	Close() error
}

func validateTableName(name string) error {
	if !configpkg.ValidTableName(name) {
		return fmt.Errorf("tablestore: invalid table name %q", name)
	}
	return nil
}

func validateKeys(entity Entity) error {
	if entity.PartitionKey == "" || entity.RowKey == "" {
		return fmt.Errorf("tablestore: partition and row keys are required (got %q, %q)", entity.PartitionKey, entity.RowKey)
	}
	return nil
}

// Table is a Store bound to one table name.
type Table struct {
	store Store
	name  string
}

// Bind returns a handle for table name on store.
func Bind(store Store, name string) Table {
	return Table{store: store, name: name}
}

func (t Table) Name() string { return t.name }

func (t Table) Upsert(ctx context.Context, entity Entity) error {
	return t.store.Upsert(ctx, t.name, entity)
}

func (t Table) Get(ctx context.Context, partitionKey, rowKey string) (Entity, bool, error) {
	return t.store.Get(ctx, t.name, partitionKey, rowKey)
}

// Backend adapts a Store to the provisioner: tables are created on first use
// and handed out as Table handles.
type Backend struct {
	Store Store
}

func (b Backend) CreateIfNotExists(ctx context.Context, name string) error {
	return b.Store.CreateTable(ctx, name)
}

func (b Backend) Handle(name string) Table {
	return Bind(b.Store, name)
}
