package persist

import (
	"context"
	"errors"

	errspkg "github.com/drblury/cookflow/internal/runtime/errors"
	"github.com/drblury/cookflow/internal/runtime/provision"
	"github.com/drblury/cookflow/internal/runtime/tablestore"
)

// Mapper turns a value into the entity stored for it.
type Mapper[T any] func(T) (tablestore.Entity, error)

// Upserter writes one record shape into one table, provisioning the table on
// first use.
type Upserter[T any] struct {
	record string
	table  string
	tables *provision.Provisioner[tablestore.Table]
	mapper Mapper[T]
}

func NewUpserter[T any](record, table string, tables *provision.Provisioner[tablestore.Table], mapper Mapper[T]) *Upserter[T] {
	return &Upserter[T]{record: record, table: table, tables: tables, mapper: mapper}
}

// Table returns the name of the table the upserter writes to.
func (u *Upserter[T]) Table() string { return u.table }

// Upsert maps v and inserts or replaces the resulting entity.
func (u *Upserter[T]) Upsert(ctx context.Context, v T) error {
	return u.use(ctx, func(tbl tablestore.Table) error {
		entity, err := u.mapper(v)
		if err != nil {
			return err
		}
		return tbl.Upsert(ctx, entity)
	})
}

// Lookup reads the stored entity for a key.
func (u *Upserter[T]) Lookup(ctx context.Context, partitionKey, rowKey string) (tablestore.Entity, bool, error) {
	var (
		entity tablestore.Entity
		found  bool
	)
	err := u.use(ctx, func(tbl tablestore.Table) error {
		var err error
		entity, found, err = tbl.Get(ctx, partitionKey, rowKey)
		return err
	})
	if err != nil {
		return tablestore.Entity{}, false, err
	}
	return entity, found, nil
}

// use runs fn against the table, creating the table again when a cached
// provisioning entry turns out to be stale.
func (u *Upserter[T]) use(ctx context.Context, fn func(tablestore.Table) error) error {
	err := u.tables.Use(ctx, u.table, tableMissing, fn)
	if err == nil {
		return nil
	}
	var provErr *errspkg.ProvisionError
	if errors.As(err, &provErr) {
		return err
	}
	return u.fail(err)
}

func tableMissing(err error) bool {
	return errors.Is(err, tablestore.ErrTableNotFound)
}

func (u *Upserter[T]) fail(err error) error {
	return &errspkg.PersistError{Record: u.record, Table: u.table, Err: err}
}
