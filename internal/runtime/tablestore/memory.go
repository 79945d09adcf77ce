package tablestore

import (
	"context"
	"sort"
	"sync"
)

// Op names a Memory store operation for error injection.
type Op string

const (
	OpCreateTable Op = "create_table"
	OpUpsert      Op = "upsert"
	OpGet         Op = "get"
)

// Memory is an in-process Store. It behaves like the network backends:
// writes to a table that was never created fail with ErrTableNotFound.
type Memory struct {
	mu       sync.RWMutex
	tables   map[string]map[string]Entity
	calls    map[Op]int
	failures map[Op]error
}

func NewMemory() *Memory {
	return &Memory{
		tables:   make(map[string]map[string]Entity),
		calls:    make(map[Op]int),
		failures: make(map[Op]error),
	}
}

// FailWith makes every following call of op return err. A nil err clears it.
func (m *Memory) FailWith(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls returns how many times op was invoked, failed calls included.
func (m *Memory) Calls(op Op) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

func (m *Memory) CreateTable(ctx context.Context, name string) error {
	if err := validateTableName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[OpCreateTable]++
	if err := m.failures[OpCreateTable]; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := m.tables[name]; !ok {
		m.tables[name] = make(map[string]Entity)
	}
	return nil
}

func (m *Memory) Upsert(ctx context.Context, table string, entity Entity) error {
	if err := validateKeys(entity); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[OpUpsert]++
	if err := m.failures[OpUpsert]; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rows, ok := m.tables[table]
	if !ok {
		return ErrTableNotFound
	}
	rows[entity.Key()] = entity.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, table, partitionKey, rowKey string) (Entity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[OpGet]++
	if err := m.failures[OpGet]; err != nil {
		return Entity{}, false, err
	}
	rows, ok := m.tables[table]
	if !ok {
		return Entity{}, false, ErrTableNotFound
	}
	entity, ok := rows[Entity{PartitionKey: partitionKey, RowKey: rowKey}.Key()]
	if !ok {
		return Entity{}, false, nil
	}
	return entity.Clone(), true, nil
}

// Tables lists the created tables in name order.
func (m *Memory) Tables() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entities returns a copy of every entity in table, ordered by key.
func (m *Memory) Entities(table string) []Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.tables[table]
	out := make([]Entity, 0, len(rows))
	for _, e := range rows {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (m *Memory) Close() error { return nil }
