package queuestore

import (
	"context"
	"sync"

	"github.com/drblury/cookflow/internal/runtime/metadata"
)

// Message is a queued message as held by the Memory store.
type Message struct {
	Body     []byte
	Metadata metadata.Metadata
}

// Op names a Memory store operation for error injection.
type Op string

const (
	OpCreateQueue Op = "create_queue"
	OpEnqueue     Op = "enqueue"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	queues   map[string][]Message
	calls    map[Op]int
	failures map[Op]error
}

func NewMemory() *Memory {
	return &Memory{
		queues:   make(map[string][]Message),
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

func (m *Memory) CreateQueue(ctx context.Context, name string) error {
	if err := validateQueueName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[OpCreateQueue]++
	if err := m.failures[OpCreateQueue]; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := m.queues[name]; !ok {
		m.queues[name] = []Message{}
	}
	return nil
}

func (m *Memory) Enqueue(ctx context.Context, queue string, body []byte, md metadata.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[OpEnqueue]++
	if err := m.failures[OpEnqueue]; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msgs, ok := m.queues[queue]
	if !ok {
		return ErrQueueNotFound
	}
	m.queues[queue] = append(msgs, Message{
		Body:     append([]byte(nil), body...),
		Metadata: md.Clone(),
	})
	return nil
}

// Messages returns a copy of the messages in queue, oldest first.
func (m *Memory) Messages(queue string) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Message(nil), m.queues[queue]...)
}

func (m *Memory) Close() error { return nil }
