package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

// ErrUnknownTransport is returned by Build for a name nothing registered.
var ErrUnknownTransport = errors.New("transport: unknown transport")

// entry is what a transport package contributes from its init function.
type entry struct {
	build Builder
	caps  Capabilities
}

// Registry resolves the configured PubSubSystem to the broker that carries
// readings in and forwarded messages out. Re-registering a name replaces
// the earlier entry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// DefaultRegistry holds the transports linked into the binary. Importing
// transport/transports fills it with every supported broker.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a builder with no declared delivery guarantees. The name
// must match the PubSubSystem config value, e.g. "kafka".
func (r *Registry) Register(name string, builder Builder) {
	r.RegisterWithCapabilities(name, builder, Capabilities{Name: name})
}

// RegisterWithCapabilities adds a builder along with what the broker
// guarantees. The service reads these to warn when acked readings could
// still be lost.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{build: builder, caps: caps}
}

// Lookup reports the builder and capabilities stored under name.
func (r *Registry) Lookup(name string) (Builder, Capabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, Capabilities{Name: name}, false
	}
	return e.build, e.caps, true
}

// GetCapabilities answers with guarantees for name; an unknown broker
// promises nothing.
func (r *Registry) GetCapabilities(name string) Capabilities {
	_, caps, _ := r.Lookup(name)
	return caps
}

// Build connects the broker named by cfg. An unknown name fails with
// ErrUnknownTransport and lists what is linked in, which usually means a
// missing transports import.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, errors.New("transport: config is required")
	}

	name := cfg.GetPubSubSystem()
	build, _, ok := r.Lookup(name)
	if !ok {
		return Transport{}, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownTransport, name, r.Names())
	}
	return build(ctx, cfg, logger)
}

// Names lists registered brokers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	_, _, ok := r.Lookup(name)
	return ok
}

// Register adds to DefaultRegistry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds to DefaultRegistry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build resolves cfg against DefaultRegistry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
