// Package transport builds the inbound transport of the service from its
// configuration.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/cookflow/internal/runtime/config"
	"github.com/drblury/cookflow/transport"
	_ "github.com/drblury/cookflow/transport/transports"
)

// Factory abstracts how the service initialises its message transport.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory returns the factory backed by the transport registry.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if conf == nil {
		return transport.Transport{}, errors.New("config is required")
	}
	t, err := transport.Build(ctx, conf, logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("build %s transport: %w", conf.PubSubSystem, err)
	}
	if t.Publisher == nil || t.Subscriber == nil {
		_ = t.Close()
		return transport.Transport{}, fmt.Errorf("build %s transport: incomplete publisher/subscriber pair", conf.PubSubSystem)
	}
	return t, nil
}

// Capabilities returns the delivery guarantees of the configured transport.
func Capabilities(conf *config.Config) transport.Capabilities {
	if conf == nil {
		return transport.Capabilities{}
	}
	return transport.GetCapabilities(conf.PubSubSystem)
}
