package transport

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/cookflow/internal/runtime/config"
	"github.com/drblury/cookflow/transport"
)

func TestDefaultFactoryBuildsChannel(t *testing.T) {
	tr, err := DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: "channel"}, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	assert.NotNil(t, tr.Publisher)
	assert.NotNil(t, tr.Subscriber)
}

func TestDefaultFactoryErrors(t *testing.T) {
	_, err := DefaultFactory().Build(context.Background(), nil, watermill.NopLogger{})
	require.ErrorContains(t, err, "config is required")

	_, err = DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: "carrier-pigeon"}, watermill.NopLogger{})
	require.ErrorIs(t, err, transport.ErrUnknownTransport)
	assert.Contains(t, err.Error(), "carrier-pigeon")

	_, err = DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: "kafka"}, watermill.NopLogger{})
	require.ErrorContains(t, err, "broker")
}

func TestFactoryFunc(t *testing.T) {
	called := false
	f := FactoryFunc(func(context.Context, *config.Config, watermill.LoggerAdapter) (transport.Transport, error) {
		called = true
		return transport.Transport{}, nil
	})
	_, err := f.Build(context.Background(), &config.Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestCapabilities(t *testing.T) {
	assert.True(t, Capabilities(&config.Config{PubSubSystem: "channel"}).SupportsReliableDelivery())
	assert.False(t, Capabilities(&config.Config{PubSubSystem: "nats"}).SupportsReliableDelivery())
	assert.Equal(t, transport.Capabilities{}, Capabilities(nil))
}
