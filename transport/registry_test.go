package transport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConfig struct {
	pubSubSystem string
}

func (m *stubConfig) GetPubSubSystem() string       { return m.pubSubSystem }
func (m *stubConfig) GetKafkaBrokers() []string     { return nil }
func (m *stubConfig) GetKafkaConsumerGroup() string { return "" }
func (m *stubConfig) GetRabbitMQURL() string        { return "" }
func (m *stubConfig) GetNATSURL() string            { return "" }
func (m *stubConfig) GetHTTPServerAddress() string  { return "" }
func (m *stubConfig) GetHTTPPublisherURL() string   { return "" }
func (m *stubConfig) GetAWSRegion() string          { return "" }
func (m *stubConfig) GetAWSAccountID() string       { return "" }
func (m *stubConfig) GetAWSAccessKeyID() string     { return "" }
func (m *stubConfig) GetAWSSecretAccessKey() string { return "" }
func (m *stubConfig) GetAWSEndpoint() string        { return "" }

type stubPublisher struct{ closed int }

func (m *stubPublisher) Publish(string, ...*message.Message) error { return nil }
func (m *stubPublisher) Close() error {
	m.closed++
	return nil
}

type stubSubscriber struct {
	closed      int
	initialized []string
}

func (m *stubSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (m *stubSubscriber) Close() error {
	m.closed++
	return errors.New("subscriber close failed")
}

type initializingSubscriber struct{ stubSubscriber }

func (m *initializingSubscriber) SubscribeInitialize(topic string) error {
	m.initialized = append(m.initialized, topic)
	return nil
}

func stubBuilder(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
	return Transport{Publisher: &stubPublisher{}, Subscriber: &stubSubscriber{}}, nil
}

func TestRegistryBuild(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Names())

	reg.RegisterWithCapabilities("stub", stubBuilder, Capabilities{Name: "stub", SupportsAck: true, SupportsNack: true})
	assert.True(t, reg.Has("stub"))
	assert.True(t, reg.GetCapabilities("stub").SupportsReliableDelivery())

	tr, err := reg.Build(context.Background(), &stubConfig{pubSubSystem: "stub"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, tr.Publisher)
	assert.NotNil(t, tr.Subscriber)
}

func TestRegistryBuildErrors(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Build(context.Background(), nil, nil)
	require.ErrorContains(t, err, "config is required")

	_, err = reg.Build(context.Background(), &stubConfig{pubSubSystem: "carrier-pigeon"}, nil)
	require.ErrorIs(t, err, ErrUnknownTransport)

	boom := errors.New("broker unreachable")
	reg.Register("failing", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, boom
	})
	_, err = reg.Build(context.Background(), &stubConfig{pubSubSystem: "failing"}, nil)
	require.ErrorIs(t, err, boom)
}

func TestRegistryNamesAreSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register("nats", stubBuilder)
	reg.Register("aws", stubBuilder)
	reg.Register("kafka", stubBuilder)
	assert.Equal(t, []string{"aws", "kafka", "nats"}, reg.Names())
}

func TestRegistryUnknownCapabilities(t *testing.T) {
	caps := NewRegistry().GetCapabilities("unknown")
	assert.Equal(t, "unknown", caps.Name)
	assert.False(t, caps.SupportsReliableDelivery())
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	build, caps, ok := reg.Lookup("kafka")
	assert.False(t, ok)
	assert.Nil(t, build)
	assert.Equal(t, Capabilities{Name: "kafka"}, caps)

	reg.Register("kafka", stubBuilder)
	build, caps, ok = reg.Lookup("kafka")
	require.True(t, ok)
	assert.NotNil(t, build)
	assert.Equal(t, Capabilities{Name: "kafka"}, caps)
}

func TestRegistryReregisterReplacesCapabilities(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterWithCapabilities("gochannel", stubBuilder, ChannelCapabilities)
	reg.Register("gochannel", stubBuilder)

	assert.False(t, reg.GetCapabilities("gochannel").SupportsReliableDelivery())
	assert.Equal(t, []string{"gochannel"}, reg.Names())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.RegisterWithCapabilities("shared", stubBuilder, ChannelCapabilities)
				reg.Has("shared")
				reg.Names()
				reg.GetCapabilities("shared")
			}
		}()
	}
	wg.Wait()
	assert.True(t, reg.Has("shared"))
}

func TestPackageLevelRegistry(t *testing.T) {
	RegisterWithCapabilities("test-pkg-transport", stubBuilder, Capabilities{Name: "test-pkg-transport", SupportsOrdering: true})
	assert.True(t, DefaultRegistry.Has("test-pkg-transport"))
	assert.True(t, GetCapabilities("test-pkg-transport").SupportsOrdering)

	_, err := Build(context.Background(), &stubConfig{pubSubSystem: "nonexistent"}, nil)
	require.ErrorIs(t, err, ErrUnknownTransport)
}

func TestTransportInitializer(t *testing.T) {
	plain := Transport{Subscriber: &stubSubscriber{}}
	assert.Nil(t, plain.Initializer())

	sub := &initializingSubscriber{}
	withInit := Transport{Subscriber: sub}
	require.NotNil(t, withInit.Initializer())
	require.NoError(t, withInit.Initializer().SubscribeInitialize("readings"))
	assert.Equal(t, []string{"readings"}, sub.initialized)
}

func TestTransportClose(t *testing.T) {
	pub, sub := &stubPublisher{}, &stubSubscriber{}
	err := Transport{Publisher: pub, Subscriber: sub}.Close()
	require.ErrorContains(t, err, "subscriber close failed")
	assert.Equal(t, 1, pub.closed)
	assert.Equal(t, 1, sub.closed)

	assert.NoError(t, Transport{}.Close())
}

func TestCapabilities(t *testing.T) {
	assert.True(t, ChannelCapabilities.SupportsReliableDelivery())
	assert.True(t, AWSCapabilities.SupportsReliableDelivery())
	assert.False(t, KafkaCapabilities.SupportsReliableDelivery())
	assert.False(t, HTTPCapabilities.SupportsReliableDelivery())

	assert.True(t, AWSCapabilities.Fits(1024))
	assert.False(t, AWSCapabilities.Fits(300000))
	assert.True(t, ChannelCapabilities.Fits(10<<20))
}
