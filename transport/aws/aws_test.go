package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/cookflow/transport"
	"github.com/drblury/cookflow/transport/transporttest"
)

type stubs struct {
	loaderErr, pubErr, subErr error

	pub       *transporttest.Publisher
	accountID string
	region    string
	pubCfg    sns.PublisherConfig
	sqsCfg    sqs.SubscriberConfig
	loadOpts  int
}

func (s *stubs) install(t *testing.T) {
	t.Helper()
	originalLoader, originalResolver := DefaultConfigLoader, TopicResolverFactory
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		DefaultConfigLoader = originalLoader
		TopicResolverFactory = originalResolver
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	})

	s.pub = &transporttest.Publisher{}
	DefaultConfigLoader = func(_ context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		s.loadOpts = len(opts)
		if s.loaderErr != nil {
			return aws.Config{}, s.loaderErr
		}
		return aws.Config{Region: "eu-west-1"}, nil
	}
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		s.accountID, s.region = accountID, region
		return &sns.GenerateArnTopicResolver{}, nil
	}
	PublisherFactory = func(cfg sns.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		s.pubCfg = cfg
		if s.pubErr != nil {
			return nil, s.pubErr
		}
		return s.pub, nil
	}
	SubscriberFactory = func(_ sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		s.sqsCfg = sqsCfg
		if s.subErr != nil {
			return nil, s.subErr
		}
		return &transporttest.Subscriber{}, nil
	}
}

func TestRegisteredOnImport(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.True(t, transport.GetCapabilities(TransportName).SupportsReliableDelivery())
}

func TestBuild(t *testing.T) {
	s := &stubs{}
	s.install(t)

	tr, err := Build(context.Background(), &transporttest.Config{
		AWSRegion:          "us-west-2",
		AWSAccountID:       "123456789012",
		AWSAccessKeyID:     "key",
		AWSSecretAccessKey: "secret",
	}, watermill.NopLogger{})
	require.NoError(t, err)

	assert.Same(t, s.pub, tr.Publisher)
	assert.Equal(t, "123456789012", s.accountID)
	assert.Equal(t, "us-west-2", s.region)
	assert.Equal(t, 2, s.loadOpts)
	assert.Empty(t, s.pubCfg.OptFns)
	assert.Empty(t, s.sqsCfg.OptFns)
}

func TestBuildWithLocalstackEndpoint(t *testing.T) {
	s := &stubs{}
	s.install(t)

	_, err := Build(context.Background(), &transporttest.Config{AWSEndpoint: "http://localhost:4566"}, watermill.NopLogger{})
	require.NoError(t, err)

	assert.Equal(t, localstackAccountID, s.accountID)
	assert.Equal(t, "eu-west-1", s.region)
	assert.Len(t, s.pubCfg.OptFns, 1)
	assert.Len(t, s.sqsCfg.OptFns, 1)
}

func TestBuildErrors(t *testing.T) {
	cfg := &transporttest.Config{AWSRegion: "us-east-1", AWSAccountID: "123456789012"}

	t.Run("invalid endpoint", func(t *testing.T) {
		(&stubs{}).install(t)
		_, err := Build(context.Background(), &transporttest.Config{AWSEndpoint: "localhost"}, watermill.NopLogger{})
		require.ErrorContains(t, err, "absolute url")
	})

	t.Run("config loader", func(t *testing.T) {
		(&stubs{loaderErr: errors.New("config error")}).install(t)
		_, err := Build(context.Background(), cfg, watermill.NopLogger{})
		require.ErrorContains(t, err, "config error")
	})

	t.Run("publisher", func(t *testing.T) {
		(&stubs{pubErr: errors.New("publisher error")}).install(t)
		_, err := Build(context.Background(), cfg, watermill.NopLogger{})
		require.ErrorContains(t, err, "publisher error")
	})

	t.Run("subscriber closes publisher", func(t *testing.T) {
		s := &stubs{subErr: errors.New("subscriber error")}
		s.install(t)
		_, err := Build(context.Background(), cfg, watermill.NopLogger{})
		require.ErrorContains(t, err, "subscriber error")
		assert.True(t, s.pub.Closed)
	})
}

func TestResolveAccountID(t *testing.T) {
	assert.Equal(t, "123456789012", resolveAccountID(" '123456789012' ", false))
	assert.Equal(t, "123456789012", resolveAccountID("123456789012", true))
	assert.Equal(t, localstackAccountID, resolveAccountID("", true))
	assert.Equal(t, localstackAccountID, resolveAccountID("42", true))
	assert.Equal(t, "", resolveAccountID("", false))
}

func TestQueueNameFromTopic(t *testing.T) {
	name, err := queueNameFromTopic(context.Background(), "arn:aws:sns:us-east-1:123456789012:cook-readings")
	require.NoError(t, err)
	assert.Equal(t, "cook-readings", name)
}
