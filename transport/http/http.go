// Package http provides an HTTP transport: devices POST readings to
// <server address>/<topic>, forwarded readings are POSTed to
// <publisher url><topic>.
package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/cookflow/transport"
)

const TransportName = "http"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates an HTTP transport. Either side may be left unconfigured; an
// empty server address disables the subscriber and an empty publisher URL
// makes publishing fail.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	serverAddr := cfg.GetHTTPServerAddress()
	publisherURL := cfg.GetHTTPPublisherURL()
	if serverAddr == "" && publisherURL == "" {
		return transport.Transport{}, errors.New("http: server address or publisher url is required")
	}
	if publisherURL != "" && !strings.HasSuffix(publisherURL, "/") {
		publisherURL += "/"
	}

	publisher, err := PublisherFactory(http.PublisherConfig{
		MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
			if publisherURL == "" {
				return nil, errors.New("http: publisher url is not configured")
			}
			return http.DefaultMarshalMessageFunc(publisherURL+topic, msg)
		},
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	var subscriber message.Subscriber = disabledSubscriber{}
	if serverAddr != "" {
		sub, err := SubscriberFactory(serverAddr, http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		}, logger)
		if err != nil {
			_ = publisher.Close()
			return transport.Transport{}, err
		}
		subscriber = &serverSubscriber{Subscriber: sub, logger: logger}
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

type httpServer interface {
	StartHTTPServer() error
}

// serverSubscriber starts the HTTP server once the first topic route has been
// registered by Subscribe.
type serverSubscriber struct {
	message.Subscriber
	logger watermill.LoggerAdapter
	once   sync.Once
}

func (s *serverSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	msgs, err := s.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	s.once.Do(func() {
		server, ok := s.Subscriber.(httpServer)
		if !ok {
			return
		}
		go func() {
			if err := server.StartHTTPServer(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				s.logger.Error("HTTP subscriber server stopped", err, nil)
			}
		}()
	})
	return msgs, nil
}

type disabledSubscriber struct{}

func (disabledSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return nil, errors.New("http: server address is not configured")
}

func (disabledSubscriber) Close() error { return nil }
