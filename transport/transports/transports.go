// Package transports registers every built-in inbound transport with the
// default registry.
package transports

import (
	_ "github.com/drblury/cookflow/transport/aws"
	_ "github.com/drblury/cookflow/transport/channel"
	_ "github.com/drblury/cookflow/transport/http"
	_ "github.com/drblury/cookflow/transport/kafka"
	_ "github.com/drblury/cookflow/transport/nats"
	_ "github.com/drblury/cookflow/transport/rabbitmq"
)
