/*
Package runtime wires the cooking telemetry ingestion service together.

# Architecture Overview

A Service subscribes to the inbound topic through a Watermill router and runs
every delivered reading through the ingestion pipeline:

	decode -> persist history -> persist latest state -> forward

Storage and queue resources are provisioned lazily and remembered in a
provisioning cache, so steady-state traffic costs no create calls.

# Package Structure

## Core Service (service.go, stores.go)

The Service struct owns:
  - Message router (Watermill)
  - Publisher and subscriber connections
  - Table store, queue store and provisioning cache
  - Middleware chain
  - HTTP servers for metrics

## Middleware (middleware.go, hooks.go)

The default chain, outermost first:
  - CorrelationID: Ensures message traceability
  - LogMessages: Debug logging of message payloads
  - Tracer: OpenTelemetry distributed tracing
  - Metrics: Prometheus router metrics
  - Retry: Exponential backoff for retriable failures
  - PoisonQueue: Dead-letters undecodable readings
  - Recoverer: Panic recovery

ReadingHooks run inside the chain once per handler attempt.

## Publishing (publisher.go)

Helpers for putting readings onto a transport with session metadata.

# Sub-packages

  - config/: Service configuration with validation
  - errors/: Sentinel errors and the failure taxonomy
  - reading/: Telemetry event and decoder
  - tablestore/: History and state storage (Azure Tables, SQLite, PostgreSQL, memory)
  - queuestore/: Delivery queues (Azure Queues, transport, memory)
  - provision/: Create-if-absent resource provisioning with caching
  - persist/: History and latest-state writer
  - forward/: Delivery forwarder
  - pipeline/: Per-reading orchestration
  - ids/, jsoncodec/, logging/, metadata/: Shared helpers
  - transport/: Transport factory

# Usage Example

	cfg := &cookflow.Config{
		PubSubSystem:            "kafka",
		KafkaBrokers:            []string{"localhost:9092"},
		InboundTopic:            "readings",
		StorageConnectionString: os.Getenv("STORAGE_CONNECTION_STRING"),
	}

	svc, err := cookflow.NewService(ctx, cfg, logger, cookflow.ServiceDependencies{})
	if err != nil {
		return err
	}
	return svc.Start(ctx)
*/
package runtime
