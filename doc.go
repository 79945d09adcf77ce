// Package cookflow ingests cooking-session telemetry from smoker and grill
// controllers. Each reading arrives on a Watermill topic, is decoded, written
// as a history record for its sampling instant and as the latest-state record
// of its cooking session, and is then forwarded to a delivery queue for
// downstream consumers.
//
// Service hosts the router and the ingestion pipeline. A minimal setup fills
// Config (or reads it with FromEnv), creates a Service and calls Start; the
// cmd/cookflow binary does exactly that.
//
// # Transports
//
// Readings can arrive over six transports:
//   - channel: In-memory Go channels for testing
//   - kafka: High-throughput streaming with consumer groups
//   - rabbitmq: AMQP-based durable queues
//   - aws: AWS SNS/SQS with LocalStack support
//   - nats: Core NATS with a shared queue group
//   - http: Webhook-style delivery
//
// # Storage
//
// History and state records live in Azure Table Storage, SQLite, PostgreSQL
// or memory. Forwarded readings go to Azure Queue Storage, back onto the
// transport, or into memory. Tables and queues are created on first use and
// the fact is cached, optionally in Redis so replicas share it.
//
// # Failure handling
//
// Undecodable payloads are never retried; they go to the poison queue when
// one is configured and are acknowledged otherwise. Storage and queue
// failures are retried with exponential backoff and then nacked so the
// broker redelivers. Upserts are idempotent, so redelivery is safe.
//
// # Middleware
//
// The default middleware chain includes correlation ID injection, structured
// logging, OpenTelemetry tracing, Prometheus metrics, retry with exponential
// backoff, poison queue forwarding, and panic recovery. Custom middleware can
// be added via ServiceDependencies.Middlewares, and ReadingHooks observe
// every attempt.
package cookflow
