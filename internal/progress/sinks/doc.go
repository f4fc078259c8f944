// Package sinks implements progress consumers: structured logs, Prometheus
// collectors, the Postgres archive, Pub/Sub export and CSV snapshots. Each
// satisfies progress.Sink.
package sinks
