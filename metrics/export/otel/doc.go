// Package otel exports authclient counters and the refresh latency
// histogram as OpenTelemetry observable instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per histogram bucket. A single callback reads
// [authclient.Client.MetricsSnapshot] on each collection cycle. A live
// client additionally reports authclient_session_authenticated and per-action
// authclient_rate_limit_attempts and authclient_rate_limit_cooldown gauges
// carrying an "action" attribute.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate client state.
package otel
