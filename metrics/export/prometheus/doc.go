// Package prometheus renders authclient metrics in Prometheus text
// exposition format.
//
// Counter names are prefixed authclient_*_total; the single histogram is
// authclient_refresh_latency_seconds. Rendering a live client also writes
// session and per-action gate gauges labelled {action="..."}.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate client state.
package prometheus
