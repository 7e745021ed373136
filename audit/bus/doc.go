// Package bus publishes authclient audit events to a watermill
// message.Publisher (Go channel, Redis streams, Kafka and so on).
//
// # Architecture boundaries
//
// [Sink] implements authclient.AuditSink. It runs on the client's audit
// dispatcher goroutine, so a slow publisher delays later events but never a
// request.
//
// # What this package must NOT do
//
//   - Block request paths.
//   - Publish raw tokens (events only carry fingerprints).
package bus
