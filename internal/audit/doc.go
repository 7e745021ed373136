// Package audit provides asynchronous dispatch of client-side session events
// (refresh outcomes, forced logouts, rate-limit hits) to pluggable sinks.
//
// # Dispatcher
//
// The [Dispatcher] owns one goroutine that drains a bounded channel into a
// [Sink]. With DropIfFull the emit path never blocks and overflow is counted.
// Close drains whatever is already buffered before returning.
//
// # What this package must NOT do
//
//   - Carry raw bearer tokens. Events hold fingerprints only.
//   - Import authclient or any sibling internal package.
package audit
