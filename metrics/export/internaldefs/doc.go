// Package internaldefs holds the metric names and bucket bounds shared by
// the Prometheus and OTel exporters.
//
// Both exporters read these tables, so a rename here changes every export
// surface at once.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
