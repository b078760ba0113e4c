// Package progress provides the event primitives, non-blocking hub and
// throughput tracker that phase runs use to report progress. Events are
// batched on a background goroutine and fanned out to pluggable sinks such as
// structured logs, Prometheus metrics or the run-history table.
package progress
