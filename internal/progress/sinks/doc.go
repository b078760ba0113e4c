// Package sinks implements concrete progress consumers: structured throughput
// logging, Prometheus collectors and the run-history repository. Each sink
// satisfies progress.Sink and is safe for repeated Consume/Close cycles.
package sinks
