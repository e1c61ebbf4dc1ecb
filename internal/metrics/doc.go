// Package metrics exposes Prometheus counters for access decisions, commands,
// state changes and the broker connection, and serves them over HTTP.
package metrics
