// Package shard owns the fleet of gateway connections.
//
// The orchestrator starts one connection per shard index, shares a
// single identify budget between them so fresh handshakes respect the
// service's global admission rate, and supervises restarts. Fatal
// connection failures are reported upward, never retried.
package shard
