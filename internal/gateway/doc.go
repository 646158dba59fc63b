// Package gateway implements the per-shard connection state machine.
//
// A Connection owns one transport socket at a time and drives it
// through the protocol: wait for Hello, identify or resume, then
// dispatch events while heartbeating. Transport failures are retried
// internally with backoff; only fatal close codes or retry
// exhaustion surface to the owner.
package gateway
