// Package rest is the outbound HTTP surface of the client.
//
// The gateway core uses it for connection discovery (URL, recommended
// shard count, identify budget), and event handlers use it to make
// calls back to the service. Requests pass through per-route token
// buckets plus a global limiter before hitting the wire.
package rest
