// Package heartbeat drives the per-connection liveness cadence.
//
// The scheduler fires the first beat after a jittered fraction of the
// server-advertised interval, then every full interval. If a beat
// comes due while the previous one is still unacknowledged, the
// connection is stale and the scheduler signals it exactly once.
package heartbeat
