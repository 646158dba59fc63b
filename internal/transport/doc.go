// Package transport owns the raw WebSocket connection.
//
// It performs the dial/upgrade handshake and exposes opaque frames
// through channels; it knows nothing about the gateway protocol.
// One Conn maps to one socket: after the socket dies the Conn is
// done, reconnection means a new Conn.
package transport
