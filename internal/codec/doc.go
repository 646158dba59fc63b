// Package codec encodes and decodes gateway protocol envelopes.
//
// Every frame on the wire is a JSON envelope with an opcode, an
// optional sequence number, an optional event name (Dispatch only)
// and an opaque payload. The codec only parses; it has no side
// effects and no knowledge of connection state.
package codec
