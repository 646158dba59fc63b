// Package store provides the keyed storage handles that stateful
// event handlers bind to.
//
// Values are scoped to a guild, a user, or the whole process, and
// created lazily on first access. The container only manages
// lookup and lifetime of the handles; what a handler keeps inside
// one is its own business.
package store
