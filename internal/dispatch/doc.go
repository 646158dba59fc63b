// Package dispatch matches decoded gateway events to registered
// handlers and runs them with isolated failure semantics.
//
// Handlers for one event run concurrently with each other; the
// dispatcher returns only after all of them finish, so a connection
// calling it in its read loop gets event-to-event ordering for free.
// A failing or panicking handler is reported and never affects its
// siblings or the connection that delivered the event.
package dispatch
