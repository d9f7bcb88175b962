// Package internal holds the gatherly server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem rendering, and routing
// - domain: business logic (events, users, registrations, ids)
// - realtime: websocket rooms and live update fan-out
// - storage: the Postgres repositories and the registration ledger
// - auth, audit, config, metrics, loadtest: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
