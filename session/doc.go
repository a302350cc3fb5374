// Package session holds the client-side state of an authenticated session: the
// cookie jar the HTTP client sends with every request, and a Redis-backed store
// that persists jar snapshots per tenant so a process can resume a session
// after restart.
//
// # Architecture boundaries
//
// The jar records every cookie the server sets with its attributes. The store
// only sees opaque [Snapshot] values; it never talks HTTP. Snapshots are
// ordered by SavedAt so that a slow writer cannot overwrite the session a
// later renewal stored.
//
// # What this package must NOT do
//
//   - Decide when a session is renewed or dropped.
//   - Import goAdmin or the transport.
package session
