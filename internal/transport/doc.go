// Package transport issues single outbound HTTP calls for the admin API client and
// classifies their outcome.
//
// # Outcome classes
//
// A call either returns a [Response] (2xx/3xx, unchanged) or a [*Failure] whose
// [FailureKind] tells the caller what happened: no response at all (network), an
// authorization-failure status (auth), or any other error status (status).
//
// # Architecture boundaries
//
// The transport owns URL joining, standard headers and the shared cookie jar. It
// never attaches or refreshes credentials on its own and never retries.
//
// # What this package must NOT do
//
//   - Import goAdmin or internal/renewal (no upward imports).
//   - Decide whether a failed call is replayed.
//   - Touch renewal state.
package transport
