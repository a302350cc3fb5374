// Package renewal coordinates session renewal for requests that failed with an
// authorization status.
//
// # State machine
//
// The [Coordinator] is Idle, Renewing or Draining. The first authorization failure
// seen while Idle starts exactly one renewal; every failure observed while Renewing
// is held in an insertion-ordered queue. When the renewal settles the coordinator
// leaves Renewing and detaches the queue before releasing anyone, so requests
// issued from then on (including from the logout hook) start a fresh cycle.
//
// On success the trigger and then every held request are replayed once, in
// order; the coordinator stays Draining until the last replay finished. On
// failure the held requests are rejected with the renewal error, the logout hook
// runs exactly once, and the trigger is rejected last.
//
// A request replayed after renewal is marked as a retry. If it fails authorization
// again it is rejected as a replay failure and never starts another renewal.
//
// # What this package must NOT do
//
//   - Import goAdmin (failure kinds are mapped at the root).
//   - Let more than one renewal run at a time.
//   - Keep state across renewal attempts.
package renewal
