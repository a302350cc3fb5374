// Package goAdmin is the HTTP client an admin dashboard uses to talk to its
// backend API over a cookie session.
//
// Every call goes through [Client.Issue] (or the JSON helpers built on it). When
// the server answers that the session is no longer authorized, the client runs
// a single session renewal for all the calls that hit the same condition, holds
// the others until it settles, and replays each held call once. If renewal
// fails, the logout hook runs and every held call fails with
// [ErrRenewalFailure].
//
// A Client is safe to call from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// goAdmin is the public surface. It exposes [Client], [Builder], [Config], the
// failure taxonomy ([RequestError], [FailureKind]) and the hook interfaces
// ([Renewer], [LogoutHook]). Transport, the renewal coordinator, its deferred
// queue and the hook registry live under internal/ and are never exported.
// The session cookie jar and its Redis snapshot store live in session; the
// default refresh-endpoint renewer lives in refresh.
//
// # What this package must NOT do
//
//   - Run more than one renewal at a time for a Client.
//   - Replay a held call more than once, or renew on behalf of a replayed call.
//   - Surface an authorization failure from Issue for a call that was allowed to renew.
//   - Perform I/O in Builder methods other than Build (which may restore a stored session).
package goAdmin
