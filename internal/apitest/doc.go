// Package apitest runs an in-process admin API with the same session shape as
// the real one: a login that sets an access cookie and a path-scoped refresh
// cookie, a refresh endpoint that rotates both, and a few secured resources.
//
// Controls such as [Server.ExpireAccess], [Server.RevokeRefresh] and
// [Server.SetRefreshDelay] let tests, the example and the load test drive the
// client through renewal success, renewal failure and renewal timeout.
package apitest
