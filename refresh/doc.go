// Package refresh implements the default session renewer: one call to the
// server's refresh endpoint using the session cookies.
//
// # Endpoint contract
//
// A 2xx answer means the session was renewed and the server has set fresh
// cookies. 401 and 403 mean the credentials are no longer valid
// ([ErrRefreshRejected]). Anything else is [ErrRefreshFailed] or a transport
// error, returned as-is.
//
// # Architecture boundaries
//
// The renewer talks to the endpoint directly through the client's http.Client.
// It never goes through the renewal coordinator, so a rejected refresh cannot
// start another renewal.
//
// # What this package must NOT do
//
//   - Decide what happens to waiting requests.
//   - Import goAdmin.
package refresh
