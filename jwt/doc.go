// Package jwt signs and verifies the access tokens carried in the admin session
// cookie, and lets clients read a token's expiry without holding the key.
//
// The fake admin API in internal/apitest issues tokens through [Manager]; the
// default renewer uses [PeekExpiry] to learn when the renewed session ends.
package jwt
