package session

import (
	"net/http"
	"time"
)

// SnapshotVersion is the current snapshot schema.
const SnapshotVersion = 1

// Cookie is the persisted form of one session cookie.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// Snapshot is the persisted state of one tenant's session.
type Snapshot struct {
	Version  int      `json:"v"`
	TenantID string   `json:"tenant_id"`
	BaseURL  string   `json:"base_url"`
	Cookies  []Cookie `json:"cookies"`
	// SavedAt orders snapshots; Store.Save never replaces a newer one.
	SavedAt time.Time `json:"saved_at"`
	// AccessExpiresAt is the expiry of the access token, when it could be read.
	AccessExpiresAt time.Time `json:"access_expires_at,omitzero"`
}

func cookieFromHTTP(c *http.Cookie, now time.Time) Cookie {
	exp := c.Expires
	if c.MaxAge > 0 {
		exp = now.Add(time.Duration(c.MaxAge) * time.Second)
	}
	return Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  exp,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}

func (c Cookie) toHTTP() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}

func (c Cookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}
