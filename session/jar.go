package session

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"sync"
	"time"
)

// Jar is the http.CookieJar of one client. On top of the standard jar it keeps
// the full attributes of every cookie the server set, so the session can be
// snapshotted and restored, and it can be emptied on forced logout.
type Jar struct {
	base *url.URL

	mu      sync.RWMutex
	inner   *cookiejar.Jar
	records map[string]Cookie
	now     func() time.Time
}

// NewJar creates an empty jar for the API at base.
func NewJar(base *url.URL) *Jar {
	j := &Jar{base: base, now: time.Now}
	j.inner, _ = cookiejar.New(nil)
	j.records = make(map[string]Cookie)
	return j
}

func recordKey(c Cookie) string {
	return c.Domain + "|" + c.Path + "|" + c.Name
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	now := j.now()

	j.mu.Lock()
	defer j.mu.Unlock()

	j.inner.SetCookies(u, cookies)
	for _, hc := range cookies {
		c := cookieFromHTTP(hc, now)
		key := recordKey(c)
		if hc.MaxAge < 0 || c.expired(now) {
			delete(j.records, key)
			continue
		}
		j.records[key] = c
	}
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.inner.Cookies(u)
}

// Value returns the value of the named cookie as it would be sent to path
// under the base URL.
func (j *Jar) Value(path, name string) (string, bool) {
	u := j.base.JoinPath(path)
	for _, c := range j.Cookies(u) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Len reports how many live cookies the jar holds.
func (j *Jar) Len() int {
	now := j.now()
	j.mu.RLock()
	defer j.mu.RUnlock()
	n := 0
	for _, c := range j.records {
		if !c.expired(now) {
			n++
		}
	}
	return n
}

// Reset drops every cookie.
func (j *Jar) Reset() {
	inner, _ := cookiejar.New(nil)

	j.mu.Lock()
	j.inner = inner
	j.records = make(map[string]Cookie)
	j.mu.Unlock()
}

// Snapshot returns the live cookies in a stable order.
func (j *Jar) Snapshot(tenantID string) *Snapshot {
	now := j.now()

	j.mu.RLock()
	cookies := make([]Cookie, 0, len(j.records))
	for _, c := range j.records {
		if !c.expired(now) {
			cookies = append(cookies, c)
		}
	}
	j.mu.RUnlock()

	sort.Slice(cookies, func(a, b int) bool {
		return recordKey(cookies[a]) < recordKey(cookies[b])
	})

	return &Snapshot{
		Version:  SnapshotVersion,
		TenantID: tenantID,
		BaseURL:  j.base.String(),
		Cookies:  cookies,
		SavedAt:  now.UTC(),
	}
}

// Load replaces the jar content with snap. Expired cookies are skipped.
// It returns the number of cookies loaded.
func (j *Jar) Load(snap *Snapshot) int {
	j.Reset()
	if snap == nil {
		return 0
	}

	now := j.now()
	n := 0
	for _, c := range snap.Cookies {
		if c.expired(now) {
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		j.SetCookies(j.originFor(path), []*http.Cookie{c.toHTTP()})
		n++
	}
	return n
}

func (j *Jar) originFor(path string) *url.URL {
	return &url.URL{Scheme: j.base.Scheme, Host: j.base.Host, Path: path}
}
