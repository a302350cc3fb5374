package transport

import (
	"net/http"
	"net/url"
)

// Descriptor is a replayable outbound call. Body is kept as bytes so the same
// descriptor can be sent more than once.
type Descriptor struct {
	ID      string
	Method  string
	Path    string
	Query   url.Values
	Header  http.Header
	Body    []byte
	Retried bool
}

// Clone returns a deep copy of d.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	out := *d
	if d.Query != nil {
		out.Query = make(url.Values, len(d.Query))
		for k, v := range d.Query {
			out.Query[k] = append([]string(nil), v...)
		}
	}
	if d.Header != nil {
		out.Header = d.Header.Clone()
	}
	if d.Body != nil {
		out.Body = append([]byte(nil), d.Body...)
	}
	return &out
}

// AsRetry returns a copy of d marked as replayed after renewal.
func (d *Descriptor) AsRetry() *Descriptor {
	out := d.Clone()
	if out != nil {
		out.Retried = true
	}
	return out
}

// Response is a server reply that reached the client with a non-error status.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}
