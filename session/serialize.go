package session

import (
	"net/http"
	"strings"
	"time"
)

// proxyAuthHeader is the header name excluded from serialization,
// compared case-insensitively.
const proxyAuthHeader = "Proxy-Authorization"

// Store is the minimal surface a live HTTP session must expose to be
// serialized into, or rehydrated from, a Record. client.Session
// implements this.
type Store interface {
	AllCookies() []*http.Cookie
	SetCookie(c *http.Cookie)
	Header() http.Header
}

// Serialize copies a live session's cookies and headers (excluding
// Proxy-Authorization) into a portable Record. Proxies are never
// exported — the receiver is expected to use its own.
func Serialize(store Store, serviceTag, profile string) *Record {
	r := NewRecord(serviceTag, profile)
	for _, c := range store.AllCookies() {
		r.Cookies[c.Name] = Cookie{
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Secure:  c.Secure,
			Expires: cookieExpiry(c),
		}
	}
	for name, values := range store.Header() {
		if strings.EqualFold(name, proxyAuthHeader) {
			continue
		}
		if len(values) > 0 {
			r.Headers[name] = values[0]
		}
	}
	r.Authenticated = r.IsValid()
	return r
}

func cookieExpiry(c *http.Cookie) int64 {
	if c.Expires.IsZero() {
		return 0
	}
	return c.Expires.Unix()
}

// Deserialize applies a Record's cookies and headers onto target. Each
// recorded cookie is set via target's cookie store with the recorded
// attributes; an empty path defaults to "/" and a missing expiry is
// treated as a session cookie. Every recorded header overwrites target's
// header map entry of the same name.
func Deserialize(r *Record, target Store) {
	if r == nil {
		return
	}
	for name, c := range r.Cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		cookie := &http.Cookie{
			Name:   name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   path,
			Secure: c.Secure,
		}
		if c.Expires != 0 {
			cookie.Expires = time.Unix(c.Expires, 0)
		}
		target.SetCookie(cookie)
	}
	for name, value := range r.Headers {
		target.Header().Set(name, value)
	}
}

// SerializeCookies serializes a bare cookie list (used when a client
// wants to pass cookie-file contents to a server without a full
// session).
func SerializeCookies(cookies []*http.Cookie) map[string]Cookie {
	out := make(map[string]Cookie, len(cookies))
	for _, c := range cookies {
		out[c.Name] = Cookie{
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Secure:  c.Secure,
			Expires: cookieExpiry(c),
		}
	}
	return out
}

// DeserializeCookies turns a serialized cookie map back into *http.Cookie
// values, ready to be applied to any cookie store.
func DeserializeCookies(data map[string]Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(data))
	for name, c := range data {
		path := c.Path
		if path == "" {
			path = "/"
		}
		cookie := &http.Cookie{
			Name:   name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   path,
			Secure: c.Secure,
		}
		if c.Expires != 0 {
			cookie.Expires = time.Unix(c.Expires, 0)
		}
		out = append(out, cookie)
	}
	return out
}
