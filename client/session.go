package client

import (
	"encoding/base64"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// cookieJar is a minimal, enumerable cookie store. The standard library's
// net/http/cookiejar deliberately hides its contents behind Cookies(u),
// which is useless for session serialization — we need every cookie back
// out regardless of which URL it was set against.
type cookieJar struct {
	mu      sync.RWMutex
	cookies map[string]*http.Cookie // keyed by domain+"\x00"+name
}

func newCookieJar() *cookieJar {
	return &cookieJar{cookies: make(map[string]*http.Cookie)}
}

func jarKey(domain, name string) string {
	return strings.ToLower(strings.TrimPrefix(domain, ".")) + "\x00" + name
}

func (j *cookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		domain := c.Domain
		if domain == "" {
			domain = u.Hostname()
		}
		stored := *c
		stored.Domain = domain
		j.cookies[jarKey(domain, c.Name)] = &stored
	}
}

func (j *cookieJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	host := u.Hostname()
	var out []*http.Cookie
	for _, c := range j.cookies {
		if !strings.HasSuffix(host, strings.ToLower(strings.TrimPrefix(c.Domain, "."))) {
			continue
		}
		if !c.Expires.IsZero() && time.Now().After(c.Expires) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (j *cookieJar) all() []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]*http.Cookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		out = append(out, c)
	}
	return out
}

func (j *cookieJar) set(c *http.Cookie) {
	j.SetCookies(&url.URL{Host: c.Domain}, []*http.Cookie{c})
}

// Session is one named HTTP client: a cookie jar, a header set applied to
// every request, and a transport tuned per Config. It implements
// session.Store so a live Session can be serialized into a Session Record.
type Session struct {
	http    *http.Client
	jar     *cookieJar
	headers http.Header
	proxy   string
}

// NewSession builds a Session from cfg. A proxy carrying userinfo is turned
// into a Proxy-Authorization header, matching how every backend folds
// credentials into the basic-auth header rather than relying on the
// transport to do it silently.
func NewSession(cfg Config) (*Session, error) {
	jar := newCookieJar()

	headers := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		if proxyURL.User != nil {
			if pass, ok := proxyURL.User.Password(); ok {
				token := base64.StdEncoding.EncodeToString(
					[]byte(proxyURL.User.Username() + ":" + pass))
				headers.Set("Proxy-Authorization", "Basic "+token)
			}
		}
	}

	return &Session{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
			Jar:       jar,
		},
		jar:     jar,
		headers: headers,
		proxy:   cfg.Proxy,
	}, nil
}

// Header returns the header set applied to every outgoing request. Callers
// may mutate it in place.
func (s *Session) Header() http.Header { return s.headers }

// Proxy returns the proxy URI this session was built with, if any.
func (s *Session) Proxy() string { return s.proxy }

// AllCookies returns every cookie currently held in the jar, needed for
// session serialization since a live request's cookie jar is otherwise
// scoped to a single URL at a time.
func (s *Session) AllCookies() []*http.Cookie {
	return s.jar.all()
}

// SetCookie installs a single cookie into the jar.
func (s *Session) SetCookie(c *http.Cookie) {
	s.jar.set(c)
}

// Close releases any idle pooled connections. The Session itself stays
// usable afterward; Close just stops it from holding sockets open.
func (s *Session) Close() {
	s.http.CloseIdleConnections()
}

// Do executes req through the session's transport and default headers,
// without any retry wrapping; Facade.Do applies the standard retry policy
// on top of this.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	for name, values := range s.headers {
		for _, v := range values {
			if req.Header.Get(name) == "" {
				req.Header.Add(name, v)
			}
		}
	}
	return s.http.Do(req)
}
