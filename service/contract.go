package service

import (
	"context"
	"net/http"
)

// ErrorCode is the wire-level error_code value carried in an error
// response body, matching the taxonomy in the external interface.
type ErrorCode string

const (
	ErrSessionExpired ErrorCode = "SESSION_EXPIRED"
	ErrAuthRequired   ErrorCode = "AUTH_REQUIRED"
	ErrInvalidProxy   ErrorCode = "INVALID_PROXY"
	ErrNoAPIKey       ErrorCode = "NO_API_KEY"
	ErrPremiumReqd    ErrorCode = "PREMIUM_REQUIRED"
	ErrCDMNotAllowed  ErrorCode = "CDM_NOT_ALLOWED"
)

// Context is the framework-injected construction context passed to every
// adapter constructor. Adapters read only the fields they declare a need
// for; nothing enforces that at compile time, matching the source's
// duck-typed click.Context equivalent.
type Context struct {
	Config         map[string]any
	Proxy          string
	NoProxy        bool
	Profile        string
	ProxyProviders []string
}

// Service is the capability interface every adapter — local or remote —
// implements. The registry returns this interface; callers never branch
// on which concrete variant they were handed.
type Service interface {
	// Authenticate prepares the service for authenticated operations
	// using the given cookies and/or credential. At least one must be
	// usable or AuthRequiredError is returned.
	Authenticate(ctx context.Context, cookies []Cookie, cred *Credential) error

	// Search performs a free-text lookup and returns candidate results.
	// Returns NotAvailableError if the adapter doesn't support search.
	Search(ctx context.Context, query string) ([]SearchResult, error)

	// GetTitles resolves the constructor-supplied identifier into an
	// ordered, finite list of titles (a single Movie, or a Series of
	// Episodes).
	GetTitles(ctx context.Context) ([]Title, error)

	// GetTracks enumerates every video, audio, and subtitle track for
	// one title.
	GetTracks(ctx context.Context, title Title) (Tracks, error)

	// GetChapters returns the ordered chapter list for one title. An
	// adapter that doesn't support chapters returns an empty list, not
	// an error.
	GetChapters(ctx context.Context, title Title) ([]Chapter, error)

	// Session exposes the adapter's current session state so it can be
	// serialized after a call completes.
	Session() *SessionAccessor
}

// Downloader-facing hooks a Service may additionally implement. Kept as
// a separate interface since not every adapter needs post-processing.
type PostProcessor interface {
	// OnSegmentDownloaded runs in segment order, allowing in-place
	// decryption or decompression without producer/consumer shuffling.
	OnSegmentDownloaded(ctx context.Context, track Track, segmentPath string) error
	// OnTrackDownloaded runs once a track's segments are all assembled,
	// e.g. to remux.
	OnTrackDownloaded(ctx context.Context, track Track) error
}

// Cookie mirrors the subset of http.Cookie fields a Session Record
// carries; kept independent of net/http so session can be imported
// without it.
type Cookie struct {
	Name    string
	Value   string
	Domain  string
	Path    string
	Secure  bool
	Expires int64 // unix seconds, 0 = session cookie
}

// SessionAccessor is the minimal view of an adapter's live HTTP session
// that the serializer needs: its cookies and headers.
type SessionAccessor struct {
	Cookies []Cookie
	Headers map[string]string
}

// ParseCookieHeader parses a raw "Cookie:" header value (as supplied in a
// request body or a local cookie-jar file) into the Cookie list an
// adapter's Authenticate expects. Reuses net/http's cookie grammar via a
// throwaway request rather than hand-rolling the parse.
func ParseCookieHeader(raw string) []Cookie {
	if raw == "" {
		return nil
	}
	req := &http.Request{Header: http.Header{"Cookie": []string{raw}}}
	var out []Cookie
	for _, c := range req.Cookies() {
		out = append(out, Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}
