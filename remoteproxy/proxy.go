// Package remoteproxy implements the Remote Service Proxy: a
// service.Service that delegates every operation to a Remote Service
// Server over HTTP instead of talking to a content origin directly. It
// owns two HTTP sessions — one carrying the API key for calls to the
// remote server, one rehydrated from the session the server hands back
// so the downloader can fetch manifests and segments directly.
package remoteproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/ddevcap/unshackle-core/client"
	"github.com/ddevcap/unshackle-core/service"
	"github.com/ddevcap/unshackle-core/session"
	"github.com/ddevcap/unshackle-core/sessioncache"
)

var explicitURISchemeRe = regexp.MustCompile(`^https?://`)

var retryDelays = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// Authenticator performs interactive authentication against the real
// service running locally and returns the resulting Session Record, used
// only when the server reports AUTH_REQUIRED/SESSION_EXPIRED.
type Authenticator interface {
	AuthenticateLocally(ctx context.Context, serviceTag, profile string) (*session.Record, error)
}

// ProxyResolver turns a short provider token ("nordvpn:ca1066") into a
// full proxy URI carrying credentials, resolved client-side so the
// credentials never have to live in the server's configuration.
type ProxyResolver interface {
	Resolve(ctx context.Context, token string, providers []string) (string, error)
}

// Proxy is one configured connection to a remote service tag on a remote
// server.
type Proxy struct {
	remoteURL  string
	apiKey     string
	serviceTag string
	descriptor service.Descriptor
	profile    string

	api *client.Facade // calls to the remote server itself
	dl  *client.Facade // session rehydrated for direct downloading

	cache         *sessioncache.Cache
	authenticator Authenticator
	resolver      ProxyResolver
	proxyProviders []string

	proxyParam string
	noProxy    bool
	credential *service.Credential
	cookies    string
}

// Config bundles the construction-time parameters for one Proxy.
type Config struct {
	RemoteURL      string
	APIKey         string
	ServiceTag     string
	Descriptor     service.Descriptor
	Profile        string
	Cache          *sessioncache.Cache
	Authenticator  Authenticator
	Resolver       ProxyResolver
	ProxyProviders []string
	ProxyParam     string
	NoProxy        bool
}

// New builds a Proxy, opening its two HTTP sessions.
func New(cfg Config) (*Proxy, error) {
	apiSession, err := client.NewSession(client.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("remoteproxy: building api session: %w", err)
	}
	apiSession.Header().Set("X-API-Key", cfg.APIKey)
	apiSession.Header().Set("Content-Type", "application/json")

	dlSession, err := client.NewSession(client.StreamConfig())
	if err != nil {
		return nil, fmt.Errorf("remoteproxy: building download session: %w", err)
	}

	return &Proxy{
		remoteURL:      trimTrailingSlash(cfg.RemoteURL),
		apiKey:         cfg.APIKey,
		serviceTag:     cfg.ServiceTag,
		descriptor:     cfg.Descriptor,
		profile:        orDefault(cfg.Profile, "default"),
		api:            client.NewFacade(apiSession, client.DefaultRetryConfig()),
		dl:             client.NewFacade(dlSession, client.DefaultRetryConfig()),
		cache:          cfg.Cache,
		authenticator:  cfg.Authenticator,
		resolver:       cfg.Resolver,
		proxyProviders: cfg.ProxyProviders,
		proxyParam:     cfg.ProxyParam,
		noProxy:        cfg.NoProxy,
	}, nil
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// resolveProxy resolves p.proxyParam to a full proxy URI via the
// configured ProxyResolver, unless it is already an explicit URI. On
// resolution failure the raw token is sent as-is, and the server rejects
// it with INVALID_PROXY.
func (p *Proxy) resolveProxy(ctx context.Context) string {
	if p.proxyParam == "" {
		return ""
	}
	if explicitURISchemeRe.MatchString(p.proxyParam) {
		return p.proxyParam
	}
	if p.resolver == nil {
		return p.proxyParam
	}
	resolved, err := p.resolver.Resolve(ctx, p.proxyParam, p.proxyProviders)
	if err != nil {
		return p.proxyParam
	}
	return resolved
}

func (p *Proxy) applyProxyParams(req *request) {
	if p.noProxy {
		req.NoProxy = true
		return
	}
	if resolved := p.resolveProxy(context.Background()); resolved != "" {
		req.Proxy = resolved
	}
}

// doRequest posts req to endpoint, handling the cached-session /
// credential-fallback / auth-escalation flow and retrying network
// failures with the fixed 2s/4s/8s backoff.
func (p *Proxy) doRequest(ctx context.Context, endpoint string, req request) (*response, error) {
	p.attachAuth(&req)

	resp, err := p.postWithRetry(ctx, endpoint, req, 0)
	if err != nil {
		return nil, err
	}

	switch resp.ErrorCode {
	case string(service.ErrSessionExpired):
		if p.cache != nil {
			_, _ = p.cache.Delete(p.remoteURL, p.serviceTag, p.profile)
		}
		resp, err = p.reauthenticateAndRetry(ctx, endpoint, req)
		if err != nil {
			return nil, err
		}
	case string(service.ErrAuthRequired):
		if req.PreAuthenticatedSession == nil {
			resp, err = p.reauthenticateAndRetry(ctx, endpoint, req)
			if err != nil {
				return nil, err
			}
		}
	}

	if resp.Session != nil {
		session.Deserialize(resp.Session, p.dl.Session())
	}
	return resp, nil
}

func (p *Proxy) reauthenticateAndRetry(ctx context.Context, endpoint string, req request) (*response, error) {
	rec, err := p.authenticateForRetry(ctx)
	if err != nil {
		return nil, err
	}
	req.PreAuthenticatedSession = rec
	req.Cookies = ""
	req.Credential = nil
	return p.postWithRetry(ctx, endpoint, req, 0)
}

func (p *Proxy) postWithRetry(ctx context.Context, endpoint string, req request, attempt int) (*response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("remoteproxy: encoding request: %w", err)
	}
	raw, err := p.postRaw(ctx, endpoint, body, attempt)
	if err != nil {
		return nil, err
	}
	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("remoteproxy: decoding response from %s: %w", endpoint, err)
	}
	return &out, nil
}

// postRaw posts a pre-encoded body, retrying network failures with the
// fixed 2s/4s/8s backoff and returning the raw response bytes.
func (p *Proxy) postRaw(ctx context.Context, endpoint string, body []byte, attempt int) ([]byte, error) {
	httpResp, err := p.api.Post(ctx, p.remoteURL+endpoint, nil, body)
	if err != nil {
		if attempt < len(retryDelays) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelays[attempt]):
			}
			return p.postRaw(ctx, endpoint, body, attempt+1)
		}
		return nil, &service.NetworkError{Op: "POST " + endpoint, Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("remoteproxy: reading response from %s: %w", endpoint, err)
	}
	return raw, nil
}

// Authenticate stores cookies/credentials to attach to the next request;
// the server performs the actual authentication.
func (p *Proxy) Authenticate(ctx context.Context, cookies []service.Cookie, cred *service.Credential) error {
	p.credential = cred
	if len(cookies) > 0 {
		raw := session.SerializeCookies(toHTTPCookies(cookies))
		encoded, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("remoteproxy: encoding cookies: %w", err)
		}
		p.cookies = string(encoded)
	}
	return nil
}

func toHTTPCookies(cookies []service.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path, Secure: c.Secure,
		})
	}
	return out
}

// Search performs a free-text lookup via the remote server.
func (p *Proxy) Search(ctx context.Context, query string) ([]service.SearchResult, error) {
	req := request{Query: query}
	p.applyProxyParams(&req)

	resp, err := p.doRequest(ctx, fmt.Sprintf("/api/remote/%s/search", p.serviceTag), req)
	if err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, &service.ServiceError{ServiceTag: p.serviceTag, Message: resp.Message}
	}

	out := make([]service.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, service.SearchResult{ID: r.ID, Title: r.Title, Description: r.Description, Label: r.Label, URL: r.URL})
	}
	return out, nil
}

// GetTitles resolves a title identifier via the remote server.
func (p *Proxy) GetTitles(ctx context.Context) ([]service.Title, error) {
	req := request{Title: p.descriptor.Tag}
	p.applyProxyParams(&req)

	resp, err := p.doRequest(ctx, fmt.Sprintf("/api/remote/%s/titles", p.serviceTag), req)
	if err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, &service.ServiceError{ServiceTag: p.serviceTag, Message: resp.Message}
	}

	out := make([]service.Title, 0, len(resp.Titles))
	for _, t := range resp.Titles {
		out = append(out, titleFromWire(t))
	}
	return out, nil
}

func titleFromWire(t titleWire) service.Title {
	title := service.Title{
		ID: t.ID, Name: t.Name, Year: t.Year, Language: t.Language,
		SeriesTitle: t.SeriesTitle, Season: t.Season, Number: t.Number,
		Artist: t.Artist, Album: t.Album, Track: t.Track, Disc: t.Disc,
	}
	switch t.Type {
	case "episode":
		title.TitleKind = service.KindEpisode
	case "song":
		title.TitleKind = service.KindSong
	default:
		title.TitleKind = service.KindMovie
	}
	return title
}

// GetTracks enumerates a title's tracks via the remote server. When the
// server's response is a multi-episode batch (the server resolved a whole
// season and returned wanted episodes together), the matching episode's
// tracks are picked out by season/number.
func (p *Proxy) GetTracks(ctx context.Context, title service.Title) (service.Tracks, error) {
	req := request{Title: p.descriptor.Tag}
	if title.TitleKind == service.KindEpisode {
		req.Season, req.Episode = title.Season, title.Number
	}
	p.applyProxyParams(&req)

	resp, err := p.doRequest(ctx, fmt.Sprintf("/api/remote/%s/tracks", p.serviceTag), req)
	if err != nil {
		return service.Tracks{}, err
	}
	if resp.Status != "success" {
		return service.Tracks{}, &service.ServiceError{ServiceTag: p.serviceTag, Message: resp.Message}
	}

	if len(resp.Episodes) > 0 {
		for _, ep := range resp.Episodes {
			if title.TitleKind == service.KindEpisode && ep.Title.Season == title.Season && ep.Title.Number == title.Number {
				return tracksFromWire(ep.Video, ep.Audio, ep.Subtitles), nil
			}
		}
		for _, unavail := range resp.UnavailableEpisodes {
			if unavail.Season == title.Season && unavail.Number == title.Number {
				return service.Tracks{}, &service.NotAvailableError{What: fmt.Sprintf("%dx%d: %s", unavail.Season, unavail.Number, unavail.Reason)}
			}
		}
		return service.Tracks{}, &service.NotAvailableError{What: fmt.Sprintf("%dx%d in remote response", title.Season, title.Number)}
	}

	return tracksFromWire(resp.Video, resp.Audio, resp.Subtitles), nil
}

func tracksFromWire(video, audio, subs []trackWire) service.Tracks {
	var tracks service.Tracks
	for _, v := range video {
		t := service.Track{
			TrackKind: service.TrackVideo, ID: v.ID, Codec: v.Codec, Language: v.Language,
			Width: v.Width, Height: v.Height, FPS: v.FPS, Bitrate: v.Bitrate * 1000,
			Range: service.Range(v.Range), DRM: drmFromWire(v.DRM),
		}
		tracks.Add(t)
	}
	for _, a := range audio {
		t := service.Track{
			TrackKind: service.TrackAudio, ID: a.ID, Codec: a.Codec, Language: a.Language,
			Bitrate: a.Bitrate * 1000, Channels: a.Channels, Atmos: a.Atmos,
			Descriptive: a.Descriptive, DRM: drmFromWire(a.DRM),
		}
		tracks.Add(t)
	}
	for _, s := range subs {
		t := service.Track{
			TrackKind: service.TrackSubtitle, ID: s.ID, Codec: s.Codec, Language: s.Language,
			Forced: s.Forced, SDH: s.SDH, CC: s.CC,
		}
		tracks.Add(t)
	}
	return tracks
}

func drmFromWire(d *drmWire) *service.DRM {
	if d == nil {
		return nil
	}
	return &service.DRM{Scheme: d.Scheme, LicenseURL: d.LicenseURL, LicenseHeaders: d.LicenseHeaders, InitData: d.InitData}
}

// GetChapters returns a title's chapters via the remote server. A failed
// lookup degrades to an empty list rather than an error, matching the
// adapter contract that chapter support is optional.
func (p *Proxy) GetChapters(ctx context.Context, title service.Title) ([]service.Chapter, error) {
	req := request{Title: p.descriptor.Tag}
	if title.TitleKind == service.KindEpisode {
		req.Season, req.Episode = title.Season, title.Number
	}
	p.applyProxyParams(&req)

	resp, err := p.doRequest(ctx, fmt.Sprintf("/api/remote/%s/chapters", p.serviceTag), req)
	if err != nil || resp.Status != "success" {
		return nil, nil
	}

	out := make([]service.Chapter, 0, len(resp.Chapters))
	for _, c := range resp.Chapters {
		out = append(out, service.Chapter{Timestamp: c.Timestamp, Name: c.Name})
	}
	return out, nil
}

// Session exposes the rehydrated download session's cookies/headers.
func (p *Proxy) Session() *service.SessionAccessor {
	cookies := p.dl.Session().AllCookies()
	out := &service.SessionAccessor{Headers: map[string]string{}}
	for _, c := range cookies {
		out.Cookies = append(out.Cookies, service.Cookie{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path, Secure: c.Secure,
		})
	}
	for name, values := range p.dl.Session().Header() {
		if len(values) > 0 {
			out.Headers[name] = values[0]
		}
	}
	return out
}
