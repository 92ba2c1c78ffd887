// Package handler implements one gin handler per /api/remote/* and
// /api/download/* endpoint, ported from the source's remote_handlers.py.
// Every handler is stateless: it resolves a fresh adapter per call, never
// persists sessions, credentials, cookies, or DRM keys server-side.
package handler

import (
	"encoding/base64"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/ddevcap/unshackle-core/service"
	"github.com/ddevcap/unshackle-core/session"
)

// requestBody is the union of every field any /api/remote/{tag}/* endpoint
// accepts; individual handlers read only the fields relevant to them.
type requestBody struct {
	Query   string `json:"query"`
	Title   string `json:"title"`
	TitleID string `json:"title_id"`
	URL     string `json:"url"`

	Wanted  []string `json:"wanted,omitempty"`
	Season  int      `json:"season,omitempty"`
	Episode int      `json:"episode,omitempty"`

	Profile string `json:"profile,omitempty"`
	Proxy   string `json:"proxy,omitempty"`
	NoProxy bool   `json:"no_proxy,omitempty"`

	Cookies                 string          `json:"cookies,omitempty"`
	Credential              *credentialBody `json:"credential,omitempty"`
	PreAuthenticatedSession *session.Record `json:"pre_authenticated_session,omitempty"`

	TrackID    string `json:"track_id,omitempty"`
	Challenge  string `json:"challenge,omitempty"` // base64
	PSSH       string `json:"pssh,omitempty"`      // base64
	CDM        string `json:"cdm,omitempty"`
	LicenseURL string `json:"license_url,omitempty"`
}

type credentialBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// identifier returns whichever of title/title_id/url identity field was
// supplied, accepted interchangeably per the external interface.
func (b requestBody) identifier() string {
	switch {
	case b.Title != "":
		return b.Title
	case b.TitleID != "":
		return b.TitleID
	default:
		return b.URL
	}
}

type response struct {
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Session   *session.Record `json:"session,omitempty"`
	Geofence  []string        `json:"geofence,omitempty"`

	Results  []searchResultWire  `json:"results,omitempty"`
	Titles   []titleWire         `json:"titles,omitempty"`
	Episodes []episodeTracksWire `json:"episodes,omitempty"`
	Video     []trackWire `json:"video,omitempty"`
	Audio     []trackWire `json:"audio,omitempty"`
	Subtitles []trackWire `json:"subtitles,omitempty"`
	Chapters  []chapterWire `json:"chapters,omitempty"`

	UnavailableEpisodes []unavailableEpisodeWire `json:"unavailable_episodes,omitempty"`

	License string           `json:"license,omitempty"`
	Keys    []decryptKeyWire `json:"keys,omitempty"`
	CDMUsed string           `json:"cdm_used,omitempty"`
}

type searchResultWire struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Label       string `json:"label,omitempty"`
	URL         string `json:"url,omitempty"`
}

type titleWire struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Year        int    `json:"year,omitempty"`
	Language    string `json:"language,omitempty"`
	SeriesTitle string `json:"series_title,omitempty"`
	Season      int    `json:"season,omitempty"`
	Number      int    `json:"number,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	Track       int    `json:"track,omitempty"`
	Disc        int    `json:"disc,omitempty"`
}

type episodeTitleWire struct {
	Season int `json:"season"`
	Number int `json:"number"`
}

type episodeTracksWire struct {
	Title     episodeTitleWire `json:"title"`
	Video     []trackWire      `json:"video,omitempty"`
	Audio     []trackWire      `json:"audio,omitempty"`
	Subtitles []trackWire      `json:"subtitles,omitempty"`
}

type unavailableEpisodeWire struct {
	Season int    `json:"season"`
	Number int    `json:"number"`
	Reason string `json:"reason,omitempty"`
}

type drmWire struct {
	Scheme         string            `json:"scheme"`
	LicenseURL     string            `json:"license_url,omitempty"`
	LicenseHeaders map[string]string `json:"license_headers,omitempty"`
	InitData       string            `json:"init_data,omitempty"`
}

type trackWire struct {
	ID          string   `json:"id"`
	Codec       string   `json:"codec"`
	Language    string   `json:"language,omitempty"`
	Bitrate     int      `json:"bitrate,omitempty"` // kbps on the wire
	Width       int      `json:"width,omitempty"`
	Height      int      `json:"height,omitempty"`
	FPS         float64  `json:"fps,omitempty"`
	Range       string   `json:"range,omitempty"`
	Channels    float64  `json:"channels,omitempty"`
	Atmos       bool     `json:"atmos,omitempty"`
	Descriptive bool     `json:"descriptive,omitempty"`
	Forced      bool     `json:"forced,omitempty"`
	SDH         bool     `json:"sdh,omitempty"`
	CC          bool     `json:"cc,omitempty"`
	DRM         *drmWire `json:"drm,omitempty"`
}

type chapterWire struct {
	Timestamp float64 `json:"timestamp"`
	Name      string  `json:"name,omitempty"`
}

type decryptKeyWire struct {
	KID  string `json:"kid"`
	Key  string `json:"key"`
	Type string `json:"type,omitempty"`
}

func titleToWire(t service.Title) titleWire {
	return titleWire{
		Type: t.TitleKind.String(), ID: t.ID, Name: t.Name, Year: t.Year, Language: t.Language,
		SeriesTitle: t.SeriesTitle, Season: t.Season, Number: t.Number,
		Artist: t.Artist, Album: t.Album, Track: t.Track, Disc: t.Disc,
	}
}

func trackToWire(t service.Track) trackWire {
	w := trackWire{
		ID: t.ID, Codec: t.Codec, Language: t.Language, Bitrate: t.Bitrate / 1000,
		Width: t.Width, Height: t.Height, FPS: t.FPS, Range: string(t.Range),
		Channels: t.Channels, Atmos: t.Atmos, Descriptive: t.Descriptive,
		Forced: t.Forced, SDH: t.SDH, CC: t.CC,
	}
	if t.DRM != nil {
		w.DRM = &drmWire{Scheme: t.DRM.Scheme, LicenseURL: t.DRM.LicenseURL, LicenseHeaders: t.DRM.LicenseHeaders, InitData: t.DRM.InitData}
	}
	return w
}

func tracksToWire(t service.Tracks) (video, audio, subs []trackWire) {
	for _, v := range t.Video {
		video = append(video, trackToWire(v))
	}
	for _, a := range t.Audio {
		audio = append(audio, trackToWire(a))
	}
	for _, s := range t.Subtitles {
		subs = append(subs, trackToWire(s))
	}
	return
}

func chaptersToWire(chapters []service.Chapter) []chapterWire {
	out := make([]chapterWire, 0, len(chapters))
	for _, c := range chapters {
		out = append(out, chapterWire{Timestamp: c.Timestamp, Name: c.Name})
	}
	return out
}

func searchResultsToWire(results []service.SearchResult) []searchResultWire {
	out := make([]searchResultWire, 0, len(results))
	for _, r := range results {
		out = append(out, searchResultWire{ID: r.ID, Title: r.Title, Description: r.Description, Label: r.Label, URL: r.URL})
	}
	return out
}

var explicitProxyURI = regexp.MustCompile(`^https?://`)

// validateProxy enforces the external interface's proxy contract: a
// client→server proxy value MUST be a full http(s) URI.
func validateProxy(proxy string, noProxy bool) bool {
	if proxy == "" || noProxy {
		return true
	}
	return explicitProxyURI.MatchString(proxy)
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, response{Status: "error", ErrorCode: code, Message: message})
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
