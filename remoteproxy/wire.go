package remoteproxy

import "github.com/ddevcap/unshackle-core/session"

// request is the envelope every /api/remote/{tag}/* POST body extends.
// Only one of PreAuthenticatedSession, Cookies, or Credential should be
// set — the server tries them in that priority order.
type request struct {
	Query                  string            `json:"query,omitempty"`
	Title                  string            `json:"title,omitempty"`
	Season                 int               `json:"season,omitempty"`
	Episode                int               `json:"episode,omitempty"`
	Proxy                  string            `json:"proxy,omitempty"`
	NoProxy                bool              `json:"no_proxy,omitempty"`
	Cookies                string            `json:"cookies,omitempty"`
	Credential             *credentialWire   `json:"credential,omitempty"`
	PreAuthenticatedSession *session.Record  `json:"pre_authenticated_session,omitempty"`
	Extra                  map[string]any     `json:"extra,omitempty"`
}

type credentialWire struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// response is the envelope every /api/remote/{tag}/* handler returns.
type response struct {
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Session   *session.Record `json:"session,omitempty"`

	Results  []searchResultWire `json:"results,omitempty"`
	Titles   []titleWire        `json:"titles,omitempty"`
	Episodes []episodeTracksWire `json:"episodes,omitempty"`
	Video     []trackWire `json:"video,omitempty"`
	Audio     []trackWire `json:"audio,omitempty"`
	Subtitles []trackWire `json:"subtitles,omitempty"`
	Chapters  []chapterWire `json:"chapters,omitempty"`

	UnavailableEpisodes []unavailableEpisodeWire `json:"unavailable_episodes,omitempty"`
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
	ID       string   `json:"id"`
	Codec    string   `json:"codec"`
	Language string   `json:"language,omitempty"`
	Bitrate  int      `json:"bitrate,omitempty"` // kbps on the wire, *1000 locally
	Width    int      `json:"width,omitempty"`
	Height   int      `json:"height,omitempty"`
	FPS      float64  `json:"fps,omitempty"`
	Range    string   `json:"range,omitempty"`
	Channels float64  `json:"channels,omitempty"`
	Atmos    bool     `json:"atmos,omitempty"`
	Descriptive bool  `json:"descriptive,omitempty"`
	Forced   bool     `json:"forced,omitempty"`
	SDH      bool     `json:"sdh,omitempty"`
	CC       bool     `json:"cc,omitempty"`
	DRM      *drmWire `json:"drm,omitempty"`
}

type chapterWire struct {
	Timestamp float64 `json:"timestamp"`
	Name      string  `json:"name,omitempty"`
}
