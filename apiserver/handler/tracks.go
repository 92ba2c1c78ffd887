package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ddevcap/unshackle-core/service"
)

// Tracks handles POST /api/remote/:service/tracks.
func (d *Deps) Tracks(c *gin.Context) {
	var body requestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "", "invalid request body")
		return
	}
	if body.identifier() == "" {
		writeError(c, http.StatusBadRequest, "", "missing required parameter: title_id")
		return
	}

	svcCtx, ok := buildServiceContext(c, body)
	if !ok {
		return
	}
	svc, ok := d.loadService(c, svcCtx)
	if !ok {
		return
	}
	if !authenticate(c, svc, body) {
		return
	}

	titles, err := svc.GetTitles(c.Request.Context())
	if err != nil {
		translateError(c, c.Param("service"), err)
		return
	}

	selected := selectTitles(titles, body)
	if len(selected) == 0 {
		writeError(c, http.StatusNotFound, "", "no episodes found matching wanted criteria")
		return
	}

	resp := response{Status: "success", Session: sessionRecord(svc, c.Param("service"), body.Profile)}

	if len(selected) == 1 && selected[0].TitleKind != service.KindEpisode {
		tracks, err := svc.GetTracks(c.Request.Context(), selected[0])
		if err != nil {
			translateError(c, c.Param("service"), err)
			return
		}
		resp.Video, resp.Audio, resp.Subtitles = tracksToWire(tracks)
		c.JSON(http.StatusOK, resp)
		return
	}

	for _, t := range selected {
		tracks, err := svc.GetTracks(c.Request.Context(), t)
		if err != nil {
			resp.UnavailableEpisodes = append(resp.UnavailableEpisodes, unavailableEpisodeWire{
				Season: t.Season, Number: t.Number, Reason: err.Error(),
			})
			continue
		}
		video, audio, subs := tracksToWire(tracks)
		resp.Episodes = append(resp.Episodes, episodeTracksWire{
			Title:     episodeTitleWire{Season: t.Season, Number: t.Number},
			Video:     video,
			Audio:     audio,
			Subtitles: subs,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// selectTitles filters titles by the wanted token list or season/episode
// params. Each token is either a single "{season}x{number}" episode or an
// inclusive "{season}x{number}-{season}x{number}" range within one season
// (the full SeasonRange grammar — multi-season ranges, open-ended ranges,
// comma lists of ranges — is an open question; see DESIGN.md). With
// neither supplied, every title is selected (the single-movie/song case,
// or "all episodes").
func selectTitles(titles []service.Title, body requestBody) []service.Title {
	if len(body.Wanted) == 0 && body.Season == 0 && body.Episode == 0 {
		return titles
	}

	tokens := append([]string(nil), body.Wanted...)
	if body.Season != 0 || body.Episode != 0 {
		tokens = append(tokens, fmt.Sprintf("%dx%d", body.Season, body.Episode))
	}
	matchers := make([]func(season, number int) bool, 0, len(tokens))
	for _, tok := range tokens {
		matchers = append(matchers, wantedMatcher(tok))
	}

	var out []service.Title
	for _, t := range titles {
		for _, m := range matchers {
			if m(t.Season, t.Number) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

type seasonEpisode struct{ season, episode int }

// parseSxE parses a single "{season}x{number}" token.
func parseSxE(tok string) (seasonEpisode, bool) {
	var se seasonEpisode
	n, err := fmt.Sscanf(tok, "%dx%d", &se.season, &se.episode)
	if err != nil || n != 2 {
		return seasonEpisode{}, false
	}
	return se, true
}

// parseWantedRange parses an inclusive "{season}x{number}-{season}x{number}"
// range token, requiring both ends to name the same season.
func parseWantedRange(tok string) (lo, hi seasonEpisode, ok bool) {
	parts := strings.SplitN(tok, "-", 2)
	if len(parts) != 2 {
		return seasonEpisode{}, seasonEpisode{}, false
	}
	lo, ok1 := parseSxE(parts[0])
	hi, ok2 := parseSxE(parts[1])
	if !ok1 || !ok2 || lo.season != hi.season {
		return seasonEpisode{}, seasonEpisode{}, false
	}
	return lo, hi, true
}

// wantedMatcher compiles one wanted token into a (season, episode)
// predicate, trying the range form before the single-episode form.
func wantedMatcher(tok string) func(season, number int) bool {
	if lo, hi, ok := parseWantedRange(tok); ok {
		return func(season, number int) bool {
			return season == lo.season && number >= lo.episode && number <= hi.episode
		}
	}
	if se, ok := parseSxE(tok); ok {
		return func(season, number int) bool { return season == se.season && number == se.episode }
	}
	return func(int, int) bool { return false }
}
