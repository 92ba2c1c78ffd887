package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ddevcap/unshackle-core/service"
)

// License handles POST /api/remote/:service/license, the client-CDM path:
// the client owns its CDM and issues its own challenge; the server merely
// relays that challenge to the track's license endpoint using its own
// session and network location, which is what satisfies any geofence the
// license server itself enforces.
func (d *Deps) License(c *gin.Context) {
	var body requestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "", "invalid request body")
		return
	}
	if body.identifier() == "" || body.TrackID == "" {
		writeError(c, http.StatusBadRequest, "", "missing required parameter: title_id or track_id")
		return
	}
	challenge, err := decodeBase64(body.Challenge)
	if err != nil {
		writeError(c, http.StatusBadRequest, "", "challenge must be base64-encoded")
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

	track, ok := d.findTrack(c, svc, body)
	if !ok {
		return
	}
	if track.DRM == nil || track.DRM.LicenseURL == "" {
		writeError(c, http.StatusNotFound, "", "track is not protected or carries no license URL")
		return
	}

	headers := map[string]string{"Content-Type": "application/octet-stream"}
	for k, v := range track.DRM.LicenseHeaders {
		headers[k] = v
	}
	resp, err := d.Outbound.Post(c.Request.Context(), track.DRM.LicenseURL, headers, challenge)
	if err != nil {
		translateError(c, c.Param("service"), err)
		return
	}
	defer resp.Body.Close()

	license, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "", "failed reading license response")
		return
	}

	c.JSON(http.StatusOK, response{
		Status:  "success",
		License: encodeBase64(license),
		Session: sessionRecord(svc, c.Param("service"), body.Profile),
	})
}

// findTrack re-resolves the title and locates the requested track among
// video/audio/subtitle tracks. License always takes the license URL from
// the track found here; Decrypt does so only when the request carries no
// license_url.
func (d *Deps) findTrack(c *gin.Context, svc service.Service, body requestBody) (service.Track, bool) {
	titles, err := svc.GetTitles(c.Request.Context())
	if err != nil {
		translateError(c, c.Param("service"), err)
		return service.Track{}, false
	}
	if len(titles) == 0 {
		writeError(c, http.StatusNotFound, "", "title not found")
		return service.Track{}, false
	}

	tracks, err := svc.GetTracks(c.Request.Context(), titles[0])
	if err != nil {
		translateError(c, c.Param("service"), err)
		return service.Track{}, false
	}

	all := append(append(append([]service.Track{}, tracks.Video...), tracks.Audio...), tracks.Subtitles...)
	for _, t := range all {
		if t.ID == body.TrackID {
			return t, true
		}
	}
	writeError(c, http.StatusNotFound, "", "track not found")
	return service.Track{}, false
}
