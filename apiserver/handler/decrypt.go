package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ddevcap/unshackle-core/apiserver/middleware"
	"github.com/ddevcap/unshackle-core/service"
)

// ServerCDM drives a server-held CDM session end to end: given a PSSH and
// a CDM name, it produces the license challenge, exchanges it with
// licenseURL, and returns the derived content keys. No Go CDM
// implementation exists in the pack or the wider ecosystem (device
// provisioning is proprietary), so this is an injection point a deployment
// wires to its own CDM binding; a server started without one answers every
// decrypt request with CDMNotAllowedError.
type ServerCDM interface {
	Decrypt(ctx context.Context, cdmName string, pssh []byte, licenseURL string, headers map[string]string) ([]DecryptedKey, error)
}

// DecryptedKey is one content key recovered from a server-CDM session.
type DecryptedKey struct {
	KID  string
	Key  string
	Type string
}

// Decrypt handles POST /api/remote/:service/decrypt, the premium
// server-CDM path. Guarded by API-key tier: non-premium keys are rejected
// outright; premium keys are further restricted to their allowed_cdms set.
func (d *Deps) Decrypt(c *gin.Context) {
	info := middleware.KeyInfo(c)
	if info.Tier != "premium" {
		writeError(c, http.StatusForbidden, string(service.ErrPremiumReqd), "this operation requires a premium API key")
		return
	}

	var body requestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "", "invalid request body")
		return
	}
	if body.identifier() == "" || body.TrackID == "" || body.PSSH == "" {
		writeError(c, http.StatusBadRequest, "", "missing required parameter: title_id, track_id, or pssh")
		return
	}

	cdmName := body.CDM
	if cdmName == "" {
		cdmName = info.DefaultCDM
	}
	if !info.AllowsCDM(cdmName) {
		writeError(c, http.StatusForbidden, string(service.ErrCDMNotAllowed), "api key is not authorized to use cdm "+cdmName)
		return
	}

	if d.CDM == nil {
		writeError(c, http.StatusForbidden, string(service.ErrCDMNotAllowed), "no server-held cdm is configured")
		return
	}

	pssh, err := decodeBase64(body.PSSH)
	if err != nil {
		writeError(c, http.StatusBadRequest, "", "pssh must be base64-encoded")
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

	licenseURL := body.LicenseURL
	var headers map[string]string
	if licenseURL == "" {
		track, ok := d.findTrack(c, svc, body)
		if !ok {
			return
		}
		if track.DRM == nil {
			writeError(c, http.StatusNotFound, "", "track is not protected")
			return
		}
		licenseURL = track.DRM.LicenseURL
		headers = track.DRM.LicenseHeaders
	}

	decrypted, err := d.CDM.Decrypt(c.Request.Context(), cdmName, pssh, licenseURL, headers)
	if err != nil {
		translateError(c, c.Param("service"), err)
		return
	}

	keys := make([]decryptKeyWire, 0, len(decrypted))
	for _, k := range decrypted {
		keys = append(keys, decryptKeyWire{KID: k.KID, Key: k.Key, Type: k.Type})
	}

	c.JSON(http.StatusOK, response{
		Status:  "success",
		Keys:    keys,
		CDMUsed: cdmName,
		Session: sessionRecord(svc, c.Param("service"), body.Profile),
	})
}
