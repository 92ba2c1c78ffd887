package remoteproxy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ddevcap/unshackle-core/service"
	"github.com/ddevcap/unshackle-core/session"
)

// licenseRequest extends request with the license-specific fields; kept
// separate from request since only the license/decrypt endpoints need
// them and every other endpoint would otherwise carry empty challenge/pssh
// fields on the wire.
type licenseRequest struct {
	request
	TrackID   string `json:"track_id"`
	Challenge string `json:"challenge,omitempty"`
	PSSH      string `json:"pssh,omitempty"`
	CDM       string `json:"cdm,omitempty"`
	LicenseURL string `json:"license_url,omitempty"`
}

type licenseResponse struct {
	response
	License string `json:"license,omitempty"`
}

// GetLicense forwards a CDM license challenge through the remote server's
// pre-authenticated session — the server never needs its own CDM for this
// path, it only proxies the license request to the origin.
func (p *Proxy) GetLicense(ctx context.Context, title service.Title, trackID string, challenge []byte) ([]byte, error) {
	req := licenseRequest{
		request:   request{Title: p.descriptor.Tag},
		TrackID:   trackID,
		Challenge: base64.StdEncoding.EncodeToString(challenge),
	}
	p.applyProxyParams(&req.request)

	resp, err := p.doLicenseRequest(ctx, fmt.Sprintf("/api/remote/%s/license", p.serviceTag), req)
	if err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, &service.ServiceError{ServiceTag: p.serviceTag, Message: resp.Message}
	}

	license, err := base64.StdEncoding.DecodeString(resp.License)
	if err != nil {
		return nil, fmt.Errorf("remoteproxy: decoding license response: %w", err)
	}
	return license, nil
}

type decryptKeyWire struct {
	KID  string `json:"kid"`
	Key  string `json:"key"`
	Type string `json:"type,omitempty"`
}

type decryptResponse struct {
	response
	Keys []decryptKeyWire `json:"keys,omitempty"`
}

// DecryptKey is one content key returned by the server's CDM.
type DecryptKey struct {
	KID, Key, Type string
}

// attachAuth fills in exactly one of pre_authenticated_session, cookies,
// or credential, in that priority order — shared by every endpoint.
func (p *Proxy) attachAuth(req *request) {
	if p.cache == nil {
		return
	}
	if rec, ok := p.cache.Get(p.remoteURL, p.serviceTag, p.profile); ok {
		req.PreAuthenticatedSession = rec
	} else if p.cookies != "" {
		req.Cookies = p.cookies
	} else if p.credential != nil {
		req.Credential = &credentialWire{Username: p.credential.Username, Password: p.credential.Password}
	}
}

// doLicenseRequest posts a license challenge, handling the same
// session-expiry/auth-required escalation as doRequest.
func (p *Proxy) doLicenseRequest(ctx context.Context, endpoint string, req licenseRequest) (*licenseResponse, error) {
	p.attachAuth(&req.request)

	raw, err := p.postEncoded(ctx, endpoint, &req)
	if err != nil {
		return nil, err
	}

	var out licenseResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("remoteproxy: decoding license response: %w", err)
	}

	if out.ErrorCode == string(service.ErrSessionExpired) || (out.ErrorCode == string(service.ErrAuthRequired) && req.PreAuthenticatedSession == nil) {
		if out.ErrorCode == string(service.ErrSessionExpired) && p.cache != nil {
			_, _ = p.cache.Delete(p.remoteURL, p.serviceTag, p.profile)
		}
		rec, authErr := p.authenticateForRetry(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req.PreAuthenticatedSession, req.Cookies, req.Credential = rec, "", nil
		raw, err = p.postEncoded(ctx, endpoint, &req)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("remoteproxy: decoding license response: %w", err)
		}
	}

	if out.Session != nil {
		session.Deserialize(out.Session, p.dl.Session())
	}
	return &out, nil
}

// doDecryptRequest mirrors doLicenseRequest for the server-CDM decrypt
// endpoint.
func (p *Proxy) doDecryptRequest(ctx context.Context, endpoint string, req licenseRequest) (*decryptResponse, error) {
	p.attachAuth(&req.request)

	raw, err := p.postEncoded(ctx, endpoint, &req)
	if err != nil {
		return nil, err
	}

	var out decryptResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("remoteproxy: decoding decrypt response: %w", err)
	}

	if out.ErrorCode == string(service.ErrSessionExpired) || (out.ErrorCode == string(service.ErrAuthRequired) && req.PreAuthenticatedSession == nil) {
		if out.ErrorCode == string(service.ErrSessionExpired) && p.cache != nil {
			_, _ = p.cache.Delete(p.remoteURL, p.serviceTag, p.profile)
		}
		rec, authErr := p.authenticateForRetry(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req.PreAuthenticatedSession, req.Cookies, req.Credential = rec, "", nil
		raw, err = p.postEncoded(ctx, endpoint, &req)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("remoteproxy: decoding decrypt response: %w", err)
		}
	}

	if out.Session != nil {
		session.Deserialize(out.Session, p.dl.Session())
	}
	return &out, nil
}

func (p *Proxy) authenticateForRetry(ctx context.Context) (*session.Record, error) {
	if p.authenticator == nil {
		return nil, &service.AuthRequiredError{ServiceTag: p.serviceTag}
	}
	rec, err := p.authenticator.AuthenticateLocally(ctx, p.serviceTag, p.profile)
	if err != nil {
		return nil, &service.AuthFailedError{ServiceTag: p.serviceTag, Reason: err.Error()}
	}
	if p.cache != nil {
		_ = p.cache.Store(p.remoteURL, p.serviceTag, p.profile, rec)
	}
	return rec, nil
}

func (p *Proxy) postEncoded(ctx context.Context, endpoint string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("remoteproxy: encoding request: %w", err)
	}
	return p.postRaw(ctx, endpoint, body, 0)
}

// Decrypt asks the remote server to decrypt content with its own CDM,
// available only to premium API keys. Regular keys should use GetLicense
// with a locally-held CDM instead.
func (p *Proxy) Decrypt(ctx context.Context, trackID string, pssh []byte, cdm string) ([]DecryptKey, error) {
	req := licenseRequest{
		request: request{Title: p.descriptor.Tag},
		TrackID: trackID,
		PSSH:    base64.StdEncoding.EncodeToString(pssh),
		CDM:     cdm,
	}
	p.applyProxyParams(&req.request)

	resp, err := p.doDecryptRequest(ctx, fmt.Sprintf("/api/remote/%s/decrypt", p.serviceTag), req)
	if err != nil {
		return nil, err
	}
	if resp.ErrorCode == string(service.ErrPremiumReqd) {
		return nil, &service.PremiumRequiredError{}
	}
	if resp.ErrorCode == string(service.ErrCDMNotAllowed) {
		return nil, &service.CDMNotAllowedError{CDM: cdm}
	}
	if resp.Status != "success" {
		return nil, &service.ServiceError{ServiceTag: p.serviceTag, Message: resp.Message}
	}

	out := make([]DecryptKey, 0, len(resp.Keys))
	for _, k := range resp.Keys {
		out = append(out, DecryptKey{KID: k.KID, Key: k.Key, Type: k.Type})
	}
	return out, nil
}
