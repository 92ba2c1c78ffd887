package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ddevcap/unshackle-core/client"
	"github.com/ddevcap/unshackle-core/download"
	"github.com/ddevcap/unshackle-core/service"
	"github.com/ddevcap/unshackle-core/session"
)

// Resolver is the subset of registry.Registry every handler needs: turning
// a path-parameter service tag into a fresh, unauthenticated adapter.
type Resolver interface {
	Resolve(ctx context.Context, tag string, svcCtx service.Context) (service.Service, error)
	Descriptors() []service.Descriptor
}

// Deps bundles what every handler needs, built once at server startup and
// shared (read-only) across concurrent requests.
type Deps struct {
	Registry Resolver
	// Outbound is the shared facade used to relay license challenges to a
	// track's license URL; one instance reused across every request.
	Outbound *client.Facade
	// CDM is the optional server-held CDM binding for the premium decrypt
	// path; nil means the server has none configured.
	CDM ServerCDM
	// Queue is the Download Job queue backing /api/download.
	Queue Queue
}

// Queue is the subset of download.Queue the handlers need.
type Queue interface {
	Submit(req download.Request) *download.Job
	Get(id string) (*download.Job, bool)
	List() []*download.Job
	Cancel(id string) error
}

// loadService resolves the :service path param into a fresh adapter,
// writing the standard 400 response and returning ok=false on an unknown
// tag.
func (d *Deps) loadService(c *gin.Context, svcCtx service.Context) (service.Service, bool) {
	tag := c.Param("service")
	svc, err := d.Registry.Resolve(c.Request.Context(), tag, svcCtx)
	if err != nil {
		writeError(c, http.StatusBadRequest, "", "invalid or unavailable service: "+tag)
		return nil, false
	}
	return svc, true
}

// buildServiceContext constructs the synthetic per-request context handed
// to Resolve, validating the proxy contract along the way. ok=false means
// the response has already been written.
func buildServiceContext(c *gin.Context, body requestBody) (service.Context, bool) {
	if !validateProxy(body.Proxy, body.NoProxy) {
		writeError(c, http.StatusBadRequest, string(service.ErrInvalidProxy),
			"proxy must be a resolved http(s):// URI; resolve provider tokens locally before sending")
		return service.Context{}, false
	}
	return service.Context{
		Proxy:   body.Proxy,
		NoProxy: body.NoProxy,
		Profile: body.Profile,
	}, true
}

// authenticate implements the server's authentication precedence: a
// pre-authenticated session record first, then cookies/credential, else
// AUTH_REQUIRED. ok=false means the response has already been written.
func authenticate(c *gin.Context, svc service.Service, body requestBody) bool {
	if body.PreAuthenticatedSession != nil {
		if body.PreAuthenticatedSession.IsExpired(time.Now()) {
			writeError(c, http.StatusUnauthorized, string(service.ErrSessionExpired), "pre-authenticated session has expired")
			return false
		}
		accessor := accessorFromRecord(body.PreAuthenticatedSession)
		if err := svc.Authenticate(c.Request.Context(), accessor.Cookies, nil); err != nil {
			writeError(c, http.StatusUnauthorized, string(service.ErrAuthRequired), err.Error())
			return false
		}
		return true
	}

	if body.Cookies != "" || body.Credential != nil {
		var cred *service.Credential
		if body.Credential != nil {
			cred = &service.Credential{Username: body.Credential.Username, Password: body.Credential.Password}
		}
		cookies := service.ParseCookieHeader(body.Cookies)
		if err := svc.Authenticate(c.Request.Context(), cookies, cred); err != nil {
			writeFailure(c, svc, err)
			return false
		}
		return true
	}

	writeError(c, http.StatusUnauthorized, string(service.ErrAuthRequired), "no session, cookies, or credential supplied")
	return false
}

func writeFailure(c *gin.Context, svc service.Service, err error) {
	switch err.(type) {
	case *service.AuthFailedError:
		writeError(c, http.StatusUnauthorized, string(service.ErrAuthRequired), err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "", "internal service error")
	}
}

func accessorFromRecord(rec *session.Record) *service.SessionAccessor {
	acc := &service.SessionAccessor{Headers: rec.Headers}
	for name, c := range rec.Cookies {
		acc.Cookies = append(acc.Cookies, service.Cookie{
			Name: name, Value: c.Value, Domain: c.Domain, Path: c.Path, Secure: c.Secure, Expires: c.Expires,
		})
	}
	return acc
}

// sessionRecord serializes the adapter's current session for the response
// envelope, matching the client-side Serialize semantics.
func sessionRecord(svc service.Service, serviceTag, profile string) *session.Record {
	acc := svc.Session()
	rec := session.NewRecord(serviceTag, profile)
	if acc == nil {
		return rec
	}
	for _, c := range acc.Cookies {
		rec.Cookies[c.Name] = session.Cookie{Value: c.Value, Domain: c.Domain, Path: c.Path, Secure: c.Secure, Expires: c.Expires}
	}
	for k, v := range acc.Headers {
		rec.Headers[k] = v
	}
	rec.Authenticated = rec.IsValid()
	return rec
}

// translateError maps a taxonomy error to an HTTP status/error_code pair,
// never leaking internal detail verbatim.
func translateError(c *gin.Context, serviceTag string, err error) {
	switch e := err.(type) {
	case *service.AuthRequiredError:
		writeError(c, http.StatusUnauthorized, string(service.ErrAuthRequired), e.Error())
	case *service.AuthFailedError:
		writeError(c, http.StatusUnauthorized, string(service.ErrAuthRequired), e.Error())
	case *service.GeofencedError:
		writeError(c, http.StatusForbidden, "", e.Error())
	case *service.NotAvailableError:
		writeError(c, http.StatusNotFound, "", e.Error())
	case *service.InvalidProxyError:
		writeError(c, http.StatusBadRequest, string(service.ErrInvalidProxy), e.Error())
	case *service.PremiumRequiredError:
		writeError(c, http.StatusForbidden, string(service.ErrPremiumReqd), e.Error())
	case *service.CDMNotAllowedError:
		writeError(c, http.StatusForbidden, string(service.ErrCDMNotAllowed), e.Error())
	default:
		writeError(c, http.StatusInternalServerError, "", "internal error in "+serviceTag)
	}
}
