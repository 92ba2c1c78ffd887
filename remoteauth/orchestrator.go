// Package remoteauth implements the Remote Auth Orchestrator: it runs
// real authentication against a locally-loaded service adapter — where
// interactive logins, 2FA, and cookie files can actually work — then
// hands the resulting session to the Local Session Cache so the Remote
// Service Proxy can attach it to future requests instead of re-running
// authentication on every call.
package remoteauth

import (
	"context"
	"fmt"
	"time"

	"github.com/ddevcap/unshackle-core/service"
	"github.com/ddevcap/unshackle-core/session"
	"github.com/ddevcap/unshackle-core/sessioncache"
)

// Loader resolves a service tag to a live, unauthenticated adapter.
type Loader interface {
	Load(ctx context.Context, serviceTag string) (service.Service, error)
}

// CredentialSource supplies the cookies and/or credential configured for
// a (service tag, profile) pair, read from local config rather than the
// remote server.
type CredentialSource interface {
	CookiesFor(serviceTag, profile string) []service.Cookie
	CredentialFor(serviceTag, profile string) *service.Credential
}

// Orchestrator ties a Loader, a CredentialSource, and the Local Session
// Cache together for one remote server.
type Orchestrator struct {
	remoteURL   string
	loader      Loader
	credentials CredentialSource
	cache       *sessioncache.Cache
}

// New builds an Orchestrator bound to one remote server URL.
func New(remoteURL string, loader Loader, credentials CredentialSource, cache *sessioncache.Cache) *Orchestrator {
	return &Orchestrator{remoteURL: remoteURL, loader: loader, credentials: credentials, cache: cache}
}

// AuthenticateLocally loads the adapter for serviceTag, runs its
// Authenticate method with locally-configured cookies/credentials, and
// returns the resulting session as a portable Record. Implements
// remoteproxy.Authenticator.
func (o *Orchestrator) AuthenticateLocally(ctx context.Context, serviceTag, profile string) (*session.Record, error) {
	svc, err := o.loader.Load(ctx, serviceTag)
	if err != nil {
		return nil, fmt.Errorf("remoteauth: loading %s locally: %w", serviceTag, err)
	}

	cookies := o.credentials.CookiesFor(serviceTag, profile)
	cred := o.credentials.CredentialFor(serviceTag, profile)

	if err := svc.Authenticate(ctx, cookies, cred); err != nil {
		return nil, fmt.Errorf("remoteauth: authenticating %s: %w", serviceTag, err)
	}

	return recordFromAccessor(svc.Session(), serviceTag, profile), nil
}

func recordFromAccessor(acc *service.SessionAccessor, serviceTag, profile string) *session.Record {
	rec := session.NewRecord(serviceTag, profile)
	if acc == nil {
		return rec
	}
	for _, c := range acc.Cookies {
		rec.Cookies[c.Name] = session.Cookie{
			Value: c.Value, Domain: c.Domain, Path: c.Path, Secure: c.Secure, Expires: c.Expires,
		}
	}
	for k, v := range acc.Headers {
		rec.Headers[k] = v
	}
	rec.Authenticated = rec.IsValid()
	return rec
}

// SaveLocally persists rec to the Local Session Cache under this
// orchestrator's remote URL.
func (o *Orchestrator) SaveLocally(serviceTag, profile string, rec *session.Record) error {
	return o.cache.Store(o.remoteURL, serviceTag, profile, rec)
}

// AuthenticateAndSave runs AuthenticateLocally then SaveLocally in one
// call, the common case when a user explicitly requests authentication.
func (o *Orchestrator) AuthenticateAndSave(ctx context.Context, serviceTag, profile string) (*session.Record, error) {
	rec, err := o.AuthenticateLocally(ctx, serviceTag, profile)
	if err != nil {
		return nil, err
	}
	if err := o.SaveLocally(serviceTag, profile, rec); err != nil {
		return nil, fmt.Errorf("remoteauth: saving session: %w", err)
	}
	return rec, nil
}

// Status reports whether a valid cached session exists for (serviceTag,
// profile), and its age if so.
type Status struct {
	Exists bool
	Age    time.Duration
}

// CheckLocalSessionStatus reports cached-session status without
// triggering a new authentication.
func (o *Orchestrator) CheckLocalSessionStatus(serviceTag, profile string) Status {
	rec, ok := o.cache.Get(o.remoteURL, serviceTag, profile)
	if !ok {
		return Status{}
	}
	return Status{Exists: true, Age: rec.Age(time.Now())}
}
