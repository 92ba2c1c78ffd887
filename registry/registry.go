// Package registry implements the Service Registry: it resolves a
// service tag to a service.Service, either a locally-registered adapter
// or a Remote Service Proxy built from services discovered on a
// configured remote server. Discovery responses are cached with a TTL
// and refreshed on a schedule so a long-lived server process picks up
// services newly advertised by its configured remotes without a restart.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/robfig/cron/v3"

	"github.com/ddevcap/unshackle-core/client"
	"github.com/ddevcap/unshackle-core/remoteproxy"
	"github.com/ddevcap/unshackle-core/service"
	"github.com/ddevcap/unshackle-core/sessioncache"
)

const remoteTagPrefix = "remote_"

// Factory constructs a local adapter for one service tag.
type Factory func(ctx service.Context) (service.Service, error)

type localEntry struct {
	descriptor service.Descriptor
	factory    Factory
}

// RemoteConfig is one entry in the configured remote_services list.
type RemoteConfig struct {
	Name   string
	URL    string
	APIKey string
}

type remoteServiceInfo struct {
	Tag      string   `json:"tag"`
	Help     string   `json:"help,omitempty"`
	Aliases  []string `json:"aliases,omitempty"`
	Geofence []string `json:"geofence,omitempty"`
}

type servicesResponse struct {
	Status   string              `json:"status"`
	Services []remoteServiceInfo `json:"services,omitempty"`
}

// Registry resolves service tags to adapters.
type Registry struct {
	mu     sync.RWMutex
	local  map[string]localEntry
	remote []RemoteConfig

	discovery *ttlcache.Cache[string, []remoteServiceInfo]
	discoveryFacade *client.Facade
	cron      *cron.Cron

	cache         *sessioncache.Cache
	authenticator remoteproxy.Authenticator
	resolver      remoteproxy.ProxyResolver

	log *slog.Logger
}

// Config bundles the dependencies shared by every Remote Service Proxy
// the registry builds.
type Config struct {
	Cache         *sessioncache.Cache
	Authenticator remoteproxy.Authenticator
	Resolver      remoteproxy.ProxyResolver
	DiscoveryTTL  time.Duration
	Logger        *slog.Logger
}

// New builds an empty Registry.
func New(cfg Config) *Registry {
	ttl := cfg.DiscoveryTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	facade := client.NewFacade(mustSession(), client.DefaultRetryConfig())

	r := &Registry{
		local:           make(map[string]localEntry),
		discovery:       ttlcache.New[string, []remoteServiceInfo](ttlcache.WithTTL[string, []remoteServiceInfo](ttl)),
		discoveryFacade: facade,
		cache:           cfg.Cache,
		authenticator:   cfg.Authenticator,
		resolver:        cfg.Resolver,
		log:             logger,
	}
	go r.discovery.Start()
	return r
}

func mustSession() *client.Session {
	s, err := client.NewSession(client.DefaultConfig())
	if err != nil {
		panic(err)
	}
	return s
}

// SetAuthenticator wires the Remote Auth Orchestrator in after
// construction, since the orchestrator itself typically needs the
// Registry as its Loader (resolving local adapters by tag) and so can't
// exist before the Registry does.
func (r *Registry) SetAuthenticator(a remoteproxy.Authenticator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authenticator = a
}

// Register adds a locally-constructed adapter under descriptor.Tag.
func (r *Registry) Register(descriptor service.Descriptor, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[strings.ToUpper(descriptor.Tag)] = localEntry{descriptor: descriptor, factory: factory}
}

// RegisterRemote adds a remote server to discover services from.
func (r *Registry) RegisterRemote(cfg RemoteConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remote = append(r.remote, cfg)
}

// Tags returns every known tag: local tags as-is, remote tags prefixed
// with "remote_" as the original does to avoid collisions.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.local))
	for _, entry := range r.local {
		out = append(out, entry.descriptor.Tag)
	}
	for _, cfg := range r.remote {
		if item := r.discovery.Get(cfg.URL); item != nil {
			for _, info := range item.Value() {
				out = append(out, remoteTagPrefix+info.Tag)
			}
		}
	}
	return out
}

// Descriptors returns every locally-registered adapter's descriptor, for
// the /api/services and /api/remote/services discovery endpoints.
func (r *Registry) Descriptors() []service.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]service.Descriptor, 0, len(r.local))
	for _, entry := range r.local {
		out = append(out, entry.descriptor)
	}
	return out
}

// Resolve returns a Service for tag: a local adapter if one matches by
// tag or alias, otherwise a Remote Service Proxy built from a prior
// discovery round against a configured remote server.
func (r *Registry) Resolve(ctx context.Context, tag string, svcCtx service.Context) (service.Service, error) {
	r.mu.RLock()
	for _, entry := range r.local {
		if entry.descriptor.MatchesTag(tag) {
			factory := entry.factory
			r.mu.RUnlock()
			return factory(svcCtx)
		}
	}
	remotes := append([]RemoteConfig(nil), r.remote...)
	r.mu.RUnlock()

	bareTag := strings.TrimPrefix(tag, remoteTagPrefix)
	for _, cfg := range remotes {
		infos, err := r.discoverFrom(ctx, cfg)
		if err != nil {
			r.log.Warn("service discovery failed", "remote", cfg.URL, "error", err)
			continue
		}
		for _, info := range infos {
			if !strings.EqualFold(info.Tag, bareTag) {
				continue
			}
			descriptor := service.Descriptor{Tag: info.Tag, Help: info.Help, Aliases: info.Aliases, Geofence: info.Geofence}
			return remoteproxy.New(remoteproxy.Config{
				RemoteURL:      cfg.URL,
				APIKey:         cfg.APIKey,
				ServiceTag:     info.Tag,
				Descriptor:     descriptor,
				Profile:        svcCtx.Profile,
				Cache:          r.cache,
				Authenticator:  r.authenticator,
				Resolver:       r.resolver,
				ProxyProviders: svcCtx.ProxyProviders,
				ProxyParam:     svcCtx.Proxy,
				NoProxy:        svcCtx.NoProxy,
			})
		}
	}

	return nil, fmt.Errorf("registry: no service registered for tag %q", tag)
}

// Load resolves tag against locally-registered adapters only, never a
// Remote Service Proxy. Implements remoteauth.Loader: the Remote Auth
// Orchestrator must authenticate against a real local adapter, not a
// proxy that would just forward the auth call back to this same server.
func (r *Registry) Load(ctx context.Context, tag string) (service.Service, error) {
	r.mu.RLock()
	for _, entry := range r.local {
		if entry.descriptor.MatchesTag(tag) {
			factory := entry.factory
			r.mu.RUnlock()
			return factory(service.Context{})
		}
	}
	r.mu.RUnlock()
	return nil, fmt.Errorf("registry: no local adapter registered for tag %q", tag)
}

// RefreshAll re-runs discovery against every configured remote server,
// bypassing the cache, and is intended to be called from a scheduled job.
func (r *Registry) RefreshAll(ctx context.Context) {
	r.mu.RLock()
	remotes := append([]RemoteConfig(nil), r.remote...)
	r.mu.RUnlock()

	for _, cfg := range remotes {
		r.discovery.Delete(cfg.URL)
		if _, err := r.discoverFrom(ctx, cfg); err != nil {
			r.log.Warn("scheduled service discovery failed", "remote", cfg.URL, "error", err)
		}
	}
}

func (r *Registry) discoverFrom(ctx context.Context, cfg RemoteConfig) ([]remoteServiceInfo, error) {
	if item := r.discovery.Get(cfg.URL); item != nil {
		return item.Value(), nil
	}

	httpResp, err := r.discoveryFacade.Get(ctx, cfg.URL+"/api/remote/services", map[string]string{
		"X-API-Key": cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: discovering from %s: %w", cfg.URL, err)
	}
	defer httpResp.Body.Close()

	var parsed servicesResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("registry: decoding discovery response from %s: %w", cfg.URL, err)
	}
	if parsed.Status != "success" {
		return nil, fmt.Errorf("registry: discovery request to %s did not succeed", cfg.URL)
	}

	r.discovery.Set(cfg.URL, parsed.Services, ttlcache.DefaultTTL)
	return parsed.Services, nil
}

// StartPeriodicRefresh schedules RefreshAll on the given cron spec (e.g.
// "@every 10m") and starts the scheduler. Call Stop to shut it down.
func (r *Registry) StartPeriodicRefresh(ctx context.Context, spec string) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(spec, func() { r.RefreshAll(ctx) })
	if err != nil {
		return fmt.Errorf("registry: scheduling discovery refresh: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stop shuts down the discovery cache and any scheduled refresh job.
func (r *Registry) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	r.discovery.Stop()
}
