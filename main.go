package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ddevcap/unshackle-core/apiserver"
	"github.com/ddevcap/unshackle-core/apiserver/handler"
	"github.com/ddevcap/unshackle-core/apiserver/middleware"
	"github.com/ddevcap/unshackle-core/client"
	"github.com/ddevcap/unshackle-core/config"
	"github.com/ddevcap/unshackle-core/download"
	"github.com/ddevcap/unshackle-core/proxyresolve"
	"github.com/ddevcap/unshackle-core/registry"
	"github.com/ddevcap/unshackle-core/remoteauth"
	"github.com/ddevcap/unshackle-core/service"
	"github.com/ddevcap/unshackle-core/sessioncache"
	"github.com/ddevcap/unshackle-core/template"
	"github.com/ddevcap/unshackle-core/titlecache"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	doc, err := config.LoadDocument(cfg.ConfigPath)
	if err != nil {
		slog.Error("failed to load configuration document", "config_path", cfg.ConfigPath, "error", err)
		os.Exit(1)
	}

	cacheDir := doc.Directories.Cache
	if cacheDir == "" {
		cacheDir = "cache"
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		slog.Error("failed to create cache directory", "dir", cacheDir, "error", err)
		os.Exit(1)
	}

	sessions, err := sessioncache.Open(cacheDir)
	if err != nil {
		slog.Error("failed to open session cache", "error", err)
		os.Exit(1)
	}

	var titles *titlecache.Cache
	if doc.TitleCacheEnabled {
		titles, err = titlecache.Open(filepath.Join(cacheDir, "titles.db"), titlecache.Config{
			Enabled:      doc.TitleCacheEnabled,
			TTL:          time.Duration(doc.TitleCacheTime) * time.Second,
			MaxRetention: time.Duration(doc.TitleCacheMaxRetention) * time.Second,
		})
		if err != nil {
			slog.Error("failed to open title cache", "error", err)
			os.Exit(1)
		}
		defer titles.Close()
	}

	resolver := proxyresolve.NewResolver(buildProxyProviders(doc))

	reg := registry.New(registry.Config{
		Cache:        sessions,
		Resolver:     resolver,
		DiscoveryTTL: 10 * time.Minute,
		Logger:       logger,
	})
	for _, r := range doc.RemoteServices {
		reg.RegisterRemote(registry.RemoteConfig{Name: r.Name, URL: r.URL, APIKey: r.APIKey})
	}
	if err := reg.StartPeriodicRefresh(context.Background(), cfg.DiscoveryRefresh); err != nil {
		slog.Warn("failed to start periodic service discovery refresh", "error", err)
	}
	defer reg.Stop()

	if len(doc.RemoteServices) > 0 {
		// One Orchestrator serves every configured remote: authenticateForRetry
		// stores the resulting Record under the proxy's own remote URL itself,
		// so the Orchestrator's bound remoteURL only matters for its own
		// SaveLocally/CheckLocalSessionStatus helpers, not this retry path.
		credentials := remoteauth.NewConfigCredentials(doc.Credentials)
		orchestrator := remoteauth.New(doc.RemoteServices[0].URL, reg, credentials, sessions)
		reg.SetAuthenticator(orchestrator)
	}

	queue := download.New(download.Config{
		Workers:   cfg.DownloadWorkers,
		Retention: cfg.JobRetention,
		Templates: buildOutputTemplates(doc.OutputTemplate),
	}, notConfiguredRunner)
	defer queue.Stop()

	var keyStore middleware.KeyLookup
	if len(doc.Serve.APIKeys) > 0 {
		keys := make([]apiserver.KeyConfig, 0, len(doc.Serve.APIKeys))
		for _, k := range doc.Serve.APIKeys {
			keys = append(keys, apiserver.KeyConfig{
				Name: k.Name, HashedKey: k.HashedKey, Tier: k.Tier,
				AllowedCDMs: k.AllowedCDMs, DefaultCDM: k.DefaultCDM,
			})
		}
		keyStore = apiserver.NewKeyStore(keys)
	}

	outboundSession, err := client.NewSession(client.DefaultConfig())
	if err != nil {
		slog.Error("failed to build outbound http session", "error", err)
		os.Exit(1)
	}
	outbound := client.NewFacade(outboundSession, client.DefaultRetryConfig())

	deps := &handler.Deps{
		Registry: reg,
		Outbound: outbound,
		Queue:    queue,
	}

	streamHub := handler.NewJobStreamHub()
	router, stop := apiserver.NewRouter(deps, apiserver.RouterConfig{
		KeyStore:   keyStore,
		RateLimit:  cfg.RateLimit,
		RateWindow: cfg.RateLimitWindow,
	}, streamHub)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("remote service server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// buildProxyProviders turns the configured proxy_providers section into
// the set of proxyresolve.Provider implementations available for token
// resolution. Only windscribe ships in this module today; an unconfigured
// section yields an empty, harmless provider list.
func buildProxyProviders(doc config.Document) []proxyresolve.Provider {
	var providers []proxyresolve.Provider
	if w := doc.ProxyProviders.Windscribe; w != nil {
		ws, err := proxyresolve.NewWindscribe(w.Username, w.Password, w.ServerMap)
		if err != nil {
			slog.Warn("skipping misconfigured windscribe proxy provider", "error", err)
		} else {
			providers = append(providers, ws)
		}
	}
	return providers
}

// buildOutputTemplates compiles the configured output_template strings
// into formatters once at startup, rather than re-parsing them on every
// job submission.
func buildOutputTemplates(cfg config.OutputTemplateConfig) download.Templates {
	return download.Templates{
		Movies: template.New(cfg.Movies),
		Series: template.New(cfg.Series),
		Songs:  template.New(cfg.Songs),
	}
}

// notConfiguredRunner is the Download Job queue's RunFunc until a
// concrete service adapter is wired into the binary: this module ships
// the Remote Service Server framework, not any particular streaming
// service's track-selection pipeline.
func notConfiguredRunner(_ context.Context, req download.Request, _ func(float64)) (*download.Result, error) {
	return nil, &service.NotAvailableError{What: req.ServiceTag + ": no download pipeline configured for this deployment"}
}
