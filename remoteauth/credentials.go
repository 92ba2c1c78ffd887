package remoteauth

import (
	"os"
	"strings"

	"github.com/ddevcap/unshackle-core/config"
	"github.com/ddevcap/unshackle-core/service"
)

// ConfigCredentials implements CredentialSource by reading the
// credentials{} section of the configuration document: a cookie file
// path and/or username/password per (service tag, profile). Nothing
// here ever leaves the local process or reaches a remote server.
type ConfigCredentials struct {
	cfg config.CredentialsConfig
}

// NewConfigCredentials builds a CredentialSource backed by cfg.
func NewConfigCredentials(cfg config.CredentialsConfig) *ConfigCredentials {
	return &ConfigCredentials{cfg: cfg}
}

func (c *ConfigCredentials) lookup(serviceTag, profile string) (config.ProfileCredentialConfig, bool) {
	if c.cfg == nil {
		return config.ProfileCredentialConfig{}, false
	}
	profiles, ok := c.cfg[strings.ToUpper(serviceTag)]
	if !ok {
		profiles, ok = c.cfg[serviceTag]
		if !ok {
			return config.ProfileCredentialConfig{}, false
		}
	}
	if profile == "" {
		profile = "default"
	}
	entry, ok := profiles[profile]
	return entry, ok
}

// CookiesFor reads and parses the configured cookie file for (serviceTag,
// profile), if one is set. A missing or unreadable file yields no
// cookies rather than an error: the orchestrator falls back to a
// configured credential, matching the "falling back to user config" step
// in the local-auth procedure.
func (c *ConfigCredentials) CookiesFor(serviceTag, profile string) []service.Cookie {
	entry, ok := c.lookup(serviceTag, profile)
	if !ok || entry.CookieFile == "" {
		return nil
	}
	raw, err := os.ReadFile(entry.CookieFile)
	if err != nil {
		return nil
	}
	return service.ParseCookieHeader(strings.TrimSpace(string(raw)))
}

// CredentialFor returns the configured username/password for (serviceTag,
// profile), or nil if none is set.
func (c *ConfigCredentials) CredentialFor(serviceTag, profile string) *service.Credential {
	entry, ok := c.lookup(serviceTag, profile)
	if !ok || entry.Username == "" {
		return nil
	}
	return &service.Credential{Username: entry.Username, Password: entry.Password}
}
