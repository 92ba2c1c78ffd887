// Package middleware holds the gin middleware stack shared by every
// /api/remote/* and /api/download/* route: API-key auth, rate limiting,
// and request-id/logging.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyAPIKey is the gin context key holding the authenticated key's info.
	ContextKeyAPIKey = "api_key_info"
)

// APIKeyInfo is the tiering metadata attached to one configured API key,
// ported from the source's api_keys.py.
type APIKeyInfo struct {
	Name        string
	Tier        string // "basic" or "premium"
	AllowedCDMs []string
	DefaultCDM  string
}

// AllowsCDM reports whether cdm is in this key's AllowedCDMs list.
func (k APIKeyInfo) AllowsCDM(cdm string) bool {
	if len(k.AllowedCDMs) == 0 {
		return false
	}
	if len(k.AllowedCDMs) == 1 && k.AllowedCDMs[0] == "*" {
		return true
	}
	for _, allowed := range k.AllowedCDMs {
		if strings.EqualFold(allowed, cdm) {
			return true
		}
	}
	return false
}

// KeyLookup authenticates a raw API-key value against the configured set.
type KeyLookup interface {
	Authenticate(candidate string) (APIKeyInfo, bool)
}

// Auth validates X-API-Key on every request, loads the matching key's
// tiering info into the gin context, and rejects the request with 401
// NO_API_KEY otherwise. A nil lookup means the server was started in
// no-auth mode: every request passes with an unrestricted premium key.
func Auth(lookup KeyLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if lookup == nil {
			c.Set(ContextKeyAPIKey, APIKeyInfo{Name: "no-auth", Tier: "premium", AllowedCDMs: []string{"*"}})
			c.Next()
			return
		}

		key := c.GetHeader("X-API-Key")
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status": "error", "error_code": "NO_API_KEY", "message": "missing X-API-Key header",
			})
			return
		}

		info, ok := lookup.Authenticate(key)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status": "error", "error_code": "NO_API_KEY", "message": "invalid API key",
			})
			return
		}

		c.Set(ContextKeyAPIKey, info)
		c.Next()
	}
}

// KeyInfo retrieves the authenticated key's info from the gin context.
func KeyInfo(c *gin.Context) APIKeyInfo {
	v, _ := c.Get(ContextKeyAPIKey)
	info, _ := v.(APIKeyInfo)
	return info
}
