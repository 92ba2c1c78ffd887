// Package sessioncache implements the Local Session Cache: a client-side,
// on-disk store of authenticated Session Records keyed by remote server,
// service tag, and profile. The server the records authenticate against
// never stores them — every request carries its own session.
package sessioncache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ddevcap/unshackle-core/metrics"
	"github.com/ddevcap/unshackle-core/session"
)

const fileName = "remote_sessions.json"

// entry is the metadata List reports for one cached Record: the slot it
// is cached under, its age, and whether it carries cookies or headers.
type entry struct {
	RemoteURL  string `json:"remote_url"`
	ServiceTag string `json:"service_tag"`
	Profile    string `json:"profile"`
	AgeSeconds int64  `json:"age_seconds"`
	Expired    bool   `json:"expired"`
	HasCookies bool   `json:"has_cookies"`
	HasHeaders bool   `json:"has_headers"`
}

// document is the on-disk shape: remote URL -> service tag -> profile.
type document map[string]map[string]map[string]*session.Record

// Cache is a client-side cache of Session Records, guarded by a mutex and
// persisted to disk atomically on every mutation.
type Cache struct {
	mu   sync.Mutex
	path string
	data document
}

// Open loads (or creates) the cache file under dir.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sessioncache: creating cache dir: %w", err)
	}
	path := filepath.Join(dir, fileName)

	c := &Cache{path: path, data: make(document)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("sessioncache: reading %s: %w", path, err)
	}
	if len(raw) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c.data); err != nil {
		return nil, fmt.Errorf("sessioncache: parsing %s: %w", path, err)
	}
	return c, nil
}

func (c *Cache) persist() error {
	raw, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return fmt.Errorf("sessioncache: encoding: %w", err)
	}
	return renameio.WriteFile(c.path, raw, 0o644)
}

// Store saves rec under (remoteURL, serviceTag, profile), overwriting any
// prior record in that slot, and rewrites the cache file.
func (c *Cache) Store(remoteURL, serviceTag, profile string, rec *session.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data[remoteURL] == nil {
		c.data[remoteURL] = make(map[string]map[string]*session.Record)
	}
	if c.data[remoteURL][serviceTag] == nil {
		c.data[remoteURL][serviceTag] = make(map[string]*session.Record)
	}
	c.data[remoteURL][serviceTag][profile] = rec

	return c.persist()
}

// Get returns the cached record for (remoteURL, serviceTag, profile). If
// the record has expired it is deleted and (nil, false) is returned.
func (c *Cache) Get(remoteURL, serviceTag, profile string) (*session.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.lookup(remoteURL, serviceTag, profile)
	if rec == nil {
		metrics.ObserveSessionCacheMiss()
		return nil, false
	}
	if rec.IsExpired(time.Now()) {
		c.deleteLocked(remoteURL, serviceTag, profile)
		_ = c.persist()
		metrics.ObserveSessionCacheMiss()
		return nil, false
	}
	metrics.ObserveSessionCacheHit()
	return rec, true
}

// Has reports whether a valid (unexpired) record is cached for this slot.
func (c *Cache) Has(remoteURL, serviceTag, profile string) bool {
	_, ok := c.Get(remoteURL, serviceTag, profile)
	return ok
}

func (c *Cache) lookup(remoteURL, serviceTag, profile string) *session.Record {
	byService, ok := c.data[remoteURL]
	if !ok {
		return nil
	}
	byProfile, ok := byService[serviceTag]
	if !ok {
		return nil
	}
	return byProfile[profile]
}

// Delete removes a cached record, reporting whether one existed.
func (c *Cache) Delete(remoteURL, serviceTag, profile string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lookup(remoteURL, serviceTag, profile) == nil {
		return false, nil
	}
	c.deleteLocked(remoteURL, serviceTag, profile)
	return true, c.persist()
}

// deleteLocked removes the record and prunes any now-empty parent maps.
// Caller must hold c.mu.
func (c *Cache) deleteLocked(remoteURL, serviceTag, profile string) {
	byService, ok := c.data[remoteURL]
	if !ok {
		return
	}
	byProfile, ok := byService[serviceTag]
	if !ok {
		return
	}
	delete(byProfile, profile)
	if len(byProfile) == 0 {
		delete(byService, serviceTag)
	}
	if len(byService) == 0 {
		delete(c.data, remoteURL)
	}
}

// List returns metadata for every cached session, optionally filtered to
// one remote server URL.
func (c *Cache) List(remoteURL string) []entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var out []entry

	for remote, byService := range c.data {
		if remoteURL != "" && remote != remoteURL {
			continue
		}
		for serviceTag, byProfile := range byService {
			for profile, rec := range byProfile {
				out = append(out, entry{
					RemoteURL:  remote,
					ServiceTag: serviceTag,
					Profile:    profile,
					AgeSeconds: int64(rec.Age(now).Seconds()),
					Expired:    rec.IsExpired(now),
					HasCookies: len(rec.Cookies) > 0,
					HasHeaders: len(rec.Headers) > 0,
				})
			}
		}
	}
	return out
}

// CleanupExpired removes every expired record and reports how many were
// removed. Intended to run once at startup and on a periodic schedule.
func (c *Cache) CleanupExpired() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	for remote, byService := range c.data {
		for serviceTag, byProfile := range byService {
			for profile, rec := range byProfile {
				if rec.IsExpired(now) {
					delete(byProfile, profile)
					removed++
				}
			}
			if len(byProfile) == 0 {
				delete(byService, serviceTag)
			}
		}
		if len(byService) == 0 {
			delete(c.data, remote)
		}
	}

	if removed == 0 {
		return 0, nil
	}
	return removed, c.persist()
}
