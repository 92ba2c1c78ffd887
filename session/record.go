// Package session implements the portable Session Record: a serializable
// snapshot of an authenticated HTTP session that can cross the wire
// between a Remote Service Proxy and a Remote Service Server.
package session

import "time"

// lifetime is the hard wall-clock validity window for a Session Record,
// per the 24h rule in the data model.
const lifetime = 24 * time.Hour

// warnWindow is how long before expiry a record is considered "expiring
// soon" for diagnostic purposes.
const warnWindow = time.Hour

// Cookie is one recorded cookie attribute set.
type Cookie struct {
	Value   string `json:"value"`
	Domain  string `json:"domain,omitempty"`
	Path    string `json:"path,omitempty"`
	Secure  bool   `json:"secure,omitempty"`
	Expires int64  `json:"expires,omitempty"`
}

// Record is the portable snapshot of an authenticated HTTP session.
type Record struct {
	Cookies       map[string]Cookie `json:"cookies"`
	Headers       map[string]string `json:"headers"`
	ServiceTag    string            `json:"service_tag,omitempty"`
	Profile       string            `json:"profile,omitempty"`
	CachedAt      int64             `json:"cached_at"`
	Authenticated bool              `json:"authenticated,omitempty"`
}

// NewRecord returns an empty Record stamped with the current time.
func NewRecord(serviceTag, profile string) *Record {
	return &Record{
		Cookies:    make(map[string]Cookie),
		Headers:    make(map[string]string),
		ServiceTag: serviceTag,
		Profile:    profile,
		CachedAt:   time.Now().Unix(),
	}
}

// IsValid reports whether the record carries at least one cookie or an
// Authorization header, per the data model's validity invariant.
func (r *Record) IsValid() bool {
	if r == nil {
		return false
	}
	if len(r.Cookies) > 0 {
		return true
	}
	_, ok := r.Headers["Authorization"]
	return ok
}

// IsExpired reports whether now is past cachedAt + 24h.
func (r *Record) IsExpired(now time.Time) bool {
	if r == nil {
		return true
	}
	return now.After(time.Unix(r.CachedAt, 0).Add(lifetime))
}

// ExpiringSoon reports whether the record has an hour or less of life
// remaining but is not yet expired.
func (r *Record) ExpiringSoon(now time.Time) bool {
	if r == nil || r.IsExpired(now) {
		return false
	}
	return !now.Before(time.Unix(r.CachedAt, 0).Add(lifetime - warnWindow))
}

// Age returns how long ago the record was cached.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(r.CachedAt, 0))
}
