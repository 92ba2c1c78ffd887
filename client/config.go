// Package client implements the HTTP Client Facade: a small set of named,
// independently configurable HTTP sessions shared across adapters, with a
// uniform retry policy and unified error taxonomy.
package client

import "time"

// RetryConfig controls which requests are retried and how.
type RetryConfig struct {
	Retries            int      `yaml:"retries"`
	BackoffMultiplier  float64  `yaml:"backoff_multiplier"`
	RetryStatuses      []int    `yaml:"retry_statuses"`
	RetryMethods       []string `yaml:"retry_methods"`
}

// DefaultRetryConfig mirrors the baseline retry policy: 3 attempts, 1x
// exponential multiplier, retrying GET/POST against the usual transient
// status codes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Retries:           3,
		BackoffMultiplier: 1.0,
		RetryStatuses:     []int{429, 500, 502, 503, 504},
		RetryMethods:      []string{"GET", "POST"},
	}
}

func (c RetryConfig) isRetryableMethod(method string) bool {
	for _, m := range c.RetryMethods {
		if m == method {
			return true
		}
	}
	return false
}

func (c RetryConfig) isRetryableStatus(status int) bool {
	for _, s := range c.RetryStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Config describes one named session: its default headers, proxy, and
// retry policy. Construction-time options only — once built, headers are
// mutated in place via Session.Header().
type Config struct {
	Headers map[string]string
	Proxy   string
	Retry   RetryConfig

	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	RequestTimeout        time.Duration
	MaxIdleConnsPerHost   int
}

// DefaultConfig is tuned for short-lived JSON API calls, matching the
// bounded-timeout transport profile used for API traffic rather than
// long-running media streams.
func DefaultConfig() Config {
	return Config{
		Headers:               map[string]string{},
		Retry:                 DefaultRetryConfig(),
		DialTimeout:           5 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		RequestTimeout:        30 * time.Second,
		MaxIdleConnsPerHost:   10,
	}
}

// StreamConfig is tuned for long-running binary downloads: no total
// timeout and a generous response-header timeout to tolerate slow-starting
// origins. Compression is left at the transport's default; it is not
// disabled.
func StreamConfig() Config {
	c := DefaultConfig()
	c.ResponseHeaderTimeout = 5 * time.Minute
	c.RequestTimeout = 0
	c.MaxIdleConnsPerHost = 20
	c.Retry.RetryMethods = []string{"GET"}
	return c
}
