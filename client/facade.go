package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ddevcap/unshackle-core/metrics"
	"github.com/ddevcap/unshackle-core/service"
)

// Facade wraps a Session with the standard retry policy: transient
// transport failures and the configured retry statuses are retried with
// exponential backoff, everything else is returned as-is. Every failure
// surfaces as one of the taxonomy errors in the service package so
// adapters never see a transport-specific type.
type Facade struct {
	session *Session
	retry   RetryConfig
}

// NewFacade wraps session with retry behavior from cfg.
func NewFacade(session *Session, cfg RetryConfig) *Facade {
	return &Facade{session: session, retry: cfg}
}

// Do executes one HTTP request, retrying it per the facade's policy when
// the method and failure mode are both retryable. body is wrapped in a
// fresh reader on every attempt, so each retry resends the same bytes.
func (f *Facade) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*http.Response, error) {
	retryable := f.retry.isRetryableMethod(method)

	attempt := func() (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, backoff.Permanent(&service.NetworkError{Op: method + " " + url, Err: err})
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := f.session.Do(req)
		if err != nil {
			if !retryable {
				return nil, backoff.Permanent(&service.NetworkError{Op: method + " " + url, Err: err})
			}
			metrics.ObserveRetry("transport_error")
			return nil, &service.NetworkError{Op: method + " " + url, Err: err}
		}

		if retryable && f.retry.isRetryableStatus(resp.StatusCode) {
			retryAfter, hasRetryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			metrics.ObserveRetry("retryable_status")
			httpErr := &service.NetworkHTTPError{Status: resp.StatusCode, URL: url}
			if hasRetryAfter {
				// RetryAfterError tells backoff.Retry to use this exact
				// duration as the next interval instead of its own
				// exponential decision; errors.Join keeps httpErr as the
				// error callers ultimately see once retries are exhausted.
				return nil, errors.Join(httpErr, &backoff.RetryAfterError{Duration: retryAfter})
			}
			return nil, httpErr
		}
		return resp, nil
	}

	if !retryable {
		return attempt()
	}

	bo := backoff.NewExponentialBackOff()
	bo.Multiplier = f.retry.BackoffMultiplier
	if bo.Multiplier <= 0 {
		bo.Multiplier = 1.0
	}

	resp, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(f.retry.Retries)),
	)
	if err != nil {
		metrics.ObserveRetry("exhausted")
	}
	return resp, err
}

// parseRetryAfter parses a Retry-After header value, accepting either an
// integer number of seconds or an HTTP-date, per RFC 9110 §10.2.3.
func parseRetryAfter(raw string) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(raw); err == nil {
		d := time.Until(when)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// Get is a convenience wrapper around Do for the common no-body case.
func (f *Facade) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	return f.Do(ctx, http.MethodGet, url, headers, nil)
}

// Post is a convenience wrapper around Do for a JSON or form body.
func (f *Facade) Post(ctx context.Context, url string, headers map[string]string, body []byte) (*http.Response, error) {
	return f.Do(ctx, http.MethodPost, url, headers, body)
}

// Session exposes the underlying session so callers needing cookie/header
// access (serialization, manual requests) can reach it.
func (f *Facade) Session() *Session { return f.session }

// Close releases the underlying session's pooled connections.
func (f *Facade) Close() { f.session.Close() }
