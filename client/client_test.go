package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/unshackle-core/client"
	"github.com/ddevcap/unshackle-core/service"
)

func TestClient(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "client")
}

var _ = Describe("Facade", func() {
	It("returns a successful response unchanged", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		}))
		defer srv.Close()

		session, err := client.NewSession(client.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
		facade := client.NewFacade(session, client.DefaultRetryConfig())

		resp, err := facade.Get(context.Background(), srv.URL, nil)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("retries a retryable status until it succeeds", func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		session, err := client.NewSession(client.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
		cfg := client.DefaultRetryConfig()
		cfg.BackoffMultiplier = 0.01
		facade := client.NewFacade(session, cfg)

		resp, err := facade.Get(context.Background(), srv.URL, nil)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(calls.Load()).To(Equal(int32(3)))
	})

	It("honors an integer-seconds Retry-After header instead of its own backoff", func() {
		var calls atomic.Int32
		var gap time.Duration
		var last time.Time
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !last.IsZero() {
				gap = time.Since(last)
			}
			last = time.Now()
			if calls.Add(1) < 2 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		session, err := client.NewSession(client.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
		cfg := client.DefaultRetryConfig()
		cfg.BackoffMultiplier = 100 // would be slow without the Retry-After override
		facade := client.NewFacade(session, cfg)

		resp, err := facade.Get(context.Background(), srv.URL, nil)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(calls.Load()).To(Equal(int32(2)))
		Expect(gap).To(BeNumerically("<", time.Second))
	})

	It("surfaces a retryable status as a NetworkHTTPError after exhausting retries", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		session, err := client.NewSession(client.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
		cfg := client.DefaultRetryConfig()
		cfg.Retries = 2
		cfg.BackoffMultiplier = 0.01
		facade := client.NewFacade(session, cfg)

		_, err = facade.Get(context.Background(), srv.URL, nil)
		Expect(err).To(HaveOccurred())
		var httpErr *service.NetworkHTTPError
		Expect(err).To(BeAssignableToTypeOf(httpErr))
	})
})

var _ = Describe("Session cookie jar", func() {
	It("round-trips cookies through AllCookies/SetCookie", func() {
		session, err := client.NewSession(client.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		session.SetCookie(&http.Cookie{Name: "sid", Value: "abc123", Domain: "example.com"})

		cookies := session.AllCookies()
		Expect(cookies).To(HaveLen(1))
		Expect(cookies[0].Name).To(Equal("sid"))
		Expect(cookies[0].Value).To(Equal("abc123"))
	})
})

var _ = Describe("Factory", func() {
	It("returns the same facade instance for repeated calls with the same name", func() {
		factory := client.NewFactory()
		a, err := factory.Session("default")
		Expect(err).NotTo(HaveOccurred())
		b, err := factory.Session("default")
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(BeIdenticalTo(b))
	})

	It("builds distinct facades for distinct names", func() {
		factory := client.NewFactory()
		a, err := factory.Session("default")
		Expect(err).NotTo(HaveOccurred())
		b, err := factory.Session("atomic")
		Expect(err).NotTo(HaveOccurred())
		Expect(a).NotTo(BeIdenticalTo(b))
	})

	It("mutates headers live via UpdateConfig without rebuilding the session", func() {
		factory := client.NewFactory()
		facade, err := factory.Session("default")
		Expect(err).NotTo(HaveOccurred())

		cfg := client.DefaultConfig()
		cfg.Headers = map[string]string{"X-Trace": "abc"}
		Expect(factory.UpdateConfig("default", cfg)).To(Succeed())

		again, err := factory.Session("default")
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(BeIdenticalTo(facade))
		Expect(facade.Session().Header().Get("X-Trace")).To(Equal("abc"))
	})

	It("rejects UpdateConfig attempts that change the proxy URI of a live session", func() {
		factory := client.NewFactory()
		_, err := factory.Session("default")
		Expect(err).NotTo(HaveOccurred())

		cfg := client.DefaultConfig()
		cfg.Proxy = "http://proxy.example.com:8080"
		Expect(factory.UpdateConfig("default", cfg)).To(HaveOccurred())
	})

	It("closes every constructed facade's pooled connections", func() {
		factory := client.NewFactory()
		_, err := factory.Session("default")
		Expect(err).NotTo(HaveOccurred())
		factory.Close()
	})
})
