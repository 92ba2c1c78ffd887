package remoteproxy_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/unshackle-core/remoteproxy"
	"github.com/ddevcap/unshackle-core/service"
)

func TestRemoteProxy(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "remoteproxy")
}

var _ service.Service = (*remoteproxy.Proxy)(nil)

var _ = Describe("Proxy", func() {
	It("deserializes a successful titles response", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "success",
				"titles": []map[string]any{
					{"type": "movie", "id": "abc", "name": "Arrival", "year": 2016},
				},
			})
		}))
		defer srv.Close()

		proxy, err := remoteproxy.New(remoteproxy.Config{
			RemoteURL:  srv.URL,
			APIKey:     "key",
			ServiceTag: "NF",
			Descriptor: service.Descriptor{Tag: "NF"},
		})
		Expect(err).NotTo(HaveOccurred())

		titles, err := proxy.GetTitles(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(titles).To(HaveLen(1))
		Expect(titles[0].Name).To(Equal("Arrival"))
		Expect(titles[0].TitleKind).To(Equal(service.KindMovie))
	})

	It("returns AuthRequiredError when the server asks for auth and no authenticator is configured", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "error", "error_code": "AUTH_REQUIRED",
			})
		}))
		defer srv.Close()

		proxy, err := remoteproxy.New(remoteproxy.Config{
			RemoteURL: srv.URL, APIKey: "key", ServiceTag: "NF",
			Descriptor: service.Descriptor{Tag: "NF"},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = proxy.GetTitles(context.Background())
		Expect(err).To(HaveOccurred())
		var authErr *service.AuthRequiredError
		Expect(err).To(BeAssignableToTypeOf(authErr))
	})

	It("propagates a service error message on failure status", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "error", "message": "title not found",
			})
		}))
		defer srv.Close()

		proxy, err := remoteproxy.New(remoteproxy.Config{
			RemoteURL: srv.URL, APIKey: "key", ServiceTag: "NF",
			Descriptor: service.Descriptor{Tag: "NF"},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = proxy.GetTitles(context.Background())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("title not found"))
	})
})
