package registry_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/unshackle-core/registry"
	"github.com/ddevcap/unshackle-core/service"
)

func TestRegistry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "registry")
}

type stubService struct{ service.Service }

var _ = Describe("Registry", func() {
	It("resolves a locally-registered tag", func() {
		reg := registry.New(registry.Config{})
		defer reg.Stop()

		called := false
		reg.Register(service.Descriptor{Tag: "NF", Aliases: []string{"netflix"}}, func(ctx service.Context) (service.Service, error) {
			called = true
			return &stubService{}, nil
		})

		svc, err := reg.Resolve(context.Background(), "netflix", service.Context{})
		Expect(err).NotTo(HaveOccurred())
		Expect(svc).NotTo(BeNil())
		Expect(called).To(BeTrue())
	})

	It("reports an error for an unknown tag with no remotes configured", func() {
		reg := registry.New(registry.Config{})
		defer reg.Stop()

		_, err := reg.Resolve(context.Background(), "DN", service.Context{})
		Expect(err).To(HaveOccurred())
	})

	It("discovers and builds a remote proxy for a service advertised by a remote server", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/remote/services":
				_ = json.NewEncoder(w).Encode(map[string]any{
					"status": "success",
					"services": []map[string]any{
						{"tag": "DN", "help": "Disney+"},
					},
				})
			default:
				_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "titles": []any{}})
			}
		}))
		defer srv.Close()

		reg := registry.New(registry.Config{})
		defer reg.Stop()
		reg.RegisterRemote(registry.RemoteConfig{Name: "friend", URL: srv.URL, APIKey: "key"})

		svc, err := reg.Resolve(context.Background(), "remote_DN", service.Context{})
		Expect(err).NotTo(HaveOccurred())
		Expect(svc).NotTo(BeNil())

		tags := reg.Tags()
		Expect(tags).To(ContainElement("remote_DN"))
	})
})
