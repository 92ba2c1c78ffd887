package remoteauth_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/unshackle-core/remoteauth"
	"github.com/ddevcap/unshackle-core/service"
	"github.com/ddevcap/unshackle-core/sessioncache"
)

func TestRemoteAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "remoteauth")
}

type fakeService struct {
	authErr error
	cookies []service.Cookie
	headers map[string]string
}

func (f *fakeService) Authenticate(ctx context.Context, cookies []service.Cookie, cred *service.Credential) error {
	return f.authErr
}
func (f *fakeService) Search(context.Context, string) ([]service.SearchResult, error) { return nil, nil }
func (f *fakeService) GetTitles(context.Context) ([]service.Title, error)             { return nil, nil }
func (f *fakeService) GetTracks(context.Context, service.Title) (service.Tracks, error) {
	return service.Tracks{}, nil
}
func (f *fakeService) GetChapters(context.Context, service.Title) ([]service.Chapter, error) {
	return nil, nil
}
func (f *fakeService) Session() *service.SessionAccessor {
	return &service.SessionAccessor{Cookies: f.cookies, Headers: f.headers}
}

type fakeLoader struct{ svc service.Service }

func (l *fakeLoader) Load(ctx context.Context, serviceTag string) (service.Service, error) {
	return l.svc, nil
}

type fakeCredentials struct{}

func (fakeCredentials) CookiesFor(serviceTag, profile string) []service.Cookie { return nil }
func (fakeCredentials) CredentialFor(serviceTag, profile string) *service.Credential {
	return nil
}

var _ = Describe("Orchestrator", func() {
	It("turns an authenticated adapter's session into a valid record", func() {
		svc := &fakeService{
			cookies: []service.Cookie{{Name: "sid", Value: "abc", Domain: "example.com"}},
			headers: map[string]string{"User-Agent": "test"},
		}
		cache, err := sessioncache.Open(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		orch := remoteauth.New("https://remote", &fakeLoader{svc: svc}, fakeCredentials{}, cache)

		rec, err := orch.AuthenticateLocally(context.Background(), "NF", "default")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.IsValid()).To(BeTrue())
		Expect(rec.Cookies["sid"].Value).To(Equal("abc"))
	})

	It("propagates an authentication failure", func() {
		svc := &fakeService{authErr: &service.AuthFailedError{ServiceTag: "NF", Reason: "bad password"}}
		cache, err := sessioncache.Open(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		orch := remoteauth.New("https://remote", &fakeLoader{svc: svc}, fakeCredentials{}, cache)

		_, err = orch.AuthenticateLocally(context.Background(), "NF", "default")
		Expect(err).To(HaveOccurred())
	})

	It("reports no session cached before any authentication", func() {
		cache, err := sessioncache.Open(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		orch := remoteauth.New("https://remote", &fakeLoader{}, fakeCredentials{}, cache)

		status := orch.CheckLocalSessionStatus("NF", "default")
		Expect(status.Exists).To(BeFalse())
	})

	It("AuthenticateAndSave persists the session for later retrieval", func() {
		svc := &fakeService{cookies: []service.Cookie{{Name: "sid", Value: "abc", Domain: "example.com"}}}
		cache, err := sessioncache.Open(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		orch := remoteauth.New("https://remote", &fakeLoader{svc: svc}, fakeCredentials{}, cache)

		_, err = orch.AuthenticateAndSave(context.Background(), "NF", "default")
		Expect(err).NotTo(HaveOccurred())

		status := orch.CheckLocalSessionStatus("NF", "default")
		Expect(status.Exists).To(BeTrue())
	})
})
