package session_test

import (
	"net/http"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/unshackle-core/session"
)

func TestSession(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "session")
}

// memStore is a trivial session.Store used only to exercise
// Serialize/Deserialize without pulling in the client package.
type memStore struct {
	cookies []*http.Cookie
	header  http.Header
}

func newMemStore() *memStore { return &memStore{header: make(http.Header)} }

func (m *memStore) AllCookies() []*http.Cookie { return m.cookies }
func (m *memStore) SetCookie(c *http.Cookie)   { m.cookies = append(m.cookies, c) }
func (m *memStore) Header() http.Header        { return m.header }

var _ = Describe("Record", func() {
	It("is invalid when empty", func() {
		r := session.NewRecord("svc", "default")
		Expect(r.IsValid()).To(BeFalse())
	})

	It("is valid with at least one cookie", func() {
		r := session.NewRecord("svc", "default")
		r.Cookies["sid"] = session.Cookie{Value: "abc"}
		Expect(r.IsValid()).To(BeTrue())
	})

	It("is valid with an Authorization header and no cookies", func() {
		r := session.NewRecord("svc", "default")
		r.Headers["Authorization"] = "Bearer token"
		Expect(r.IsValid()).To(BeTrue())
	})

	It("is not expired immediately after creation", func() {
		r := session.NewRecord("svc", "default")
		Expect(r.IsExpired(time.Now())).To(BeFalse())
	})

	It("expires exactly 24 hours after cached_at", func() {
		r := session.NewRecord("svc", "default")
		cachedAt := time.Unix(r.CachedAt, 0)
		Expect(r.IsExpired(cachedAt.Add(24 * time.Hour))).To(BeFalse())
		Expect(r.IsExpired(cachedAt.Add(24*time.Hour + time.Second))).To(BeTrue())
	})

	It("reports expiring soon within the last hour of validity", func() {
		r := session.NewRecord("svc", "default")
		cachedAt := time.Unix(r.CachedAt, 0)
		Expect(r.ExpiringSoon(cachedAt.Add(23 * time.Hour))).To(BeTrue())
		Expect(r.ExpiringSoon(cachedAt.Add(22 * time.Hour))).To(BeFalse())
	})

	It("treats a nil record as invalid and expired", func() {
		var r *session.Record
		Expect(r.IsValid()).To(BeFalse())
		Expect(r.IsExpired(time.Now())).To(BeTrue())
		Expect(r.ExpiringSoon(time.Now())).To(BeFalse())
	})
})

var _ = Describe("Serialize/Deserialize", func() {
	It("round-trips cookies and headers", func() {
		store := newMemStore()
		store.SetCookie(&http.Cookie{Name: "sid", Value: "abc", Domain: "example.com", Path: "/"})
		store.Header().Set("User-Agent", "test-agent")
		store.Header().Set("Proxy-Authorization", "Basic secret")

		record := session.Serialize(store, "example", "default")
		Expect(record.Cookies).To(HaveKey("sid"))
		Expect(record.Cookies["sid"].Value).To(Equal("abc"))
		Expect(record.Headers).To(HaveKeyWithValue("User-Agent", "test-agent"))
		Expect(record.Headers).NotTo(HaveKey("Proxy-Authorization"))

		target := newMemStore()
		session.Deserialize(record, target)
		Expect(target.cookies).To(HaveLen(1))
		Expect(target.cookies[0].Value).To(Equal("abc"))
		Expect(target.Header().Get("User-Agent")).To(Equal("test-agent"))
	})

	It("defaults an empty cookie path to / on deserialize", func() {
		record := session.NewRecord("example", "default")
		record.Cookies["sid"] = session.Cookie{Value: "abc"}

		target := newMemStore()
		session.Deserialize(record, target)
		Expect(target.cookies[0].Path).To(Equal("/"))
	})

	It("marks a record authenticated when it carries a usable cookie", func() {
		store := newMemStore()
		store.SetCookie(&http.Cookie{Name: "sid", Value: "abc", Domain: "example.com"})
		record := session.Serialize(store, "example", "default")
		Expect(record.Authenticated).To(BeTrue())
	})
})
