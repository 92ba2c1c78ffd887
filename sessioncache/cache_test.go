package sessioncache_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/unshackle-core/session"
	"github.com/ddevcap/unshackle-core/sessioncache"
)

func TestSessionCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "sessioncache")
}

var _ = Describe("Cache", func() {
	var cache *sessioncache.Cache

	BeforeEach(func() {
		var err error
		cache, err = sessioncache.Open(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
	})

	It("returns not-found for an empty cache", func() {
		_, ok := cache.Get("https://remote", "netflix", "default")
		Expect(ok).To(BeFalse())
	})

	It("stores and retrieves a record across the nested key path", func() {
		rec := session.NewRecord("netflix", "default")
		rec.Cookies["sid"] = session.Cookie{Value: "abc"}

		Expect(cache.Store("https://remote", "netflix", "default", rec)).To(Succeed())

		got, ok := cache.Get("https://remote", "netflix", "default")
		Expect(ok).To(BeTrue())
		Expect(got.Cookies["sid"].Value).To(Equal("abc"))
	})

	It("persists across reopen", func() {
		dir := GinkgoT().TempDir()
		cache1, err := sessioncache.Open(dir)
		Expect(err).NotTo(HaveOccurred())
		rec := session.NewRecord("hulu", "p1")
		rec.Headers["Authorization"] = "Bearer x"
		Expect(cache1.Store("https://remote", "hulu", "p1", rec)).To(Succeed())

		cache2, err := sessioncache.Open(dir)
		Expect(err).NotTo(HaveOccurred())
		got, ok := cache2.Get("https://remote", "hulu", "p1")
		Expect(ok).To(BeTrue())
		Expect(got.Headers["Authorization"]).To(Equal("Bearer x"))
	})

	It("treats an expired record as absent and removes it", func() {
		rec := session.NewRecord("netflix", "default")
		rec.Cookies["sid"] = session.Cookie{Value: "abc"}
		rec.CachedAt = time.Now().Add(-25 * time.Hour).Unix()
		Expect(cache.Store("https://remote", "netflix", "default", rec)).To(Succeed())

		_, ok := cache.Get("https://remote", "netflix", "default")
		Expect(ok).To(BeFalse())
		Expect(cache.List("")).To(BeEmpty())
	})

	It("deletes a record and prunes empty parents", func() {
		rec := session.NewRecord("netflix", "default")
		Expect(cache.Store("https://remote", "netflix", "default", rec)).To(Succeed())

		deleted, err := cache.Delete("https://remote", "netflix", "default")
		Expect(err).NotTo(HaveOccurred())
		Expect(deleted).To(BeTrue())
		Expect(cache.List("")).To(BeEmpty())
	})

	It("cleans up only expired records", func() {
		fresh := session.NewRecord("netflix", "default")
		stale := session.NewRecord("hulu", "default")
		stale.CachedAt = time.Now().Add(-48 * time.Hour).Unix()
		Expect(cache.Store("https://remote", "netflix", "default", fresh)).To(Succeed())
		Expect(cache.Store("https://remote", "hulu", "default", stale)).To(Succeed())

		removed, err := cache.CleanupExpired()
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(Equal(1))
		Expect(cache.List("")).To(HaveLen(1))
	})
})
