package fileadapter_test

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/unshackle-core/fileadapter"
)

func TestFileAdapter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "fileadapter")
}

var _ = Describe("Handler", func() {
	It("streams an existing file with status 200 and a correct Content-Length", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "playlist.m3u8")
		Expect(os.WriteFile(path, []byte("#EXTM3U\n"), 0o644)).To(Succeed())

		h := fileadapter.New()
		req := &http.Request{URL: &url.URL{Scheme: "file", Path: path}}
		resp, err := h.RoundTrip(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Length")).To(Equal("8"))
	})

	It("returns 404 with the error message as body on read failure", func() {
		h := fileadapter.New()
		req := &http.Request{URL: &url.URL{Scheme: "file", Path: "/no/such/file"}}
		resp, err := h.RoundTrip(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		b, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(ContainSubstring("/no/such/file"))
	})

	It("rejects non-file schemes", func() {
		h := fileadapter.New()
		req := &http.Request{URL: &url.URL{Scheme: "http", Path: "/x"}}
		_, err := h.RoundTrip(req)
		Expect(err).To(HaveOccurred())
	})
})
