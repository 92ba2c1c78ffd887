package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/unshackle-core/config"
)

var _ = Describe("Load", func() {
	var envKeys = []string{
		"LISTEN_ADDR", "CONFIG_PATH", "SHUTDOWN_TIMEOUT", "RATE_LIMIT",
		"RATE_LIMIT_WINDOW", "DISCOVERY_REFRESH", "DOWNLOAD_WORKERS", "JOB_RETENTION",
	}

	var saved map[string]string

	BeforeEach(func() {
		saved = make(map[string]string, len(envKeys))
		for _, k := range envKeys {
			saved[k] = os.Getenv(k)
			Expect(os.Unsetenv(k)).To(Succeed())
		}
	})

	AfterEach(func() {
		for k, v := range saved {
			if v == "" {
				Expect(os.Unsetenv(k)).To(Succeed())
			} else {
				Expect(os.Setenv(k, v)).To(Succeed())
			}
		}
	})

	It("returns defaults when no env vars are set", func() {
		cfg, err := config.Load()
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.ListenAddr).To(Equal(":9080"))
		Expect(cfg.ConfigPath).To(Equal("unshackle.yaml"))
		Expect(cfg.ShutdownTimeout).To(Equal(15 * time.Second))
		Expect(cfg.RateLimit).To(Equal(120))
		Expect(cfg.RateLimitWindow).To(Equal(time.Minute))
		Expect(cfg.DiscoveryRefresh).To(Equal("@every 10m"))
		Expect(cfg.DownloadWorkers).To(Equal(3))
		Expect(cfg.JobRetention).To(Equal(30 * time.Minute))
	})

	It("reads values from env vars", func() {
		Expect(os.Setenv("LISTEN_ADDR", ":9999")).To(Succeed())
		Expect(os.Setenv("RATE_LIMIT", "50")).To(Succeed())
		Expect(os.Setenv("DOWNLOAD_WORKERS", "5")).To(Succeed())

		cfg, err := config.Load()
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.ListenAddr).To(Equal(":9999"))
		Expect(cfg.RateLimit).To(Equal(50))
		Expect(cfg.DownloadWorkers).To(Equal(5))
	})

	It("returns an error for an invalid duration", func() {
		Expect(os.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")).To(Succeed())

		_, err := config.Load()
		Expect(err).To(HaveOccurred())
	})

	It("returns an error for an invalid int", func() {
		Expect(os.Setenv("RATE_LIMIT", "not-a-number")).To(Succeed())

		_, err := config.Load()
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("LoadDocument", func() {
	It("overlays YAML onto the documented defaults", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "unshackle.yaml")
		Expect(os.WriteFile(path, []byte(`
directories:
  downloads: /data/downloads
serve:
  api_secret: s3cr3t
  api_keys:
    - name: ci
      hashed_key: "$2a$10$abc"
      tier: premium
      allowed_cdms: ["*"]
remote_services:
  - name: origin
    url: https://origin.example.com
    api_key: key123
title_cache_time: 60
`), 0o644)).To(Succeed())

		doc, err := config.LoadDocument(path)
		Expect(err).NotTo(HaveOccurred())

		Expect(doc.Directories.Downloads).To(Equal("/data/downloads"))
		Expect(doc.Serve.APISecret).To(Equal("s3cr3t"))
		Expect(doc.Serve.APIKeys).To(HaveLen(1))
		Expect(doc.Serve.APIKeys[0].Tier).To(Equal("premium"))
		Expect(doc.RemoteServices).To(HaveLen(1))
		Expect(doc.RemoteServices[0].URL).To(Equal("https://origin.example.com"))

		// Defaults survive when not overridden by the YAML document.
		Expect(doc.TitleCacheEnabled).To(BeTrue())
		Expect(doc.TitleCacheTime).To(Equal(60))
		Expect(doc.TitleCacheMaxRetention).To(Equal(86400))
		Expect(doc.OutputTemplate.Movies).To(Equal("{title} ({year}) {quality}"))
	})

	It("returns an error when the file does not exist", func() {
		_, err := config.LoadDocument("/nonexistent/unshackle.yaml")
		Expect(err).To(HaveOccurred())
	})

	It("returns an error for invalid YAML", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "unshackle.yaml")
		Expect(os.WriteFile(path, []byte("not: [valid"), 0o644)).To(Succeed())

		_, err := config.LoadDocument(path)
		Expect(err).To(HaveOccurred())
	})
})
