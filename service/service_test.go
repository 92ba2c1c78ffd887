package service_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/unshackle-core/service"
)

func TestService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "service")
}

var _ = Describe("Title", func() {
	It("formats a movie as Name (Year)", func() {
		title := service.Title{Name: "Arrival", Year: 2016, TitleKind: service.KindMovie}
		Expect(title.String()).To(Equal("Arrival (2016)"))
	})

	It("formats an episode as Series SxxEyy", func() {
		title := service.Title{
			SeriesTitle: "The Wire", Season: 1, Number: 3,
			TitleKind: service.KindEpisode,
		}
		Expect(title.String()).To(Equal("The Wire S01E03"))
	})

	It("treats season zero episodes as specials", func() {
		title := service.Title{TitleKind: service.KindEpisode, Season: 0}
		Expect(title.IsSpecial()).To(BeTrue())
	})

	It("builds a cache key from service tag and id", func() {
		title := service.Title{ID: "abc123"}
		Expect(title.CacheKey("netflix")).To(Equal("netflix/abc123"))
	})
})

var _ = Describe("Tracks", func() {
	It("routes each kind into its own slice", func() {
		var tracks service.Tracks
		tracks.Add(service.Track{TrackKind: service.TrackVideo, ID: "v1"})
		tracks.Add(service.Track{TrackKind: service.TrackAudio, ID: "a1"})
		tracks.Add(service.Track{TrackKind: service.TrackSubtitle, ID: "s1"})

		Expect(tracks.Video).To(HaveLen(1))
		Expect(tracks.Audio).To(HaveLen(1))
		Expect(tracks.Subtitles).To(HaveLen(1))
	})
})

var _ = Describe("Descriptor", func() {
	d := service.Descriptor{Tag: "NF", Aliases: []string{"Netflix", "netflix-dl"}}

	It("matches its own tag case-insensitively", func() {
		Expect(d.MatchesTag("nf")).To(BeTrue())
	})

	It("matches any alias case-insensitively", func() {
		Expect(d.MatchesTag("NETFLIX")).To(BeTrue())
	})

	It("rejects an unrelated tag", func() {
		Expect(d.MatchesTag("disney")).To(BeFalse())
	})
})

var _ = Describe("error taxonomy", func() {
	It("unwraps NetworkError to the wrapped cause", func() {
		cause := &service.NotAvailableError{What: "title"}
		err := &service.NetworkError{Op: "GET /x", Err: cause}
		Expect(err.Unwrap()).To(Equal(cause))
	})
})
