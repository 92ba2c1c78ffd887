package download_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/unshackle-core/download"
	"github.com/ddevcap/unshackle-core/template"
)

func TestDownload(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "download")
}

var _ = Describe("Queue", func() {
	It("runs a submitted job to completion", func() {
		q := download.New(download.Config{Workers: 1, Retention: time.Minute}, func(ctx context.Context, req download.Request, report func(float64)) (*download.Result, error) {
			report(0.5)
			return &download.Result{OutputPaths: []string{"/tmp/out.mp4"}}, nil
		})
		defer q.Stop()

		job := q.Submit(download.Request{ServiceTag: "NF", TitleID: "abc"})
		Eventually(func() download.Status {
			return job.View().Status
		}, time.Second).Should(Equal(download.StatusCompleted))

		snap := job.View()
		Expect(snap.Result.OutputPaths).To(ContainElement("/tmp/out.mp4"))
	})

	It("reports a run failure as the failed status with the error retained", func() {
		q := download.New(download.Config{Workers: 1, Retention: time.Minute}, func(ctx context.Context, req download.Request, report func(float64)) (*download.Result, error) {
			return nil, context.DeadlineExceeded
		})
		defer q.Stop()

		job := q.Submit(download.Request{ServiceTag: "NF", TitleID: "abc"})
		Eventually(func() download.Status {
			return job.View().Status
		}, time.Second).Should(Equal(download.StatusFailed))
		Expect(job.View().Err).To(HaveOccurred())
	})

	It("cancels a running job cooperatively", func() {
		started := make(chan struct{})
		q := download.New(download.Config{Workers: 1, Retention: time.Minute}, func(ctx context.Context, req download.Request, report func(float64)) (*download.Result, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		defer q.Stop()

		job := q.Submit(download.Request{ServiceTag: "NF", TitleID: "abc"})
		<-started
		Expect(q.Cancel(job.ID)).To(Succeed())

		Eventually(func() download.Status {
			return job.View().Status
		}, time.Second).Should(Equal(download.StatusCancelled))
	})

	It("refuses to cancel a job that already finished", func() {
		q := download.New(download.Config{Workers: 1, Retention: time.Minute}, func(ctx context.Context, req download.Request, report func(float64)) (*download.Result, error) {
			return &download.Result{}, nil
		})
		defer q.Stop()

		job := q.Submit(download.Request{ServiceTag: "NF", TitleID: "abc"})
		Eventually(func() download.Status {
			return job.View().Status
		}, time.Second).Should(Equal(download.StatusCompleted))

		Expect(q.Cancel(job.ID)).To(HaveOccurred())
	})

	It("formats OutputName from the configured template at submission time", func() {
		q := download.New(download.Config{
			Workers:   1,
			Retention: time.Minute,
			Templates: download.Templates{Movies: template.New("{title} ({year})")},
		}, func(ctx context.Context, req download.Request, report func(float64)) (*download.Result, error) {
			return &download.Result{}, nil
		})
		defer q.Stop()

		job := q.Submit(download.Request{
			ServiceTag: "NF",
			TitleID:    "abc",
			Kind:       "movie",
			Metadata:   map[string]string{"title": "Example Movie", "year": "2024"},
		})
		Expect(job.OutputName).To(Equal("Example Movie (2024)"))
	})

	It("leaves OutputName empty when the request names no kind", func() {
		q := download.New(download.Config{
			Workers:   1,
			Retention: time.Minute,
			Templates: download.Templates{Movies: template.New("{title}")},
		}, func(ctx context.Context, req download.Request, report func(float64)) (*download.Result, error) {
			return &download.Result{}, nil
		})
		defer q.Stop()

		job := q.Submit(download.Request{ServiceTag: "NF", TitleID: "abc"})
		Expect(job.OutputName).To(BeEmpty())
	})

	It("lists jobs in creation order", func() {
		q := download.New(download.Config{Workers: 2, Retention: time.Minute}, func(ctx context.Context, req download.Request, report func(float64)) (*download.Result, error) {
			return &download.Result{}, nil
		})
		defer q.Stop()

		a := q.Submit(download.Request{TitleID: "a"})
		b := q.Submit(download.Request{TitleID: "b"})

		list := q.List()
		Expect(list).To(HaveLen(2))
		ids := []string{list[0].ID, list[1].ID}
		Expect(ids).To(Equal([]string{minID(a.ID, b.ID), maxID(a.ID, b.ID)}))
	})
})

func minID(a, b string) string {
	if a < b {
		return a
	}
	return b
}

func maxID(a, b string) string {
	if a > b {
		return a
	}
	return b
}
