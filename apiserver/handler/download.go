package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ddevcap/unshackle-core/download"
	"github.com/ddevcap/unshackle-core/service"
)

// jobWire is the JSON shape of a Download Job at every lifecycle point.
type jobWire struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	Progress    float64   `json:"progress"`
	CreatedTime time.Time `json:"created_time"`
	OutputName  string    `json:"output_name,omitempty"`
	OutputPaths []string  `json:"output_paths,omitempty"`
	Error       string    `json:"error,omitempty"`
}

func jobToWire(snap download.Snapshot) jobWire {
	w := jobWire{
		JobID:       snap.ID,
		Status:      string(snap.Status),
		Progress:    snap.Progress,
		CreatedTime: snap.CreatedTime,
		OutputName:  snap.OutputName,
	}
	if snap.Result != nil {
		w.OutputPaths = snap.Result.OutputPaths
	}
	if snap.Err != nil {
		w.Error = snap.Err.Error()
	}
	return w
}

// downloadRequestBody is the full track-selection body POSTed to enqueue a
// download job; it reuses requestBody's identity/auth/proxy fields plus the
// service tag, which this endpoint takes in the body rather than the path.
type downloadRequestBody struct {
	requestBody
	Service string `json:"service"`
	// Kind selects the output template to apply: "movie", "series", or
	// "song". Metadata supplies that template's substitution variables.
	Kind     string            `json:"kind,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Download handles POST /api/download: it enqueues a job and returns
// immediately with its initial snapshot.
func (d *Deps) Download(c *gin.Context) {
	var body downloadRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "", "invalid request body")
		return
	}
	if body.Service == "" || body.identifier() == "" {
		writeError(c, http.StatusBadRequest, "", "missing required parameter: service or title")
		return
	}
	if !validateProxy(body.Proxy, body.NoProxy) {
		writeError(c, http.StatusBadRequest, string(service.ErrInvalidProxy), "proxy must be a resolved http(s):// URI")
		return
	}

	job := d.Queue.Submit(download.Request{
		ServiceTag: body.Service,
		TitleID:    body.identifier(),
		Profile:    body.Profile,
		Proxy:      body.Proxy,
		NoProxy:    body.NoProxy,
		Kind:       body.Kind,
		Metadata:   body.Metadata,
	})
	c.JSON(http.StatusAccepted, jobToWire(job.View()))
}

// ListJobs handles GET /api/download/jobs.
func (d *Deps) ListJobs(c *gin.Context) {
	jobs := d.Queue.List()
	out := make([]jobWire, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, jobToWire(job.View()))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

// GetJob handles GET /api/download/jobs/:id.
func (d *Deps) GetJob(c *gin.Context) {
	job, ok := d.Queue.Get(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "", "job not found")
		return
	}
	c.JSON(http.StatusOK, jobToWire(job.View()))
}

// CancelJob handles DELETE /api/download/jobs/:id.
func (d *Deps) CancelJob(c *gin.Context) {
	if err := d.Queue.Cancel(c.Param("id")); err != nil {
		writeError(c, http.StatusConflict, "", err.Error())
		return
	}
	job, _ := d.Queue.Get(c.Param("id"))
	c.JSON(http.StatusOK, jobToWire(job.View()))
}
