// Package fileadapter lets the download pipeline consume file:// URLs the
// same way it consumes http(s):// ones, since generated HLS playlists and
// DASH manifests are materialized to disk before the pipeline ever sees them.
package fileadapter

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Handler serves file:// URLs as an http.RoundTripper so callers can point
// an ordinary HTTP client at one without special-casing the scheme.
type Handler struct{}

// New returns a Handler.
func New() *Handler { return &Handler{} }

// RoundTrip implements http.RoundTripper for the file scheme. Any other
// scheme is an error — register this only on a transport dedicated to it.
func (h *Handler) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "file" {
		return nil, fmt.Errorf("fileadapter: unsupported scheme %q", req.URL.Scheme)
	}

	path := filePath(req.URL)
	f, err := os.Open(path)
	if err != nil {
		return notFound(req, err), nil
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return notFound(req, err), nil
	}
	if info.IsDir() {
		f.Close()
		return notFound(req, fmt.Errorf("%s is a directory", path)), nil
	}

	contentType, err := mimetype.DetectFile(path)
	mimeType := "application/octet-stream"
	if err == nil && contentType != nil {
		mimeType = contentType.String()
	}

	header := http.Header{}
	header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	header.Set("Content-Type", mimeType)

	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          f,
		ContentLength: info.Size(),
		Request:       req,
	}, nil
}

func filePath(u *url.URL) string {
	if u.Path != "" {
		return u.Path
	}
	return u.Opaque
}

func notFound(req *http.Request, cause error) *http.Response {
	body := io.NopCloser(strings.NewReader(cause.Error()))
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Status:     "404 Not Found",
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Body:       body,
		Request:    req,
	}
}
