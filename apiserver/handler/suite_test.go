package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/unshackle-core/apiserver"
	"github.com/ddevcap/unshackle-core/apiserver/handler"
	"github.com/ddevcap/unshackle-core/service"
)

func TestHandlers(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "apiserver/handler")
}

// doRequest fires an HTTP request against handler r and returns the
// recorder. body is JSON-encoded when non-nil.
func doRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, path, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doPost(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	return doRequest(r, http.MethodPost, path, body)
}

// seKey is the "{season}x{number}" key fakeService keys its per-episode
// track results and errors by.
func seKey(season, number int) string {
	return fmt.Sprintf("%dx%d", season, number)
}

// fakeService is a minimal service.Service double: Authenticate's outcome
// and GetTitles/GetTracks' results are configured per test.
type fakeService struct {
	authErr error

	titles []service.Title

	tracksByKey   map[string]service.Tracks
	trackErrByKey map[string]error
}

func (f *fakeService) Authenticate(ctx context.Context, cookies []service.Cookie, cred *service.Credential) error {
	return f.authErr
}

func (f *fakeService) Search(ctx context.Context, query string) ([]service.SearchResult, error) {
	return nil, nil
}

func (f *fakeService) GetTitles(ctx context.Context) ([]service.Title, error) {
	return f.titles, nil
}

func (f *fakeService) GetTracks(ctx context.Context, title service.Title) (service.Tracks, error) {
	key := seKey(title.Season, title.Number)
	if err, ok := f.trackErrByKey[key]; ok {
		return service.Tracks{}, err
	}
	return f.tracksByKey[key], nil
}

func (f *fakeService) GetChapters(ctx context.Context, title service.Title) ([]service.Chapter, error) {
	return nil, nil
}

func (f *fakeService) Session() *service.SessionAccessor {
	return &service.SessionAccessor{Cookies: []service.Cookie{{Name: "sid", Value: "abc123"}}}
}

// fakeResolver implements handler.Resolver, handing back one fixed
// service.Service (or a fixed resolution error) regardless of tag.
type fakeResolver struct {
	svc        service.Service
	resolveErr error
}

func (f *fakeResolver) Resolve(ctx context.Context, tag string, svcCtx service.Context) (service.Service, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.svc, nil
}

func (f *fakeResolver) Descriptors() []service.Descriptor { return nil }

// newTestRouter builds the real gin router (real middleware, real routes)
// over a fake Resolver, so specs exercise the actual handler/middleware
// wiring rather than calling handler functions directly.
func newTestRouter(resolver *fakeResolver) http.Handler {
	gin.SetMode(gin.TestMode)
	deps := &handler.Deps{Registry: resolver}
	router, _ := apiserver.NewRouter(deps, apiserver.RouterConfig{}, handler.NewJobStreamHub())
	return router
}
