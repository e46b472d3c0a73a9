package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/r3co87/iris/internal/config"
	"github.com/r3co87/iris/internal/driver"
	"github.com/r3co87/iris/internal/model"
)

type fakeFetcher struct {
	result  model.FetchResult
	results []model.FetchResult
	batchErr error
	lastReq model.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req model.FetchRequest) model.FetchResult {
	f.lastReq = req
	return f.result
}

func (f *fakeFetcher) FetchBatch(_ context.Context, reqs []model.FetchRequest) ([]model.FetchResult, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	return f.results, nil
}

type fakeCacheStore struct {
	up      bool
	found   bool
	invErr  error
	hits    int64
	misses  int64
}

func (c *fakeCacheStore) Invalidate(_ context.Context, _ string) (bool, error) {
	return c.found, c.invErr
}

func (c *fakeCacheStore) Up() bool { return c.up }

func (c *fakeCacheStore) Stats() (int64, int64) { return c.hits, c.misses }

type nopDriver struct{ up bool }

func (d *nopDriver) NewPage(_ context.Context) (driver.Page, error) { return nil, nil }
func (d *nopDriver) Up() bool                                       { return d.up }
func (d *nopDriver) Close(_ context.Context) error                  { return nil }

type downDriver struct{}

func (d *downDriver) NewPage(_ context.Context) (driver.Page, error) { return nil, nil }
func (d *downDriver) Up() bool                                       { return false }
func (d *downDriver) Close(_ context.Context) error                  { return nil }

func newTestServer(fetcher Fetcher, cacheSt CacheStore) *Server {
	return NewServer(fetcher, cacheSt, &nopDriver{up: true}, zap.NewNop(), config.Config{BrowserType: config.BrowserChromium}, "test")
}

func TestServer_Fetch_Succeeds(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: model.FetchResult{URL: "https://example.com", StatusCode: 200}}
	server := newTestServer(fetcher, &fakeCacheStore{})

	body := []byte(`{"url":"https://example.com","extract_text":true}`)
	req := httptest.NewRequest(http.MethodPost, "/fetch", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "example.com")
	require.True(t, fetcher.lastReq.ExtractText)
}

func TestServer_Fetch_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeFetcher{}, &fakeCacheStore{})
	req := httptest.NewRequest(http.MethodPost, "/fetch", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestServer_Fetch_MissingURL(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeFetcher{}, &fakeCacheStore{})
	req := httptest.NewRequest(http.MethodPost, "/fetch", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "url required")
}

func TestServer_Fetch_ErrorResultStillReturns200(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: model.FetchResult{
		URL:   "https://example.com",
		Error: model.NewFetchError(model.ErrInvalidURL, "unsupported scheme"),
	}}
	server := newTestServer(fetcher, &fakeCacheStore{})

	req := httptest.NewRequest(http.MethodPost, "/fetch", bytes.NewBufferString(`{"url":"ftp://x"}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"invalid_url"`)
}

func TestServer_Batch_Succeeds(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{results: []model.FetchResult{
		{URL: "https://a.example.com"},
		{URL: "https://b.example.com"},
	}}
	server := newTestServer(fetcher, &fakeCacheStore{})

	body := []byte(`{"requests":[{"url":"https://a.example.com"},{"url":"https://b.example.com"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "a.example.com")
	require.Contains(t, rec.Body.String(), "b.example.com")
}

func TestServer_Batch_EmptyRequests(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeFetcher{}, &fakeCacheStore{})
	req := httptest.NewRequest(http.MethodPost, "/batch", bytes.NewBufferString(`{"requests":[]}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestServer_InvalidateCache_ValidHashReturns204(t *testing.T) {
	t.Parallel()

	hash := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	server := newTestServer(&fakeFetcher{}, &fakeCacheStore{found: true})
	req := httptest.NewRequest(http.MethodDelete, "/cache/"+hash, nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Body.String())
}

func TestServer_InvalidateCache_MalformedHashReturns400(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeFetcher{}, &fakeCacheStore{found: true})
	req := httptest.NewRequest(http.MethodDelete, "/cache/not-a-hash", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_InvalidateCache_AbsentEntryStillReturns204(t *testing.T) {
	t.Parallel()

	hash := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	server := newTestServer(&fakeFetcher{}, &fakeCacheStore{found: false})
	req := httptest.NewRequest(http.MethodDelete, "/cache/"+hash, nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_Health_ReportsDegradedWhenBrowserDown(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeFetcher{}, &fakeCacheStore{up: true}, &downDriver{}, zap.NewNop(), config.Config{BrowserType: config.BrowserChromium}, "test")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "degraded")
}
