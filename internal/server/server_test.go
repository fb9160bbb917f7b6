package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/app"
	"github.com/ternarybob/harvester/internal/common"
)

func newTestServer(t *testing.T) (*app.App, *httptest.Server) {
	t.Helper()
	config := common.NewDefaultConfig()
	config.Jobs.SweepSchedule = ""
	config.Export.Dir = t.TempDir()

	application, err := app.New(config, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	srv := httptest.NewServer(New(application).Handler())
	t.Cleanup(srv.Close)
	return application, srv
}

func TestRoutes_Health(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRoutes_ProgressByMethod(t *testing.T) {
	application, srv := newTestServer(t)
	id := application.JobStore.Create("route-job")

	resp, err := http.Get(srv.URL + "/api/scrape/progress?id=" + id)
	require.NoError(t, err)
	var record map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "running", record["status"])

	resp, err = http.Post(srv.URL+"/api/scrape/progress", "application/json", strings.NewReader(`{"id":"route-job","action":"cancel"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stored, ok := application.JobStore.Get(id)
	require.True(t, ok)
	assert.True(t, stored.CancelRequested)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/scrape/progress?id="+id, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRoutes_UnknownAPIPath(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutes_ScrapeRejectsEmptyBody(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/scrape", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMiddleware_PreflightAndRequestID(t *testing.T) {
	_, srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/scrape", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, corsMethods, resp.Header.Get("Access-Control-Allow-Methods"))
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "req-from-dashboard")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "req-from-dashboard", resp.Header.Get(requestIDHeader))
}

func TestMiddleware_RecoversHandlerPanic(t *testing.T) {
	application, _ := newTestServer(t)
	s := New(application)
	h := s.withMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("selector table corrupted")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "internal_error", body["error"])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestStatusRecorder_CountsBytes(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	rec.WriteHeader(http.StatusAccepted)
	_, err := rec.Write([]byte("queued"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, rec.status)
	assert.Equal(t, 6, rec.written)
	_, _, err = rec.Hijack()
	assert.Error(t, err)
}
