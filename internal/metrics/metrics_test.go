package metrics_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ErlanBelekov/court-capture/internal/health"
	"github.com/ErlanBelekov/court-capture/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func serve(t *testing.T, db health.Pinger, path string) (*httptest.ResponseRecorder, health.HealthResult) {
	t.Helper()
	checker := health.NewChecker(db, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	srv := metrics.NewServer(":0", checker)

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body health.HealthResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestServer_Probes(t *testing.T) {
	w, body := serve(t, stubPinger{err: errors.New("down")}, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "up", body.Status)

	w, body = serve(t, stubPinger{}, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "up", body.Checks["postgres"].Status)

	w, body = serve(t, stubPinger{err: errors.New("down")}, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "down", body.Status)
}
