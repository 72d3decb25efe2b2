package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerServesPrometheusText(t *testing.T) {
	// Touch a collector so the exposition is never empty.
	ObserveHTTPRequest(http.MethodGet, "/healthz", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "harvester_http_requests_total")
	assert.Contains(t, string(body), "harvester_http_request_duration_seconds")
}
