package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	m := New()

	m.ObserveRun(RunStats{
		Views:        map[string]int{"raw": 9, "variant": 4},
		FilteredRows: 5,
		Stages:       map[string]time.Duration{"path_filter": time.Millisecond},
	})
	m.ObserveFailure()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.rows.WithLabelValues("variant")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.filteredRows))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
	assert.Positive(t, testutil.ToFloat64(m.lastSuccess))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRequest("/api/v1/views", http.StatusOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `wrangler_api_requests_total{code="200",route="/api/v1/views"} 1`))
	assert.Contains(t, body, "go_goroutines")
}
