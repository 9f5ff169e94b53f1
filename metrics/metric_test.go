package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/catalogsync_backend/reconcile"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCountsActions(t *testing.T) {
	r := Recorder{}
	before := testutil.ToFloat64(reconcileActions.WithLabelValues("volume", string(reconcile.CreateExternal), reconcile.OutcomeApplied))
	r.ObserveAction("volume", reconcile.CreateExternal, reconcile.OutcomeApplied)
	r.ObserveAction("volume", reconcile.CreateExternal, reconcile.OutcomeApplied)
	after := testutil.ToFloat64(reconcileActions.WithLabelValues("volume", string(reconcile.CreateExternal), reconcile.OutcomeApplied))
	assert.Equal(t, before+2, after)

	mismatches := testutil.ToFloat64(identityMismatches.WithLabelValues("schema"))
	r.ObserveMismatch("schema")
	assert.Equal(t, mismatches+1, testutil.ToFloat64(identityMismatches.WithLabelValues("schema")))

	r.ObservePass("schema", reconcile.PassReviewLocal, 20*time.Millisecond)
	assert.Positive(t, testutil.CollectAndCount(reconcilePassDuration))
}

func TestHandlerExposesRegistry(t *testing.T) {
	RecordSyncRun("success")
	RecordHTTPRequest(http.MethodGet, "/healthz", http.StatusNoContent, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "catalogsync_worker_runs_total"))
	assert.True(t, strings.Contains(body, "catalogsync_http_requests_total"))
}
