package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_SnapshotAndHandler(t *testing.T) {
	m := New()
	m.IncRequests()
	m.IncRequests()
	m.IncNoTargets()
	m.IncTokenExchanges()
	m.IncExchangeFailures()
	m.AddDelivered(3)
	m.AddFailed(2)
	m.IncSuppressed()

	want := Snapshot{
		Requests:         2,
		NoTargets:        1,
		TokenExchanges:   1,
		ExchangeFailures: 1,
		Delivered:        3,
		Failed:           2,
		Suppressed:       1,
	}
	assert.Equal(t, want, m.Snapshot())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, want, got)
}
