package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/transitworks/tripassign/internal/assignment"
)

func TestHealthz(t *testing.T) {
	srv := New()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusBeforeAndAfterRun(t *testing.T) {
	srv := New()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	srv.SetSummary(&assignment.RunSummary{
		Iterations: []assignment.IterationSummary{
			{Iteration: 1, Assigned: 10, Arrived: 9, CapacityGapPct: 10},
		},
	})

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []assignment.IterationSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, 10.0, got[0].CapacityGapPct)
}
