package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metrocli/internal/pipeline"
)

func testRouter(store *StatusStore) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, store.Snapshot())
	})
	return r
}

func TestStatusStoreLifecycle(t *testing.T) {
	store := NewStatusStore("run-123")

	status := store.Snapshot()
	assert.Equal(t, "run-123", status.RunID)
	assert.Equal(t, PhasePending, status.Phase)

	store.SetPhase(PhaseRunning)
	assert.Equal(t, PhaseRunning, store.Snapshot().Phase)

	results := []pipeline.StageResult{
		{ID: "load-dimensions", Status: pipeline.StageCompleted, Duration: 5 * time.Millisecond},
		{ID: "resolve-keys", Status: pipeline.StageCompleted, Duration: 2 * time.Millisecond},
	}
	store.SetResults(results, nil)

	status = store.Snapshot()
	assert.Equal(t, PhaseCompleted, status.Phase)
	assert.Empty(t, status.Error)
	require.Len(t, status.Stages, 2)
}

func TestStatusStoreFailedRun(t *testing.T) {
	store := NewStatusStore("run-456")
	store.SetResults([]pipeline.StageResult{
		{ID: "load-dimensions", Status: pipeline.StageFailed, Error: "crosswalk[Z1]: weights sum to zero"},
	}, errors.New("stage load-dimensions: structural violation"))

	status := store.Snapshot()
	assert.Equal(t, PhaseFailed, status.Phase)
	assert.Contains(t, status.Error, "load-dimensions")
}

func TestStatusStoreSnapshotIsCopy(t *testing.T) {
	store := NewStatusStore("run-789")
	store.SetResults([]pipeline.StageResult{{ID: "a", Status: pipeline.StageCompleted}}, nil)

	snap := store.Snapshot()
	snap.Stages[0].ID = "mutated"

	assert.Equal(t, "a", store.Snapshot().Stages[0].ID)
}

func TestHealthzEndpoint(t *testing.T) {
	router := testRouter(NewStatusStore("run-1"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	store := NewStatusStore("run-2")
	store.SetPhase(PhaseRunning)
	router := testRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var status RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "run-2", status.RunID)
	assert.Equal(t, PhaseRunning, status.Phase)
}
