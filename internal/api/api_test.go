package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oho/hikmara/internal/pipeline"
	"github.com/oho/hikmara/internal/pipeline/extractors"
	"github.com/oho/hikmara/internal/storage"
)

type testEnv struct {
	db     *storage.Database
	router chi.Router
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	learner, err := pipeline.NewLearner(db, pipeline.NewTokenizer(pipeline.TokenizerWords, nil), nil)
	require.NoError(t, err)
	in, err := pipeline.NewIngestor(learner, extractors.CreateDefaultRegistry("go"))
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Mount("/concepts", ConceptsRouter(db, learner))
	r.Mount("/ingest", IngestRouter(pipeline.NewOrchestrator(in, db, nil), db))
	return &testEnv{db: db, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestLearnConceptStatusCodes(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, "POST", "/concepts", map[string]string{"name": "gravity", "content": "Things fall."})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var out pipeline.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, pipeline.StatusInserted, out.Status)
	assert.Positive(t, out.ID)

	w = env.do(t, "POST", "/concepts", map[string]string{"name": "gravity", "content": "Other."})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "POST", "/concepts", map[string]string{"name": "empty", "content": "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	req := httptest.NewRequest("POST", "/concepts", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConceptCRUD(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.db.Insert(t.Context(), "go_import:github.com/go-chi/chi/v5", "Router.", nil)
	require.NoError(t, err)

	w := env.do(t, "GET", "/concepts/go_import:github.com/go-chi/chi/v5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var c storage.Concept
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, "Router.", c.Content)

	w = env.do(t, "PUT", "/concepts/go_import:github.com/go-chi/chi/v5", map[string]string{"content": "HTTP router."})
	assert.Equal(t, http.StatusOK, w.Code)
	got, err := env.db.Get(t.Context(), "go_import:github.com/go-chi/chi/v5")
	require.NoError(t, err)
	assert.Equal(t, "HTTP router.", got.Content)

	w = env.do(t, "PUT", "/concepts/go_import:github.com/go-chi/chi/v5", map[string]string{"content": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, "PUT", "/concepts/absent", map[string]string{"content": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "DELETE", "/concepts/go_import:github.com/go-chi/chi/v5", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", "/concepts/go_import:github.com/go-chi/chi/v5", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "DELETE", "/concepts/go_import:github.com/go-chi/chi/v5", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListConcepts(t *testing.T) {
	env := setupTestEnv(t)
	for _, n := range []string{"a_sentence_1", "a_sentence_2", "b_sentence_1"} {
		_, err := env.db.Insert(t.Context(), n, "text", nil)
		require.NoError(t, err)
	}

	w := env.do(t, "GET", "/concepts/list?prefix=a_&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []storage.Concept
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	w = env.do(t, "GET", "/concepts/list?prefix=zzz", nil)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestIngestAndRuns(t *testing.T) {
	env := setupTestEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("First. Second."), 0o644))

	w := env.do(t, "POST", "/ingest", map[string]any{"paths": []string{dir}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		OK      bool `json:"ok"`
		Results []struct {
			Run storage.IngestRun `json:"run"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 2, resp.Results[0].Run.Inserted)
	runID := resp.Results[0].Run.ID

	w = env.do(t, "POST", "/ingest", map[string]any{"paths": []string{dir}})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.OK)

	w = env.do(t, "GET", "/ingest/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var runs []storage.IngestRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	w = env.do(t, "GET", "/ingest/runs/"+runID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", "/ingest/runs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIngestRequiresPaths(t *testing.T) {
	env := setupTestEnv(t)
	w := env.do(t, "POST", "/ingest", map[string]any{"paths": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
