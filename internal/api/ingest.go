package api

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/oho/hikmara/internal/pipeline"
	"github.com/oho/hikmara/internal/storage"
)

const defaultRunsLimit = 50

type ingestRequest struct {
	Paths []string `json:"paths"`
}

type ingestResponse struct {
	OK      bool                 `json:"ok"`
	Results []pipeline.RunResult `json:"results"`
}

// IngestRouter runs ingestion synchronously and exposes the run log.
func IngestRouter(orch *pipeline.Orchestrator, runs storage.RunLog) chi.Router {
	r := chi.NewRouter()

	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		results, err := orch.Run(r.Context(), req.Paths)
		switch {
		case errors.Is(err, pipeline.ErrBusy):
			writeError(w, http.StatusConflict, err.Error())
			return
		case errors.Is(err, pipeline.ErrNoPaths):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, ingestResponse{OK: pipeline.AllOK(results), Results: results})
	})

	r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
		list, err := runs.ListRuns(r.Context(), intParam(r, "limit", defaultRunsLimit))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if list == nil {
			list = []storage.IngestRun{}
		}
		writeJSON(w, http.StatusOK, list)
	})

	r.Get("/runs/{run_id}", func(w http.ResponseWriter, r *http.Request) {
		run, err := runs.GetRun(r.Context(), chi.URLParam(r, "run_id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	return r
}
