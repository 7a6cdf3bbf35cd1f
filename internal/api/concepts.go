package api

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/oho/hikmara/internal/pipeline"
	"github.com/oho/hikmara/internal/storage"
)

const defaultListLimit = 100

type learnRequest struct {
	Name    string  `json:"name"`
	Content string  `json:"content"`
	Source  *string `json:"source"`
}

type updateRequest struct {
	Content string `json:"content"`
}

// ConceptsRouter serves direct store access. Concept names may contain
// slashes, so single-concept routes take the rest of the path as the name.
func ConceptsRouter(store storage.ConceptStore, learner *pipeline.Learner) chi.Router {
	r := chi.NewRouter()

	r.Get("/list", func(w http.ResponseWriter, r *http.Request) {
		concepts, err := store.List(r.Context(), storage.ListOptions{
			Prefix: r.URL.Query().Get("prefix"),
			Source: r.URL.Query().Get("source"),
			Limit:  intParam(r, "limit", defaultListLimit),
			Offset: intParam(r, "offset", 0),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if concepts == nil {
			concepts = []storage.Concept{}
		}
		writeJSON(w, http.StatusOK, concepts)
	})

	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		var req learnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		out := learner.Learn(r.Context(), req.Name, req.Content, req.Source)
		writeJSON(w, learnStatus(out.Status), out)
	})

	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		name := conceptName(r)
		c, err := store.Get(r.Context(), name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if c == nil {
			writeError(w, http.StatusNotFound, "Concept not found")
			return
		}
		writeJSON(w, http.StatusOK, c)
	})

	r.Put("/*", func(w http.ResponseWriter, r *http.Request) {
		var req updateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		name := conceptName(r)
		ok, err := store.Update(r.Context(), name, req.Content)
		switch {
		case errors.Is(err, storage.ErrInvalidConcept):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		case !ok:
			writeError(w, http.StatusNotFound, "Concept not found")
		default:
			writeJSON(w, http.StatusOK, map[string]any{"name": name, "updated": true})
		}
	})

	r.Delete("/*", func(w http.ResponseWriter, r *http.Request) {
		name := conceptName(r)
		ok, err := store.Delete(r.Context(), name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "Concept not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "deleted": true})
	})

	return r
}

func conceptName(r *http.Request) string {
	return chi.URLParam(r, "*")
}

func learnStatus(s pipeline.Status) int {
	switch s {
	case pipeline.StatusInserted:
		return http.StatusCreated
	case pipeline.StatusDuplicate:
		return http.StatusConflict
	case pipeline.StatusInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
