package server

import (
	"encoding/json"
	"net/http"

	"github.com/oho/hikmara/internal/config"
	"github.com/oho/hikmara/internal/storage"
)

type HealthResponse struct {
	Status       string `json:"status"`
	DB           string `json:"db"`
	Backend      string `json:"backend"`
	ConceptCount int    `json:"concept_count"`
	Tokenizer    string `json:"tokenizer"`
	Ingesting    bool   `json:"ingesting"`
	DataDir      string `json:"data_dir"`
	Port         int    `json:"port"`
}

// HealthHandler returns a handler for GET /health.
func HealthHandler(cfg config.Config, store storage.ConceptStore, tokenizer string, busy func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:    "ok",
			DB:        "connected",
			Backend:   cfg.Store.Backend,
			Tokenizer: tokenizer,
			DataDir:   cfg.DataDir,
			Port:      cfg.Port,
		}
		if busy != nil {
			resp.Ingesting = busy()
		}

		if store == nil {
			resp.Status = "degraded"
			resp.DB = "unavailable"
		} else if n, err := store.Count(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.DB = "error: " + err.Error()
		} else {
			resp.ConceptCount = n
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
