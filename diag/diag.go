// Package diag serves a read-only JSON API for inspecting executions.
package diag

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/stages"
)

// NewServeMux returns an *http.ServeMux serving the diagnostics API below /api. catalog is optional;
// without it asset documents are not served.
func NewServeMux(b backend.Backend, catalog stages.Catalog, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}

	h := &handler{b: b, catalog: catalog, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/executions/{id}", h.execution)
	mux.HandleFunc("GET /api/stats", h.stats)
	mux.HandleFunc("GET /api/assets/{key}", h.asset)

	return mux
}

type handler struct {
	b       backend.Backend
	catalog stages.Catalog
	logger  *slog.Logger
}

func (h *handler) execution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	execution := &core.Execution{ID: id}

	state, err := h.b.GetExecutionState(r.Context(), execution)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	events, err := h.b.GetExecutionHistory(r.Context(), execution)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.write(w, newExecutionInfo(id, state, events))
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.b.GetStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.write(w, stats)
}

func (h *handler) asset(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	doc, err := h.catalog.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.write(w, doc)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, backend.ErrExecutionNotFound) || errors.Is(err, stages.ErrAssetNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	h.logger.ErrorContext(r.Context(), "diagnostics request failed", "path", r.URL.Path, "error", err)
	w.WriteHeader(http.StatusInternalServerError)
}

func (h *handler) write(w http.ResponseWriter, v any) {
	w.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding diagnostics response", "error", err)
	}
}
