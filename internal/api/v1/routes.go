// Package v1 provides the docs cache control and query endpoints.
package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/toolhive-docs-cache/internal/api/common"
	"github.com/stacklok/toolhive-docs-cache/internal/metadata"
	"github.com/stacklok/toolhive-docs-cache/internal/search"
	"github.com/stacklok/toolhive-docs-cache/internal/service"
	"github.com/stacklok/toolhive-docs-cache/internal/sources"
	pkgsync "github.com/stacklok/toolhive-docs-cache/internal/sync"
)

// MaxImportSize bounds the body of POST /v1/import
const MaxImportSize = 16 << 20

// Routes handles HTTP requests for the v1 endpoints
type Routes struct {
	service service.DocsService
}

// NewRoutes creates a new Routes instance with the given service
func NewRoutes(svc service.DocsService) *Routes {
	return &Routes{service: svc}
}

// Router creates and configures the HTTP router for the v1 endpoints
func Router(svc service.DocsService) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()

	r.Post("/sync", routes.sync)
	r.Get("/sync/status", routes.status)
	r.Post("/scheduler/start", routes.startScheduler)
	r.Post("/scheduler/stop", routes.stopScheduler)

	r.Get("/history", routes.history)
	r.Get("/stale", routes.stale)

	r.Get("/export", routes.export)
	r.Post("/import", routes.importSnapshot)

	r.Get("/sources", routes.listSources)
	r.Route("/sources/{id}", func(r chi.Router) {
		r.Get("/", routes.getSource)
		r.Post("/sync", routes.syncSource)
	})
	r.Get("/search", routes.search)

	return r
}

// SyncRequest is the body of POST /v1/sync
type SyncRequest struct {
	Force      bool     `json:"force"`
	Categories []string `json:"categories,omitempty"`
}

// SourceListResponse is the body of GET /v1/sources
type SourceListResponse struct {
	Sources []service.SourceInfo `json:"sources"`
	Count   int                  `json:"count"`
}

// StaleResponse is the body of GET /v1/stale
type StaleResponse struct {
	Sources []string `json:"sources"`
	MaxAge  string   `json:"maxAge,omitempty"`
}

// sync handles POST /v1/sync
func (routes *Routes) sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		common.WriteErrorResponse(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	opts := pkgsync.SyncOptions{Force: req.Force}
	for _, c := range req.Categories {
		opts.Categories = append(opts.Categories, sources.Category(c))
	}

	result, err := routes.service.Sync(r.Context(), opts)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, result, http.StatusOK)
}

// syncSource handles POST /v1/sources/{id}/sync
func (routes *Routes) syncSource(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	outcome, err := routes.service.SyncSource(r.Context(), id)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	if outcome.Err != nil {
		common.WriteErrorResponse(w, outcome.Err.Error(), http.StatusBadGateway)
		return
	}
	common.WriteJSONResponse(w, outcome, http.StatusOK)
}

// status handles GET /v1/sync/status
func (routes *Routes) status(w http.ResponseWriter, r *http.Request) {
	status, err := routes.service.Status(r.Context())
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, status, http.StatusOK)
}

// startScheduler handles POST /v1/scheduler/start
func (routes *Routes) startScheduler(w http.ResponseWriter, r *http.Request) {
	if err := routes.service.StartScheduler(r.Context()); err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	routes.status(w, r)
}

// stopScheduler handles POST /v1/scheduler/stop
func (routes *Routes) stopScheduler(w http.ResponseWriter, r *http.Request) {
	if err := routes.service.StopScheduler(r.Context()); err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	routes.status(w, r)
}

// history handles GET /v1/history
func (routes *Routes) history(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := []service.Option[service.HistoryOptions]{}

	if source := query.Get("source"); source != "" {
		opts = append(opts, service.WithSourceID(source))
	}
	if changeType := query.Get("type"); changeType != "" {
		opts = append(opts, service.WithChangeType(metadata.ChangeType(changeType)))
	}

	since, ok, err := common.QueryTime(r, "since")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ok {
		opts = append(opts, service.WithSince(since))
	}

	limit, ok, err := common.QueryInt(r, "limit")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ok {
		opts = append(opts, service.WithLimit(limit))
	}

	offset, ok, err := common.QueryInt(r, "offset")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ok {
		opts = append(opts, service.WithOffset(offset))
	}
	if cursor := query.Get("cursor"); cursor != "" {
		opts = append(opts, service.WithCursor(cursor))
	}

	page, err := routes.service.History(r.Context(), opts...)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, page, http.StatusOK)
}

// stale handles GET /v1/stale
func (routes *Routes) stale(w http.ResponseWriter, r *http.Request) {
	opts := []service.Option[service.StaleOptions]{}

	maxAge, ok, err := common.QueryDuration(r, "maxAge")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := StaleResponse{}
	if ok {
		opts = append(opts, service.WithMaxAge(maxAge))
		resp.MaxAge = maxAge.String()
	}
	for _, c := range r.URL.Query()["category"] {
		opts = append(opts, service.WithCategories(sources.Category(c)))
	}

	ids, err := routes.service.StaleSources(r.Context(), opts...)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	resp.Sources = ids
	common.WriteJSONResponse(w, resp, http.StatusOK)
}

// export handles GET /v1/export
func (routes *Routes) export(w http.ResponseWriter, r *http.Request) {
	data, err := routes.service.Export(r.Context())
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="sync-state.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// importSnapshot handles POST /v1/import
func (routes *Routes) importSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxImportSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.WriteErrorResponse(w, "Snapshot too large", http.StatusRequestEntityTooLarge)
			return
		}
		common.WriteErrorResponse(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		common.WriteErrorResponse(w, "Request body is required", http.StatusBadRequest)
		return
	}

	if err := routes.service.Import(r.Context(), data); err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	routes.status(w, r)
}

// listSources handles GET /v1/sources
func (routes *Routes) listSources(w http.ResponseWriter, r *http.Request) {
	infos, err := routes.service.ListSources(r.Context())
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, SourceListResponse{Sources: infos, Count: len(infos)}, http.StatusOK)
}

// getSource handles GET /v1/sources/{id}
func (routes *Routes) getSource(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	doc, err := routes.service.GetSource(r.Context(), id)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, doc, http.StatusOK)
}

// search handles GET /v1/search
func (routes *Routes) search(w http.ResponseWriter, r *http.Request) {
	q := search.Query{Text: strings.TrimSpace(r.URL.Query().Get("q"))}
	if q.Text == "" {
		common.WriteErrorResponse(w, "Query parameter q is required", http.StatusBadRequest)
		return
	}

	limit, ok, err := common.QueryInt(r, "limit")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ok {
		if limit <= 0 {
			common.WriteErrorResponse(w, "Invalid limit parameter: must be positive", http.StatusBadRequest)
			return
		}
		q.Limit = limit
	}
	if category := r.URL.Query().Get("category"); category != "" {
		q.Filters = map[string]string{"category": category}
	}

	resp, err := routes.service.Search(r.Context(), q)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, resp, http.StatusOK)
}
