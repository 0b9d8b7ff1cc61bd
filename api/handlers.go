/*
handlers.go - HTTP API handlers for the carnival agenda service

PURPOSE:
  Exposes the stored agenda over REST and the feed sync trigger for
  admins. Handles HTTP request/response and JSON serialization; all the
  reconciliation logic lives in the feed package.

ENDPOINTS:
  Health:
    GET  /health                  Liveness probe

  Admin:
    POST /admin/sync              Trigger a feed sync (X-Admin-Token)

  Read API (consumed by the agenda web app):
    GET  /v1/parades              List parades (from/to/neighborhood/q, paginated)
    GET  /v1/parades/{id}         Single parade
    GET  /v1/services             List services (service_type/neighborhood/q)
    GET  /v1/service-types        List service types
    GET  /v1/neighborhoods        List neighborhoods

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid query/path parameters
  - 401: Missing or wrong admin token
  - 404: Resource not found
  - 502: Upstream feed unreachable or malformed
  - 500: Internal errors

SEE ALSO:
  - dto.go: Response data structures
  - server.go: Router setup and middleware
  - feed/sync.go: The sync pipeline behind /admin/sync
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ljunqueira/AgendaBlocoCarnaval/feed"
	"github.com/ljunqueira/AgendaBlocoCarnaval/store/sqlite"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Syncer     *feed.Syncer
	AdminToken string
}

// NewHandler creates a new handler.
func NewHandler(store *sqlite.Store, syncer *feed.Syncer, adminToken string) *Handler {
	return &Handler{
		Store:      store,
		Syncer:     syncer,
		AdminToken: adminToken,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health is a trivial liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// =============================================================================
// ADMIN SYNC TRIGGER
// =============================================================================

// SyncFeed triggers one feed reconciliation pass. Authenticated by the
// X-Admin-Token shared secret; no processing happens on a bad token.
func (h *Handler) SyncFeed(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Admin-Token") != h.AdminToken {
		writeError(w, http.StatusUnauthorized, "Invalid admin token", nil)
		return
	}

	result, err := h.Syncer.Sync(r.Context())
	if err != nil {
		var fetchErr *feed.FetchError
		if errors.As(err, &fetchErr) {
			writeError(w, http.StatusBadGateway, "Failed to fetch feed", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to sync feed", err)
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		Status:     result.Status,
		LastUpdate: result.LastUpdate,
	})
}

// =============================================================================
// READ API
// =============================================================================

// ListParades returns parades ordered by start time.
func (h *Handler) ListParades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := sqlite.ParadeFilter{
		Query:   q.Get("q"),
		Page:    intParam(q.Get("page")),
		PerPage: intParam(q.Get("per_page")),
	}

	var err error
	if filter.From, err = dateParam(q.Get("from"), false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	if filter.To, err = dateParam(q.Get("to"), true); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}
	if filter.NeighborhoodID, err = idParam(q.Get("neighborhood")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid neighborhood id", err)
		return
	}

	parades, total, err := h.Store.ListParades(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list parades", err)
		return
	}

	items := make([]ParadeDTO, len(parades))
	for i, p := range parades {
		items[i] = paradeDTO(p)
	}

	writeJSON(w, http.StatusOK, ParadesResponse{Items: items, Total: total})
}

// GetParade returns a single parade.
func (h *Handler) GetParade(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid parade id", err)
		return
	}

	parade, err := h.Store.GetParade(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get parade", err)
		return
	}
	if parade == nil {
		writeError(w, http.StatusNotFound, "Parade not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, paradeDTO(*parade))
}

// ListServices returns services ordered by name.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := sqlite.ServiceFilter{Query: q.Get("q")}

	var err error
	if filter.ServiceTypeID, err = idParam(q.Get("service_type")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid service_type id", err)
		return
	}
	if filter.NeighborhoodID, err = idParam(q.Get("neighborhood")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid neighborhood id", err)
		return
	}

	services, err := h.Store.ListServices(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list services", err)
		return
	}

	items := make([]ServiceDTO, len(services))
	for i, svc := range services {
		items[i] = serviceDTO(svc)
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ListServiceTypes returns all service types.
func (h *Handler) ListServiceTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Store.ListServiceTypes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list service types", err)
		return
	}

	items := make([]ServiceTypeDTO, len(types))
	for i, st := range types {
		items[i] = ServiceTypeDTO{ID: st.ID, Name: st.Name}
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ListNeighborhoods returns all neighborhoods.
func (h *Handler) ListNeighborhoods(w http.ResponseWriter, r *http.Request) {
	neighborhoods, err := h.Store.ListNeighborhoods(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list neighborhoods", err)
		return
	}

	items := make([]NeighborhoodDTO, len(neighborhoods))
	for i, n := range neighborhoods {
		items[i] = NeighborhoodDTO{ID: n.ID, Name: n.Name}
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// =============================================================================
// PARAMETER PARSING
// =============================================================================

func intParam(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

func idParam(value string) (*int64, error) {
	if value == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// dateParam parses a YYYY-MM-DD filter bound in the feed's local
// timezone. The upper bound is pushed to end of day so "to" is inclusive.
func dateParam(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, feed.LocalTZ())
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
