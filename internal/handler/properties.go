package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/estate-assistant/internal/middleware"
	"github.com/capitalize-ai/estate-assistant/internal/store"
)

// PropertyHandler handles the recently viewed and saved property lists.
type PropertyHandler struct {
	store *store.Store
}

// NewPropertyHandler creates a new property handler.
func NewPropertyHandler(st *store.Store) *PropertyHandler {
	return &PropertyHandler{store: st}
}

// Recent handles GET /api/properties/recent
func (h *PropertyHandler) Recent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"items": nonNil(h.store.RecentlyViewed())})
}

// View handles POST /api/properties/{id}/view
func (h *PropertyHandler) View(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyParam(w, r)
	if !ok {
		return
	}
	h.store.AddRecentlyViewed(id)
	w.WriteHeader(http.StatusNoContent)
}

// Saved handles GET /api/properties/saved
func (h *PropertyHandler) Saved(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"items": nonNil(h.store.SavedProperties())})
}

// Save handles PUT /api/properties/{id}/save
func (h *PropertyHandler) Save(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyParam(w, r)
	if !ok {
		return
	}
	h.store.SaveProperty(id)
	w.WriteHeader(http.StatusNoContent)
}

// Unsave handles DELETE /api/properties/{id}/save
func (h *PropertyHandler) Unsave(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyParam(w, r)
	if !ok {
		return
	}
	h.store.UnsaveProperty(id)
	w.WriteHeader(http.StatusNoContent)
}

func propertyParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidatePropertyID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
