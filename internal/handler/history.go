package handler

import (
	"net/http"

	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/internal/service"
)

// HistoryHandler handles the session history list.
type HistoryHandler struct {
	pager *service.HistoryPager
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(pager *service.HistoryPager) *HistoryHandler {
	return &HistoryHandler{pager: pager}
}

// HistoryResponse is the accumulated history list.
type HistoryResponse struct {
	Items   []model.SessionSummary `json:"items"`
	Cursor  model.PaginationCursor `json:"cursor"`
	HasMore bool                   `json:"has_more"`
}

// Open handles GET /api/chat/history
func (h *HistoryHandler) Open(w http.ResponseWriter, r *http.Request) {
	items, err := h.pager.Open(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.response(items))
}

// Next handles POST /api/chat/history/next
func (h *HistoryHandler) Next(w http.ResponseWriter, r *http.Request) {
	items, _, err := h.pager.LoadNextPage(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.response(items))
}

func (h *HistoryHandler) response(items []model.SessionSummary) *HistoryResponse {
	if items == nil {
		items = []model.SessionSummary{}
	}
	return &HistoryResponse{
		Items:   items,
		Cursor:  h.pager.Cursor(),
		HasMore: h.pager.HasMore(),
	}
}
