package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/estate-assistant/internal/backend"
	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
	"github.com/capitalize-ai/estate-assistant/pkg/metrics"
)

// DefaultPageSize is the history page size when none is configured.
const DefaultPageSize = 10

// HistoryPager accumulates session summaries page by page, newest first as
// the backend returns them.
type HistoryPager struct {
	backend  backend.Backend
	pageSize int
	logger   *logger.Logger

	mu      sync.Mutex
	cursor  model.PaginationCursor
	items   []model.SessionSummary
	loading bool
	stale   bool
	// gen changes on every first-page load so that responses for an older
	// listing are discarded.
	gen uint64
}

// NewHistoryPager creates a pager; pageSize <= 0 selects DefaultPageSize.
func NewHistoryPager(b backend.Backend, pageSize int, log *logger.Logger) *HistoryPager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if log == nil {
		log = logger.Global()
	}
	return &HistoryPager{
		backend:  b,
		pageSize: pageSize,
		logger:   log.Named("history"),
		cursor:   model.PaginationCursor{PageSize: pageSize},
		stale:    true,
	}
}

// Open is called when the history view is shown. It always reloads from page one.
func (h *HistoryPager) Open(ctx context.Context) ([]model.SessionSummary, error) {
	return h.LoadFirstPage(ctx)
}

// LoadFirstPage resets the cursor and replaces the accumulated list.
func (h *HistoryPager) LoadFirstPage(ctx context.Context) ([]model.SessionSummary, error) {
	h.mu.Lock()
	h.gen++
	gen := h.gen
	h.loading = true
	h.cursor = model.PaginationCursor{PageSize: h.pageSize}
	h.items = nil
	h.mu.Unlock()

	page, err := h.backend.ListSessions(ctx, 1, h.pageSize, "")
	metrics.HistoryPageLoads.WithLabelValues("first").Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.gen {
		return h.snapshotLocked(), nil
	}
	h.loading = false
	if err != nil {
		h.logger.Error("failed to load history", zap.Error(err))
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	h.items = append([]model.SessionSummary(nil), page.Items...)
	h.cursor = model.PaginationCursor{Page: 1, PageSize: h.pageSize, TotalPages: page.TotalPages}
	h.stale = false
	return h.snapshotLocked(), nil
}

// LoadNextPage appends the next page. It is a no-op when every page is loaded
// or a load is already in flight; issued reports whether a request was made.
func (h *HistoryPager) LoadNextPage(ctx context.Context) (items []model.SessionSummary, issued bool, err error) {
	h.mu.Lock()
	if h.loading || !h.cursor.HasMore() {
		items = h.snapshotLocked()
		h.mu.Unlock()
		return items, false, nil
	}
	h.loading = true
	gen := h.gen
	next := h.cursor.Page + 1
	h.mu.Unlock()

	page, err := h.backend.ListSessions(ctx, next, h.pageSize, "")
	metrics.HistoryPageLoads.WithLabelValues("next").Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.gen {
		return h.snapshotLocked(), true, nil
	}
	h.loading = false
	if err != nil {
		h.logger.Error("failed to load history page", zap.Int("page", next), zap.Error(err))
		return nil, true, fmt.Errorf("failed to load history page %d: %w", next, err)
	}

	h.items = append(h.items, page.Items...)
	h.cursor.Page = next
	h.cursor.TotalPages = page.TotalPages
	return h.snapshotLocked(), true, nil
}

// Invalidate marks the accumulated list stale after a session was created or deleted.
func (h *HistoryPager) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stale = true
}

// Reset drops every loaded page, for example after sign out. A load in
// flight is discarded when it returns.
func (h *HistoryPager) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gen++
	h.loading = false
	h.cursor = model.PaginationCursor{PageSize: h.pageSize}
	h.items = nil
	h.stale = true
}

// Stale reports whether the accumulated list may be out of date.
func (h *HistoryPager) Stale() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stale
}

// HasMore reports whether another page can be loaded.
func (h *HistoryPager) HasMore() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor.HasMore()
}

// Loading reports whether a page request is in flight.
func (h *HistoryPager) Loading() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loading
}

// Cursor returns the pagination cursor.
func (h *HistoryPager) Cursor() model.PaginationCursor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

// Items returns the accumulated summaries.
func (h *HistoryPager) Items() []model.SessionSummary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

func (h *HistoryPager) snapshotLocked() []model.SessionSummary {
	return append([]model.SessionSummary(nil), h.items...)
}
