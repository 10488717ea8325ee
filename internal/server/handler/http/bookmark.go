package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atinyakov/GophFood/internal/models"
)

// BookmarkService defines the bookmark operations required by
// BookmarkHandler.
type BookmarkService interface {
	// Snapshot returns the current bookmark list.
	Snapshot() models.BookmarkState
	// Add bookmarks the restaurant unless it is already bookmarked.
	Add(ctx context.Context, entry models.BookmarkEntry) models.BookmarkState
	// Remove drops the restaurant from the list.
	Remove(ctx context.Context, id string) models.BookmarkState
	// IsBookmarked reports whether the restaurant is in the list.
	IsBookmarked(id string) bool
	// Subscribe streams every published bookmark snapshot.
	Subscribe() (<-chan models.BookmarkState, func())
}

// BookmarkHandler handles HTTP requests for the bookmark state machine.
type BookmarkHandler struct {
	Bookmarks BookmarkService
}

type bookmarkResponse struct {
	models.BookmarkState
	models.Status
}

func newBookmarkResponse(b models.BookmarkState) bookmarkResponse {
	return bookmarkResponse{BookmarkState: b, Status: b.Status}
}

// List handles GET /api/bookmarks.
func (h *BookmarkHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newBookmarkResponse(h.Bookmarks.Snapshot()))
}

// Add handles POST /api/bookmarks with a restaurant summary as body.
func (h *BookmarkHandler) Add(w http.ResponseWriter, r *http.Request) {
	var entry models.BookmarkEntry
	if !decode(w, r, &entry) {
		return
	}
	if entry.ID == "" {
		http.Error(w, "restaurant id is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, newBookmarkResponse(h.Bookmarks.Add(r.Context(), entry)))
}

// Remove handles DELETE /api/bookmarks/{id}.
func (h *BookmarkHandler) Remove(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newBookmarkResponse(h.Bookmarks.Remove(r.Context(), chi.URLParam(r, "id"))))
}

// Check handles GET /api/bookmarks/{id}.
func (h *BookmarkHandler) Check(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         id,
		"bookmarked": h.Bookmarks.IsBookmarked(id),
	})
}

// Watch handles GET /api/bookmarks/watch.
func (h *BookmarkHandler) Watch(w http.ResponseWriter, r *http.Request) {
	watch(w, r, h.Bookmarks.Subscribe, func(b models.BookmarkState) any { return newBookmarkResponse(b) })
}
