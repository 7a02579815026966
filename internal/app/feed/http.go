package feed

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Feed *Service
}

func NewHandler(feed *Service) *Handler {
	return &Handler{Feed: feed}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/feeds/{listID}/rss.xml", h.handleRSS)
	return r
}

// handleRSS serves the public feed. It is unauthenticated on purpose:
// only lists that opted in via their rss flag are served.
func (h *Handler) handleRSS(w http.ResponseWriter, r *http.Request) {
	body, err := h.Feed.RenderRSS(r.Context(), chi.URLParam(r, "listID"))
	if err != nil {
		switch {
		case errors.Is(err, ErrListNotFound):
			http.Error(w, "list not found", http.StatusNotFound)
		case errors.Is(err, ErrFeedNotAvailable):
			http.Error(w, "feed not enabled", http.StatusForbidden)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
