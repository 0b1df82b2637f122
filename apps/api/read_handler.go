package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MarkRead moves the caller's read cursor to the newest message and resets
// their unread counter.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	s, err := caller(r)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	if err := h.chat.MarkRead(r.Context(), chi.URLParam(r, "roomID"), s.UserID); err != nil {
		h.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
