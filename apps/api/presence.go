package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	s, err := caller(r)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	p, err := h.presence.Heartbeat(r.Context(), s.UserID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, p)
}

func (h *Handler) SetOffline(w http.ResponseWriter, r *http.Request) {
	s, err := caller(r)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	if err := h.presence.SetOffline(r.Context(), s.UserID); err != nil {
		h.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPresence reports the effective state: a stale heartbeat reads as
// offline even while the stored flag is still set.
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	p, err := h.presence.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	p.IsOnline = p.EffectivelyOnline(time.Now(), h.presence.StaleAfter())
	h.JSON(w, http.StatusOK, p)
}
