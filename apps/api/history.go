package main

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rindah89/barter/pkg/apperr"
	"github.com/rindah89/barter/pkg/model"
	"github.com/rindah89/barter/pkg/snowflake"
)

// ListMessages returns a room's messages newest first. Optional "before" and
// "limit" query parameters page through older history.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	s, err := caller(r)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	roomID := chi.URLParam(r, "roomID")
	if err := h.chat.CheckMember(r.Context(), roomID, s.UserID); err != nil {
		h.Error(w, r, err)
		return
	}

	var before snowflake.ID
	if v := r.URL.Query().Get("before"); v != "" {
		if before, err = snowflake.Parse(v); err != nil {
			h.Error(w, r, apperr.InvalidArg("invalid before cursor"))
			return
		}
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			h.Error(w, r, apperr.InvalidArg("invalid limit"))
			return
		}
	}

	msgs, err := h.chat.ListPage(r.Context(), roomID, before, limit)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	h.JSON(w, http.StatusOK, msgs)
}

// SendMessage appends a message as the caller. The room comes from the path
// and the sender from the token.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	s, err := caller(r)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	var req model.SendRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, r, err)
		return
	}
	if req.SenderID != "" && req.SenderID != s.UserID {
		h.Error(w, r, apperr.Forbidden("cannot send as another user"))
		return
	}
	req.SenderID = s.UserID
	req.RoomID = chi.URLParam(r, "roomID")

	msg, err := h.chat.Send(r.Context(), req)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, msg)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	s, err := caller(r)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	id, err := snowflake.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		h.Error(w, r, apperr.InvalidArg("invalid message id"))
		return
	}
	msg, err := h.chat.SoftDelete(r.Context(), id, s.UserID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, msg)
}
