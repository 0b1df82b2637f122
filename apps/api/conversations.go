package main

import (
	"net/http"

	"github.com/rindah89/barter/pkg/apperr"
	"github.com/rindah89/barter/pkg/model"
)

type CreateRoomRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
}

// CreateRoom returns the room for the participant set, creating it on first
// use. The caller must be one of the participants.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	s, err := caller(r)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	var req CreateRoomRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, r, err)
		return
	}

	ids := model.NormalizeParticipants(req.ParticipantIDs)
	member := false
	for _, id := range ids {
		if id == s.UserID {
			member = true
			break
		}
	}
	if !member {
		h.Error(w, r, apperr.Forbidden("caller must be a participant"))
		return
	}

	room, err := h.chat.ResolveOrCreateRoom(r.Context(), ids)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, room)
}

func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	s, err := caller(r)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	rooms, err := h.chat.ListRoomsForUser(r.Context(), s.UserID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	if rooms == nil {
		rooms = []model.ChatRoom{}
	}
	h.JSON(w, http.StatusOK, rooms)
}
