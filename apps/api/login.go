package main

import (
	"net/http"
	"strings"

	"github.com/rindah89/barter/pkg/apperr"
)

type LoginRequest struct {
	UserID string `json:"user_id"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, r, err)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		h.Error(w, r, apperr.InvalidArg("user_id is required"))
		return
	}

	token, err := h.signer.GenerateToken(req.UserID)
	if err != nil {
		h.Error(w, r, apperr.Wrap(apperr.CodeInternal, "failed to generate token", err))
		return
	}

	if err := h.profiles.EnsureExists(r.Context(), req.UserID); err != nil {
		h.log.Warn().Err(err).Str("user_id", req.UserID).Msg("failed to create profile")
	}

	h.JSON(w, http.StatusOK, LoginResponse{Token: token})
}
