package main

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rindah89/barter/pkg/apperr"
	"github.com/rindah89/barter/pkg/auth"
	"github.com/rindah89/barter/pkg/chat"
	"github.com/rindah89/barter/pkg/media"
	"github.com/rindah89/barter/pkg/presence"
	"github.com/rindah89/barter/pkg/profile"
)

// Handler holds the dependencies shared by every route.
type Handler struct {
	chat     *chat.Service
	presence *presence.Store
	media    *media.Gateway
	profiles *profile.Store
	signer   *auth.Signer
	log      zerolog.Logger
}

func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error maps err onto a status code and a client-safe body.
func (h *Handler) Error(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	h.JSON(w, status, map[string]string{
		"error": apperr.Message(err),
		"code":  string(apperr.CodeOf(err)),
	})
}

func (h *Handler) decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.InvalidArg("invalid request body")
	}
	return nil
}

// caller returns the authenticated user. Routes using it sit behind the
// auth middleware, so a missing session is a wiring bug.
func caller(r *http.Request) (auth.Session, error) {
	s, ok := auth.SessionFrom(r.Context())
	if !ok {
		return auth.Session{}, apperr.Unauthorized("unauthorized")
	}
	return s, nil
}
