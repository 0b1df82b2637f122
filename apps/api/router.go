package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newRouter wires every route. mediaDir is served under /media when uploads
// go to local disk; pass "" otherwise.
func newRouter(h *Handler, mediaDir string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(recordMetrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)
	r.Post("/login", h.Login)
	if mediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(mediaDir))))
	}

	r.Group(func(r chi.Router) {
		r.Use(h.signer.Middleware)

		r.Post("/rooms", h.CreateRoom)
		r.Get("/rooms", h.ListRooms)
		r.Get("/rooms/{roomID}/messages", h.ListMessages)
		r.Post("/rooms/{roomID}/messages", h.SendMessage)
		r.Post("/rooms/{roomID}/read", h.MarkRead)
		r.Delete("/messages/{messageID}", h.DeleteMessage)

		r.Post("/presence/heartbeat", h.Heartbeat)
		r.Post("/presence/offline", h.SetOffline)
		r.Get("/presence/{userID}", h.GetPresence)

		r.Post("/media/{category}", h.Upload)
		r.Post("/media/{category}/batch", h.UploadBatch)
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
