package setlist

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
)

type Server struct {
	db  DB
	gw  *Gateway
	log *log.Logger
}

func NewServer(db DB, gw *Gateway, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{db: db, gw: gw, log: logger}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)

	r.Post("/rooms", s.handleCreateRoom)
	r.Get("/rooms", s.handleListRooms)
	r.Get("/rooms/{id}", s.handleGetRoom)
	r.Delete("/rooms/{id}", s.handleDeleteRoom)

	r.Post("/tracks", s.handleCreateTrack)
	r.Get("/tracks", s.handleListTracks)
	r.Get("/tracks/{trackId}", s.handleGetTrack)
	r.Delete("/tracks/{trackId}", s.handleDeleteTrack)

	r.Post("/rooms/{id}/entries", s.handleAddEntry)
	r.Delete("/rooms/{id}/entries/{entryId}", s.handleRemoveEntry)
	r.Patch("/rooms/{id}/entries/{entryId}", s.handlePatchEntry)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "listener",
	})
}
