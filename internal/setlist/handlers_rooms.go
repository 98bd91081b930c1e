package setlist

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := r.Header.Get("X-User-Id")
	if ownerID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" || len(body.Name) > 200 {
		writeError(w, http.StatusBadRequest, "name must be between 1 and 200 characters")
		return
	}

	var room Room
	err := s.db.QueryRow(ctx, `
		INSERT INTO rooms (owner_id, name)
		VALUES ($1, $2)
		RETURNING id, owner_id, name, created_at
	`, ownerID, body.Name).Scan(&room.ID, &room.OwnerID, &room.Name, &room.CreatedAt)
	if err != nil {
		s.log.Error("create room", "err", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, name, created_at
		FROM rooms
		ORDER BY created_at DESC
		LIMIT 200
	`)
	if err != nil {
		s.log.Error("list rooms", "err", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	rooms := []Room{}
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.OwnerID, &room.Name, &room.CreatedAt); err != nil {
			s.log.Error("list rooms scan", "err", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		s.log.Error("list rooms rows", "err", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, rooms)
}

// handleGetRoom returns the room plus its full ordered entry list. This is
// the full-state query a joining client seeds its view from before
// incremental notifications apply.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := chi.URLParam(r, "id")
	if roomID == "" {
		writeError(w, http.StatusBadRequest, "missing room id")
		return
	}

	var room Room
	err := s.db.QueryRow(ctx, `
		SELECT id, owner_id, name, created_at
		FROM rooms
		WHERE id = $1
	`, roomID).Scan(&room.ID, &room.OwnerID, &room.Name, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		s.log.Error("get room", "err", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	entries, err := s.gw.ReadOrdered(ctx, roomID)
	if err != nil {
		s.log.Error("get room entries", "room", roomID, "err", err)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"room":    room,
		"entries": entries,
	})
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	roomID := chi.URLParam(r, "id")
	if roomID == "" {
		writeError(w, http.StatusBadRequest, "missing room id")
		return
	}

	var ownerID string
	err := s.db.QueryRow(ctx, `
		SELECT owner_id FROM rooms WHERE id = $1
	`, roomID).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		s.log.Error("delete room fetch", "err", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if ownerID != userID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	// Entries cascade with the room.
	if _, err := s.db.Exec(ctx, `
		DELETE FROM rooms WHERE id = $1
	`, roomID); err != nil {
		s.log.Error("delete room", "err", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
