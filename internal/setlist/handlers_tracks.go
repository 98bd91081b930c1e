package setlist

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

func (s *Server) handleCreateTrack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	var body struct {
		Title      string   `json:"title"`
		Artist     string   `json:"artist"`
		TempoBPM   *float64 `json:"tempoBpm"`
		MusicalKey string   `json:"musicalKey"`
		DurationMs int      `json:"durationMs"`
		StorageKey string   `json:"storageKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	body.Title = strings.TrimSpace(body.Title)
	body.Artist = strings.TrimSpace(body.Artist)
	body.MusicalKey = strings.TrimSpace(body.MusicalKey)

	if body.Title == "" || len(body.Title) > 300 {
		writeError(w, http.StatusBadRequest, "title must be between 1 and 300 characters")
		return
	}
	if len(body.Artist) > 200 {
		writeError(w, http.StatusBadRequest, "artist is too long")
		return
	}
	if body.TempoBPM != nil && (*body.TempoBPM <= 0 || *body.TempoBPM > 1000) {
		writeError(w, http.StatusBadRequest, "tempoBpm out of range")
		return
	}
	if body.DurationMs < 0 {
		writeError(w, http.StatusBadRequest, "durationMs must be >= 0")
		return
	}

	var tr Track
	err := s.db.QueryRow(ctx, `
		INSERT INTO tracks (title, artist, tempo_bpm, musical_key, duration_ms, storage_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, title, artist, tempo_bpm, musical_key, duration_ms, storage_key, created_at
	`, body.Title, body.Artist, body.TempoBPM, body.MusicalKey, body.DurationMs, body.StorageKey).Scan(
		&tr.ID, &tr.Title, &tr.Artist, &tr.TempoBPM,
		&tr.MusicalKey, &tr.DurationMs, &tr.StorageKey, &tr.CreatedAt,
	)
	if err != nil {
		s.log.Error("create track", "err", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusCreated, tr)
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rows, err := s.db.Query(ctx, `
		SELECT id, title, artist, tempo_bpm, musical_key, duration_ms, storage_key, created_at
		FROM tracks
		ORDER BY created_at DESC
		LIMIT 500
	`)
	if err != nil {
		s.log.Error("list tracks", "err", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	tracks := []Track{}
	for rows.Next() {
		var tr Track
		if err := rows.Scan(
			&tr.ID, &tr.Title, &tr.Artist, &tr.TempoBPM,
			&tr.MusicalKey, &tr.DurationMs, &tr.StorageKey, &tr.CreatedAt,
		); err != nil {
			s.log.Error("list tracks scan", "err", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		tracks = append(tracks, tr)
	}
	if err := rows.Err(); err != nil {
		s.log.Error("list tracks rows", "err", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trackID := chi.URLParam(r, "trackId")
	if trackID == "" {
		writeError(w, http.StatusBadRequest, "missing track id")
		return
	}

	var tr Track
	err := s.db.QueryRow(ctx, `
		SELECT id, title, artist, tempo_bpm, musical_key, duration_ms, storage_key, created_at
		FROM tracks
		WHERE id = $1
	`, trackID).Scan(
		&tr.ID, &tr.Title, &tr.Artist, &tr.TempoBPM,
		&tr.MusicalKey, &tr.DurationMs, &tr.StorageKey, &tr.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "track not found")
		return
	}
	if err != nil {
		s.log.Error("get track", "err", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, tr)
}

// handleDeleteTrack removes a track from the catalog. Deleting a track
// that is still referenced by any set entry is refused: the FK is
// RESTRICT, and the violation maps to 409.
func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	trackID := chi.URLParam(r, "trackId")
	if trackID == "" {
		writeError(w, http.StatusBadRequest, "missing track id")
		return
	}

	tag, err := s.db.Exec(ctx, `
		DELETE FROM tracks WHERE id = $1
	`, trackID)
	if err != nil {
		if errors.Is(mapPgError(err), ErrConflict) {
			writeError(w, http.StatusConflict, "track is referenced by a set entry")
			return
		}
		s.log.Error("delete track", "err", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(w, http.StatusNotFound, "track not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
