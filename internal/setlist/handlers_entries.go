package setlist

import (
	"encoding/json"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
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

	var body struct {
		TrackID  string    `json:"trackId"`
		Position *int      `json:"position"`
		Note     string    `json:"note"`
		Cues     CuePoints `json:"cues"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	body.TrackID = strings.TrimSpace(body.TrackID)
	if body.TrackID == "" {
		writeError(w, http.StatusBadRequest, "trackId is required")
		return
	}
	if len(body.Note) > 1000 {
		writeError(w, http.StatusBadRequest, "note is too long")
		return
	}

	// Absent position means append; the store clamps to [0, N].
	position := math.MaxInt
	if body.Position != nil {
		position = *body.Position
	}

	result, err := s.gw.Apply(ctx, Mutation{
		Kind:     MutationAdd,
		RoomID:   roomID,
		TrackID:  body.TrackID,
		Position: position,
		Note:     body.Note,
		Cues:     body.Cues,
	})
	if err != nil {
		s.log.Error("add entry", "room", roomID, "err", err)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	roomID := chi.URLParam(r, "id")
	entryID := chi.URLParam(r, "entryId")
	if roomID == "" || entryID == "" {
		writeError(w, http.StatusBadRequest, "missing room or entry id")
		return
	}

	result, err := s.gw.Apply(ctx, Mutation{
		Kind:    MutationRemove,
		RoomID:  roomID,
		EntryID: entryID,
	})
	if err != nil {
		s.log.Error("remove entry", "room", roomID, "entry", entryID, "err", err)
		writeEngineError(w, err)
		return
	}

	// Idempotent: a raced remove reports removed=false with null position.
	writeJSON(w, http.StatusOK, result)
}

// handlePatchEntry dispatches on the body: newPosition moves the entry
// through the sequencer; note/cues update annotations directly.
func (s *Server) handlePatchEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	roomID := chi.URLParam(r, "id")
	entryID := chi.URLParam(r, "entryId")
	if roomID == "" || entryID == "" {
		writeError(w, http.StatusBadRequest, "missing room or entry id")
		return
	}

	var body struct {
		NewPosition *int       `json:"newPosition"`
		Note        *string    `json:"note"`
		Cues        *CuePoints `json:"cues"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var m Mutation
	switch {
	case body.NewPosition != nil:
		if *body.NewPosition < 0 {
			writeError(w, http.StatusBadRequest, "newPosition must be >= 0")
			return
		}
		m = Mutation{
			Kind:     MutationReorder,
			RoomID:   roomID,
			EntryID:  entryID,
			Position: *body.NewPosition,
		}
	case body.Note != nil:
		if len(*body.Note) > 1000 {
			writeError(w, http.StatusBadRequest, "note is too long")
			return
		}
		m = Mutation{
			Kind:    MutationUpdateNote,
			RoomID:  roomID,
			EntryID: entryID,
			NotePtr: body.Note,
		}
	case body.Cues != nil:
		m = Mutation{
			Kind:    MutationUpdateCues,
			RoomID:  roomID,
			EntryID: entryID,
			CuesPtr: body.Cues,
		}
	default:
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	result, err := s.gw.Apply(ctx, m)
	if err != nil {
		s.log.Error("patch entry", "room", roomID, "entry", entryID, "kind", m.Kind.String(), "err", err)
		writeEngineError(w, err)
		return
	}

	switch res := result.(type) {
	case ReorderResult:
		writeJSON(w, http.StatusOK, map[string]any{
			"entryId": entryID,
			"from":    res.OldPosition,
			"to":      res.NewPosition,
			"order":   res.Order,
		})
	case SetEntry:
		writeJSON(w, http.StatusOK, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}
