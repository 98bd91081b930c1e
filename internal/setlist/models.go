package setlist

import (
	"time"
)

// Room is a named collaboration scope owning one ordered set of entries.
type Room struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Track holds the metadata of an uploaded or registered piece of music.
// Tracks live independently of rooms; a SetEntry references a Track by id.
type Track struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	TempoBPM   *float64  `json:"tempoBpm,omitempty"`
	MusicalKey string    `json:"musicalKey,omitempty"`
	DurationMs int       `json:"durationMs"`
	StorageKey string    `json:"storageKey,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CuePoints are optional playback markers on a SetEntry. Each field is
// independently nullable; no ordering invariant applies to them.
type CuePoints struct {
	StartMs *int `json:"startMs"`
	EndMs   *int `json:"endMs"`
	CueAMs  *int `json:"cueAMs"`
	CueBMs  *int `json:"cueBMs"`
}

// SetEntry is one slot of a room's ordered set. Entries are ordered by
// Position (0-based); within a room the positions of all entries are always
// exactly {0..N-1} with no duplicates and no gaps.
type SetEntry struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	TrackID   string    `json:"trackId"`
	Position  int       `json:"position"`
	Note      string    `json:"note,omitempty"`
	Cues      CuePoints `json:"cues"`
	CreatedAt time.Time `json:"createdAt"`
}
