package setlist

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
)

// OrderedStore is the storage surface the gateway mutates through. *Store
// implements it; tests substitute an in-memory fake.
type OrderedStore interface {
	ReadOrdered(ctx context.Context, roomID string) ([]SetEntry, error)
	Insert(ctx context.Context, roomID, trackID string, position int, note string, cues CuePoints) (SetEntry, error)
	Remove(ctx context.Context, roomID, entryID string) (int, error)
	Reorder(ctx context.Context, roomID, entryID string, newPosition int) (ReorderResult, error)
	UpdateAnnotations(ctx context.Context, roomID, entryID string, note *string, cues *CuePoints) (SetEntry, error)
}

// MutationKind enumerates every way a room's set can change. The set is
// closed: Apply switches over it exhaustively, so a new kind is a
// compile-visible change, not a stringly-typed dispatch miss.
type MutationKind int

const (
	MutationAdd MutationKind = iota
	MutationRemove
	MutationReorder
	MutationUpdateNote
	MutationUpdateCues
)

func (k MutationKind) String() string {
	switch k {
	case MutationAdd:
		return "add"
	case MutationRemove:
		return "remove"
	case MutationReorder:
		return "reorder"
	case MutationUpdateNote:
		return "updateNote"
	case MutationUpdateCues:
		return "updateCues"
	}
	return fmt.Sprintf("MutationKind(%d)", int(k))
}

// Mutation is one inbound request against a room's set. Which fields are
// meaningful depends on Kind; RoomID is always required.
type Mutation struct {
	Kind     MutationKind
	RoomID   string
	EntryID  string
	TrackID  string
	Position int
	Note     string
	NotePtr  *string
	Cues     CuePoints
	CuesPtr  *CuePoints
}

// RemoveResult reports a remove. Position is nil when the entry was
// already gone (idempotent no-op); Removed is false in that case.
type RemoveResult struct {
	EntryID  string `json:"entryId"`
	Position *int   `json:"position"`
	Removed  bool   `json:"removed"`
}

const defaultInsertRetries = 3

// Gateway turns inbound mutation requests into sequenced store operations
// and publishes the resulting change. Order-mutating kinds (add, remove,
// reorder) go through the per-room sequencer; annotation updates do not
// touch positions and hit the store directly.
type Gateway struct {
	store         OrderedStore
	seq           *Sequencer
	pub           Publisher
	log           *log.Logger
	insertRetries int
}

func NewGateway(store OrderedStore, seq *Sequencer, pub Publisher, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Default()
	}
	return &Gateway{
		store:         store,
		seq:           seq,
		pub:           pub,
		log:           logger,
		insertRetries: defaultInsertRetries,
	}
}

// SetInsertRetries overrides the bounded retry count for optimistic insert
// position conflicts.
func (g *Gateway) SetInsertRetries(n int) {
	if n > 0 {
		g.insertRetries = n
	}
}

// Apply dispatches a mutation to its typed operation. The returned value
// is a SetEntry for add/update kinds, a RemoveResult for remove, and a
// ReorderResult for reorder.
func (g *Gateway) Apply(ctx context.Context, m Mutation) (any, error) {
	switch m.Kind {
	case MutationAdd:
		return g.AddEntry(ctx, m.RoomID, m.TrackID, m.Position, m.Note, m.Cues)
	case MutationRemove:
		return g.RemoveEntry(ctx, m.RoomID, m.EntryID)
	case MutationReorder:
		return g.ReorderEntry(ctx, m.RoomID, m.EntryID, m.Position)
	case MutationUpdateNote:
		return g.UpdateEntry(ctx, m.RoomID, m.EntryID, m.NotePtr, nil)
	case MutationUpdateCues:
		return g.UpdateEntry(ctx, m.RoomID, m.EntryID, nil, m.CuesPtr)
	}
	return nil, fmt.Errorf("unknown mutation kind %d", int(m.Kind))
}

// AddEntry inserts a track reference at the requested position. A position
// uniqueness violation that slips through the sequencer (another process
// writing the same room) is retried at position+1 a bounded number of
// times; every other error, FK violations included, propagates
// immediately. The event is published inside the sequenced section so
// observers see a room's events in execution order.
func (g *Gateway) AddEntry(ctx context.Context, roomID, trackID string, position int, note string, cues CuePoints) (SetEntry, error) {
	var created SetEntry
	err := g.seq.Do(ctx, roomID, func(ctx context.Context) error {
		pos := position
		for attempt := 1; ; attempt++ {
			entry, err := g.store.Insert(ctx, roomID, trackID, pos, note, cues)
			if err == nil {
				created = entry
				g.publish(ctx, Event{
					Type:    EventEntryAdded,
					Payload: EntryAddedPayload{RoomID: roomID, Entry: created},
				})
				return nil
			}
			if !errors.Is(err, ErrPositionConflict) {
				return err
			}
			if attempt >= g.insertRetries {
				g.log.Warn("insert position conflict, retries exhausted",
					"room", roomID, "position", pos, "attempts", attempt)
				return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
			}
			// math.MaxInt is the append sentinel; incrementing it would
			// wrap negative and the store would clamp the retry to the
			// head. Appends retry as appends.
			if pos < math.MaxInt {
				pos++
			}
		}
	})
	if err != nil {
		return SetEntry{}, err
	}
	return created, nil
}

// RemoveEntry removes an entry and compacts the room. Removing an entry
// that is already gone is success: the caller that lost the race gets the
// same final view, and a removal event still goes out (with unknown
// position) so every observer converges.
func (g *Gateway) RemoveEntry(ctx context.Context, roomID, entryID string) (RemoveResult, error) {
	res := RemoveResult{EntryID: entryID}
	err := g.seq.Do(ctx, roomID, func(ctx context.Context) error {
		pos, err := g.store.Remove(ctx, roomID, entryID)
		switch {
		case err == nil:
			res.Position = &pos
			res.Removed = true
		case errors.Is(err, ErrEntryNotFound):
			// Idempotent no-op; the event still goes out below.
		default:
			return err
		}
		g.publish(ctx, Event{
			Type:    EventEntryRemoved,
			Payload: EntryRemovedPayload{RoomID: roomID, EntryID: entryID, Position: res.Position},
		})
		return nil
	})
	if err != nil {
		return RemoveResult{}, err
	}
	return res, nil
}

// ReorderEntry moves an entry and publishes the full fresh order. A move
// to the entry's current position writes nothing but still notifies.
func (g *Gateway) ReorderEntry(ctx context.Context, roomID, entryID string, newPosition int) (ReorderResult, error) {
	var res ReorderResult
	err := g.seq.Do(ctx, roomID, func(ctx context.Context) error {
		var err error
		res, err = g.store.Reorder(ctx, roomID, entryID, newPosition)
		if err != nil {
			return err
		}
		g.publish(ctx, Event{
			Type: EventEntriesReordered,
			Payload: EntriesReorderedPayload{
				RoomID:  roomID,
				EntryID: entryID,
				From:    res.OldPosition,
				To:      res.NewPosition,
				Order:   res.Order,
			},
		})
		return nil
	})
	if err != nil {
		return ReorderResult{}, err
	}
	return res, nil
}

// UpdateEntry rewrites an entry's note and/or cue points. Positions are
// unaffected, so there is no contention on the ordering invariant and the
// sequencer is bypassed.
func (g *Gateway) UpdateEntry(ctx context.Context, roomID, entryID string, note *string, cues *CuePoints) (SetEntry, error) {
	entry, err := g.store.UpdateAnnotations(ctx, roomID, entryID, note, cues)
	if err != nil {
		return SetEntry{}, err
	}
	g.publish(ctx, Event{
		Type:    EventEntryUpdated,
		Payload: EntryUpdatedPayload{RoomID: roomID, Entry: entry},
	})
	return entry, nil
}

// ReadOrdered serves the full-state query used to seed a client's view on
// join, before incremental notifications apply.
func (g *Gateway) ReadOrdered(ctx context.Context, roomID string) ([]SetEntry, error) {
	return g.store.ReadOrdered(ctx, roomID)
}

func (g *Gateway) publish(ctx context.Context, ev Event) {
	if g.pub == nil {
		return
	}
	g.pub.Publish(ctx, ev)
}
