package setlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the pgx surface the store needs. *pgxpool.Pool satisfies it, as do
// the test mocks.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const (
	defaultLockTimeout      = 2 * time.Second
	defaultStatementTimeout = 5 * time.Second
)

type StoreConfig struct {
	// LockTimeout bounds how long a transaction waits for row locks;
	// StatementTimeout bounds total statement execution. Exceeding either
	// aborts the transaction and surfaces ErrBusy.
	LockTimeout      time.Duration
	StatementTimeout time.Duration
}

// Store provides atomic, room-scoped primitives over persisted SetEntries.
// Every mutating operation runs in a single serializable transaction that
// first takes the room row lock, so the database serializes writers per
// room even if two processes race past the in-process sequencer.
type Store struct {
	db  DB
	cfg StoreConfig
}

func NewStore(db DB, cfg StoreConfig) *Store {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = defaultStatementTimeout
	}
	return &Store{db: db, cfg: cfg}
}

const entryColumns = `id, room_id, track_id, position, note,
	cue_start_ms, cue_end_ms, cue_a_ms, cue_b_ms, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (SetEntry, error) {
	var e SetEntry
	err := row.Scan(
		&e.ID,
		&e.RoomID,
		&e.TrackID,
		&e.Position,
		&e.Note,
		&e.Cues.StartMs,
		&e.Cues.EndMs,
		&e.Cues.CueAMs,
		&e.Cues.CueBMs,
		&e.CreatedAt,
	)
	return e, err
}

func (s *Store) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, mapPgError(err)
	}
	// SET LOCAL does not accept bind parameters; the values come from
	// config, not user input. One statement per Exec: pgx's extended
	// protocol rejects multi-statement strings.
	for _, stmt := range []string{
		fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.cfg.LockTimeout.Milliseconds()),
		fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", s.cfg.StatementTimeout.Milliseconds()),
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return nil, mapPgError(err)
		}
	}
	return tx, nil
}

// lockRoom takes the room row lock, serializing this transaction against
// every other writer of the same room.
func (s *Store) lockRoom(ctx context.Context, tx pgx.Tx, roomID string) error {
	var id string
	err := tx.QueryRow(ctx, `
		SELECT id FROM rooms WHERE id = $1 FOR UPDATE
	`, roomID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRoomNotFound
	}
	return mapPgError(err)
}

// ReadOrdered returns all entries of a room sorted by position ascending.
// Used both to serve a client's initial view and to re-read the full order
// after a reorder.
//
// One query, joined from the room row, so a concurrent room deletion
// cannot slip between an existence check and the entry read: zero rows
// means the room is gone, a row with a NULL entry id means it is empty.
func (s *Store) ReadOrdered(ctx context.Context, roomID string) ([]SetEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT e.id, e.room_id, e.track_id, e.position, e.note,
			e.cue_start_ms, e.cue_end_ms, e.cue_a_ms, e.cue_b_ms, e.created_at
		FROM rooms r
		LEFT JOIN set_entries e ON e.room_id = r.id
		WHERE r.id = $1
		ORDER BY e.position ASC
	`, roomID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	entries := []SetEntry{}
	sawRoom := false
	for rows.Next() {
		sawRoom = true
		var (
			id, entryRoom, trackID, note *string
			pos                          *int
			createdAt                    *time.Time
			cues                         CuePoints
		)
		if err := rows.Scan(&id, &entryRoom, &trackID, &pos, &note,
			&cues.StartMs, &cues.EndMs, &cues.CueAMs, &cues.CueBMs, &createdAt); err != nil {
			return nil, mapPgError(err)
		}
		if id == nil {
			continue
		}
		entries = append(entries, SetEntry{
			ID:        *id,
			RoomID:    *entryRoom,
			TrackID:   *trackID,
			Position:  *pos,
			Note:      *note,
			Cues:      cues,
			CreatedAt: *createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	if !sawRoom {
		return nil, ErrRoomNotFound
	}
	return entries, nil
}

// Insert creates an entry at the requested position, shifting every entry
// at or above it up by one first. The position is clamped to [0, N]: insert
// intent from clients may race a concurrent removal, so an out-of-range
// target is treated as "append" rather than rejected.
//
// The shift runs in two passes through a disjoint negative range because
// (room_id, position) is structurally unique and Postgres checks the
// constraint per row: a direct `position = position + 1` over ascending
// positions collides with itself.
func (s *Store) Insert(ctx context.Context, roomID, trackID string, position int, note string, cues CuePoints) (SetEntry, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return SetEntry{}, err
	}
	defer tx.Rollback(ctx)

	if err := s.lockRoom(ctx, tx, roomID); err != nil {
		return SetEntry{}, err
	}

	var trackExists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM tracks WHERE id = $1)
	`, trackID).Scan(&trackExists); err != nil {
		return SetEntry{}, mapPgError(err)
	}
	if !trackExists {
		return SetEntry{}, ErrTrackNotFound
	}

	var total int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM set_entries WHERE room_id = $1
	`, roomID).Scan(&total); err != nil {
		return SetEntry{}, mapPgError(err)
	}

	if position < 0 {
		position = 0
	}
	if position > total {
		position = total
	}

	// Phase 1: park affected rows at -(position+2), strictly below -1.
	// Phase 2: -(parked)-1 lands every row at its old position + 1.
	if _, err := tx.Exec(ctx, `
		UPDATE set_entries
		SET position = -(position + 2)
		WHERE room_id = $1 AND position >= $2
	`, roomID, position); err != nil {
		return SetEntry{}, mapPgError(err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE set_entries
		SET position = -position - 1
		WHERE room_id = $1 AND position < 0
	`, roomID); err != nil {
		return SetEntry{}, mapPgError(err)
	}

	entry, err := scanEntry(tx.QueryRow(ctx, `
		INSERT INTO set_entries (room_id, track_id, position, note,
			cue_start_ms, cue_end_ms, cue_a_ms, cue_b_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+entryColumns+`
	`, roomID, trackID, position, note,
		cues.StartMs, cues.EndMs, cues.CueAMs, cues.CueBMs))
	if err != nil {
		return SetEntry{}, mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return SetEntry{}, mapPgError(err)
	}
	return entry, nil
}

// Remove deletes the entry and renumbers the remaining entries of the room
// to 0..N-2, preserving relative order. The full sequential recompute does
// not depend on the removed entry's old position still being meaningful,
// which closes the races the range-shift variant is exposed to.
//
// Returns the removed entry's old position. A missing entry surfaces as
// ErrEntryNotFound; the gateway decides whether that is fatal.
func (s *Store) Remove(ctx context.Context, roomID, entryID string) (int, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if err := s.lockRoom(ctx, tx, roomID); err != nil {
		return 0, err
	}

	var oldPos int
	err = tx.QueryRow(ctx, `
		SELECT position
		FROM set_entries
		WHERE id = $1 AND room_id = $2
		FOR UPDATE
	`, entryID, roomID).Scan(&oldPos)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrEntryNotFound
	}
	if err != nil {
		return 0, mapPgError(err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM set_entries WHERE id = $1 AND room_id = $2
	`, entryID, roomID); err != nil {
		return 0, mapPgError(err)
	}

	ids, err := s.remainingIDs(ctx, tx, roomID)
	if err != nil {
		return 0, err
	}
	if err := s.renumber(ctx, tx, roomID, ids); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, mapPgError(err)
	}
	return oldPos, nil
}

// ReorderResult carries everything the gateway publishes after a move:
// many positions change at once, so observers get the full order.
type ReorderResult struct {
	Entry       SetEntry
	OldPosition int
	NewPosition int
	Order       []SetEntry
	NoOp        bool
}

// Reorder moves an entry to newPosition (clamped to [0, N-1]) and assigns
// sequential positions 0..N-1 to the resulting order. old == new returns
// without writing.
func (s *Store) Reorder(ctx context.Context, roomID, entryID string, newPosition int) (ReorderResult, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return ReorderResult{}, err
	}
	defer tx.Rollback(ctx)

	if err := s.lockRoom(ctx, tx, roomID); err != nil {
		return ReorderResult{}, err
	}

	// Lock every entry of the room for the duration of the move: all of
	// their positions may change.
	rows, err := tx.Query(ctx, `
		SELECT `+entryColumns+`
		FROM set_entries
		WHERE room_id = $1
		ORDER BY position ASC
		FOR UPDATE
	`, roomID)
	if err != nil {
		return ReorderResult{}, mapPgError(err)
	}
	entries := []SetEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return ReorderResult{}, mapPgError(err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ReorderResult{}, mapPgError(err)
	}

	oldIdx := -1
	for i, e := range entries {
		if e.ID == entryID {
			oldIdx = i
			break
		}
	}
	if oldIdx == -1 {
		return ReorderResult{}, ErrEntryNotFound
	}

	if newPosition < 0 {
		newPosition = 0
	}
	if newPosition > len(entries)-1 {
		newPosition = len(entries) - 1
	}

	if newPosition == oldIdx {
		if err := tx.Commit(ctx); err != nil {
			return ReorderResult{}, mapPgError(err)
		}
		return ReorderResult{
			Entry:       entries[oldIdx],
			OldPosition: oldIdx,
			NewPosition: newPosition,
			Order:       entries,
			NoOp:        true,
		}, nil
	}

	moved := entries[oldIdx]
	rest := make([]SetEntry, 0, len(entries)-1)
	rest = append(rest, entries[:oldIdx]...)
	rest = append(rest, entries[oldIdx+1:]...)

	order := make([]SetEntry, 0, len(entries))
	order = append(order, rest[:newPosition]...)
	order = append(order, moved)
	order = append(order, rest[newPosition:]...)

	ids := make([]string, len(order))
	for i := range order {
		ids[i] = order[i].ID
		order[i].Position = i
	}
	if err := s.renumber(ctx, tx, roomID, ids); err != nil {
		return ReorderResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ReorderResult{}, mapPgError(err)
	}
	return ReorderResult{
		Entry:       order[newPosition],
		OldPosition: oldIdx,
		NewPosition: newPosition,
		Order:       order,
		NoOp:        false,
	}, nil
}

// UpdateAnnotations rewrites an entry's note and cue points. Positions are
// untouched, so this does not contend on the ordering invariant and runs
// outside the sequencer.
func (s *Store) UpdateAnnotations(ctx context.Context, roomID, entryID string, note *string, cues *CuePoints) (SetEntry, error) {
	entry, err := scanEntry(s.db.QueryRow(ctx, `
		UPDATE set_entries
		SET note         = COALESCE($3, note),
		    cue_start_ms = CASE WHEN $4 THEN $5 ELSE cue_start_ms END,
		    cue_end_ms   = CASE WHEN $4 THEN $6 ELSE cue_end_ms END,
		    cue_a_ms     = CASE WHEN $4 THEN $7 ELSE cue_a_ms END,
		    cue_b_ms     = CASE WHEN $4 THEN $8 ELSE cue_b_ms END
		WHERE id = $1 AND room_id = $2
		RETURNING `+entryColumns,
		entryID, roomID, note, cues != nil,
		cuesField(cues, func(c CuePoints) *int { return c.StartMs }),
		cuesField(cues, func(c CuePoints) *int { return c.EndMs }),
		cuesField(cues, func(c CuePoints) *int { return c.CueAMs }),
		cuesField(cues, func(c CuePoints) *int { return c.CueBMs }),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		if exists, eerr := s.roomExists(ctx, roomID); eerr == nil && !exists {
			return SetEntry{}, ErrRoomNotFound
		}
		return SetEntry{}, ErrEntryNotFound
	}
	if err != nil {
		return SetEntry{}, mapPgError(err)
	}
	return entry, nil
}

func cuesField(cues *CuePoints, pick func(CuePoints) *int) *int {
	if cues == nil {
		return nil
	}
	return pick(*cues)
}

func (s *Store) roomExists(ctx context.Context, roomID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)
	`, roomID).Scan(&exists)
	return exists, mapPgError(err)
}

func (s *Store) remainingIDs(ctx context.Context, tx pgx.Tx, roomID string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT id FROM set_entries
		WHERE room_id = $1
		ORDER BY position ASC
		FOR UPDATE
	`, roomID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapPgError(err)
		}
		ids = append(ids, id)
	}
	return ids, mapPgError(rows.Err())
}

// renumber assigns sequential positions 0..len(ids)-1 in the order given.
// All rows are first parked in the negative range so no intermediate state
// can collide with the uniqueness constraint.
func (s *Store) renumber(ctx context.Context, tx pgx.Tx, roomID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE set_entries
		SET position = -(position + 2)
		WHERE room_id = $1
	`, roomID); err != nil {
		return mapPgError(err)
	}
	for i, id := range ids {
		if _, err := tx.Exec(ctx, `
			UPDATE set_entries
			SET position = $3
			WHERE id = $2 AND room_id = $1
		`, roomID, id, i); err != nil {
			return mapPgError(err)
		}
	}
	return nil
}
