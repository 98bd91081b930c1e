package setlist

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AutoMigrate creates the schema. The UNIQUE (room_id, position) index is
// load-bearing: the store's renumbering passes are written against it, and
// it turns any lost-update race that slips past the sequencer into a
// detectable unique-violation instead of silent corruption.
func AutoMigrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pgcrypto`); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS rooms (
          id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          owner_id   TEXT NOT NULL,
          name       TEXT NOT NULL,
          created_at TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS tracks (
          id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          title       TEXT NOT NULL,
          artist      TEXT NOT NULL DEFAULT '',
          tempo_bpm   REAL,
          musical_key TEXT NOT NULL DEFAULT '',
          duration_ms INT NOT NULL DEFAULT 0,
          storage_key TEXT NOT NULL DEFAULT '',
          created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return err
	}

	// Entries cascade with their room; tracks are RESTRICTed so deleting a
	// track that is still part of a set fails instead of orphaning entries.
	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS set_entries (
          id           uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          room_id      uuid NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
          track_id     uuid NOT NULL REFERENCES tracks(id) ON DELETE RESTRICT,
          position     INT NOT NULL,
          note         TEXT NOT NULL DEFAULT '',
          cue_start_ms INT,
          cue_end_ms   INT,
          cue_a_ms     INT,
          cue_b_ms     INT,
          created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE UNIQUE INDEX IF NOT EXISTS idx_set_entries_room_position
      ON set_entries(room_id, position)
    `); err != nil {
		return err
	}

	return nil
}
