package setlist

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error taxonomy of the mutation engine. Handlers map these onto HTTP
// statuses; the gateway retries only ErrPositionConflict (bounded) and
// treats ErrEntryNotFound on remove as an idempotent no-op.
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrEntryNotFound = errors.New("entry not found")
	ErrTrackNotFound = errors.New("track not found")

	// ErrConflict is an integrity conflict, such as a rejected delete of
	// a track that is still referenced by an entry.
	ErrConflict = errors.New("conflict")

	// ErrPositionConflict is specifically the (room_id, position)
	// uniqueness violation. It wraps ErrConflict, so HTTP mapping treats
	// both as 409, but only this kind is retried on insert: an FK failure
	// at P does not get better at P+1.
	ErrPositionConflict = fmt.Errorf("%w: position already taken", ErrConflict)

	// ErrBusy means the transaction could not complete within its bounded
	// lock-wait or execution interval. The caller may retry the request;
	// the engine itself does not.
	ErrBusy = errors.New("storage busy")

	ErrRetriesExhausted = errors.New("position conflict retries exhausted")
)

// Postgres SQLSTATE codes the store distinguishes.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
	pgSerializationFailure = "40001"
)

// mapPgError folds a pgx error into the engine taxonomy. Unknown errors
// pass through unchanged.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return ErrPositionConflict
	case pgForeignKeyViolation:
		return ErrConflict
	case pgLockNotAvailable, pgQueryCanceled, pgSerializationFailure:
		return ErrBusy
	}
	return err
}
