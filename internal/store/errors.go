package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("duplicate")
	ErrWriteConflict = errors.New("write conflict")
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
)

// classify maps driver errors onto the store's sentinel errors so callers
// never need to know about SQLSTATE codes.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return joinSentinel(ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return joinSentinel(ErrWriteConflict, err)
		case sqlStateUniqueViolation:
			return joinSentinel(ErrDuplicate, err)
		case sqlStateForeignKeyViolation:
			return joinSentinel(ErrNotFound, err)
		}
	}
	return err
}

type sentinelError struct {
	sentinel error
	cause    error
}

func (e *sentinelError) Error() string {
	return e.sentinel.Error() + ": " + e.cause.Error()
}

func (e *sentinelError) Unwrap() []error {
	return []error{e.sentinel, e.cause}
}

func joinSentinel(sentinel, cause error) error {
	if errors.Is(cause, sentinel) {
		return cause
	}
	return &sentinelError{sentinel: sentinel, cause: cause}
}

// IsWriteConflict reports whether err is a serialization failure that can be
// resolved by redoing the whole transaction.
func IsWriteConflict(err error) bool {
	return errors.Is(err, ErrWriteConflict)
}
