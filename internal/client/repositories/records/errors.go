package records

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/common"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Kind classifies a StorageError.
type Kind int

const (
	KindUnknown Kind = iota
	KindQuotaExceeded
	KindConstraintViolation
	KindInvalidData
	KindTransactionInactive
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindQuotaExceeded:
		return "quota exceeded"
	case KindConstraintViolation:
		return "constraint violation"
	case KindInvalidData:
		return "invalid data"
	case KindTransactionInactive:
		return "transaction inactive"
	case KindNotFound:
		return "not found"
	default:
		return "storage failure"
	}
}

// StorageError is returned by the local store for every failed operation.
type StorageError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the user for this failure.
func (e *StorageError) UserMessage() string {
	switch e.Kind {
	case KindQuotaExceeded:
		return "Local storage is full. Free up disk space and try again."
	case KindConstraintViolation:
		return "The record conflicts with existing data and was not saved."
	case KindInvalidData:
		return "The record contains data that cannot be stored."
	case KindTransactionInactive:
		return "The storage operation was interrupted. Please retry."
	case KindNotFound:
		return "The record no longer exists."
	default:
		return "Local storage failed unexpectedly."
	}
}

// IsKind reports whether err is a StorageError of kind k.
func IsKind(err error, k Kind) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Kind == k
}

func notFound(op string, e api.Entity, id int64) error {
	return &StorageError{Kind: KindNotFound, Op: op, Err: fmt.Errorf("%s %d: %w", e, id, common.ErrorNotFound)}
}

// classify wraps a driver error into a StorageError. Already classified
// errors pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var se *StorageError
	if errors.As(err, &se) {
		return err
	}

	kind := KindUnknown

	var sqliteErr *sqlite.Error
	switch {
	case errors.Is(err, sql.ErrTxDone), errors.Is(err, sql.ErrConnDone):
		kind = KindTransactionInactive
	case errors.Is(err, sql.ErrNoRows):
		kind = KindNotFound
	case errors.As(err, &sqliteErr):
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_FULL:
			kind = KindQuotaExceeded
		case sqlite3.SQLITE_CONSTRAINT:
			kind = KindConstraintViolation
		case sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_TOOBIG:
			kind = KindInvalidData
		}
	}

	return &StorageError{Kind: kind, Op: op, Err: err}
}
