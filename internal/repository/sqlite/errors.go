package sqlite

import (
	"errors"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/postboard/internal/apperror"
)

// sqliteCode extracts the (extended) result code from a driver error.
// The driver enables extended result codes, so constraint failures carry
// e.g. SQLITE_CONSTRAINT_PRIMARYKEY rather than plain SQLITE_CONSTRAINT.
func sqliteCode(err error) (int, bool) {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return 0, false
	}
	return se.Code(), true
}

// isContention reports whether err means another writer holds the lock.
func isContention(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	switch code & 0xff { // primary code
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func isConstraint(err error, extended int) bool {
	code, ok := sqliteCode(err)
	return ok && code == extended
}

// classify turns a driver error into the apperror taxonomy: contention is a
// Conflict on resource/id, everything else is a Storage failure during op.
func classify(op, resource, id string, err error) error {
	if isContention(err) {
		return apperror.ConflictFrom(resource, id, err)
	}
	return apperror.Storage(op, err)
}
