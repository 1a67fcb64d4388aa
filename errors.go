package doclite

import (
	"errors"
	"fmt"
)

// define all package level errors here
var (
	// ErrOpen means the backing file could not be created or opened.
	ErrOpen = errors.New("doclite: cannot open database")
	// ErrPrepare means SQL text did not compile against the current schema.
	// Seeing it outside of schema races indicates a bug in this package.
	ErrPrepare = errors.New("doclite: cannot prepare statement")
	// ErrConstraint is a unique-index or identity collision reported by the engine.
	ErrConstraint = errors.New("doclite: constraint violation")
	// ErrKeyNotFound means a lookup matched zero documents.
	ErrKeyNotFound = errors.New("doclite: key not found")
	// ErrDisposed means an operation was invoked on a closed Connection,
	// Table or statement.
	ErrDisposed = errors.New("doclite: use after dispose")
	// ErrCodec wraps serialize/deserialize failures from the document codec.
	ErrCodec = errors.New("doclite: codec failure")
	// ErrTxDone means Commit or Rollback was called on a finished transaction.
	ErrTxDone = errors.New("doclite: transaction done")
)

// statusError translates a non-success engine status into a typed failure
// carrying the engine's own diagnostic text plus the attempted operation.
// The three success statuses (OK, ROW, DONE) never surface as errors.
func statusError(code sqliteStatusCode, msg, op string) error {
	switch code.primary() {
	case SQLITE_OK, SQLITE_ROW, SQLITE_DONE:
		return nil
	case SQLITE_CONSTRAINT:
		if msg == "" {
			return fmt.Errorf("%w: %s", ErrConstraint, op)
		}
		return fmt.Errorf("%w: %s: %s", ErrConstraint, op, msg)
	case SQLITE_CANTOPEN, SQLITE_NOTADB:
		if msg == "" {
			return fmt.Errorf("%w: %s", ErrOpen, op)
		}
		return fmt.Errorf("%w: %s: %s", ErrOpen, op, msg)
	default:
		if msg == "" {
			return fmt.Errorf("doclite: %s: engine status %d", op, code)
		}
		return fmt.Errorf("doclite: %s: engine status %d: %s", op, code, msg)
	}
}

// engineError is statusError with the diagnostic text pulled from the handle.
func engineError(db sqliteDB, code sqliteStatusCode, op string) error {
	return statusError(code, sqlite3_errmsg(db), op)
}
