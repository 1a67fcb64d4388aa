package doclite

import (
	"fmt"
	"sync"
)

// statement owns one compiled SQL program tied to one live connection handle.
// The mutex serializes complete step cycles (bind, step, read, clear, reset)
// on this statement only: callers on different statements of the same
// connection proceed in parallel because the handle is opened in serialized
// threading mode. The db reference is non-owning and used solely for
// diagnostic text retrieval.
type statement struct {
	mu        sync.Mutex
	stmt      sqliteStmt
	db        sqliteDB
	sql       string
	finalized bool
}

// prepareStatement compiles sql against db. Compilation failures surface as
// ErrPrepare: SQL text here is produced by this package, so a failure is a
// schema race (backing table dropped) or a bug.
func prepareStatement(db sqliteDB, sql string) (*statement, error) {
	stmt, code := sqlite3_prepare_v2(db, sql)
	if code != SQLITE_OK {
		return nil, fmt.Errorf("%w: %q: %s", ErrPrepare, sql, sqlite3_errmsg(db))
	}
	return &statement{stmt: stmt, db: db, sql: sql}, nil
}

// finalize releases the compiled program. At most one call takes effect;
// later calls and step cycles after it fail fast. Only the owning Table or
// Connection teardown path may call it.
func (s *statement) finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return
	}
	s.finalized = true
	sqlite3_finalize(s.stmt)
	s.stmt = nil
}

// binder is the parameter view handed to bind callbacks: positional setters
// with 1-based indices. The first failed bind sticks; later calls no-op.
type binder struct {
	stmt sqliteStmt
	db   sqliteDB
	err  error
}

func (b *binder) set(code sqliteStatusCode, index int) {
	if b.err != nil {
		return
	}
	if code != SQLITE_OK {
		b.err = statusError(code, sqlite3_errmsg(b.db), fmt.Sprintf("bind parameter %d", index))
	}
}

func (b *binder) Text(index int, value string) { b.set(sqlite3_bind_text(b.stmt, index, value), index) }
func (b *binder) Blob(index int, value []byte) { b.set(sqlite3_bind_blob(b.stmt, index, value), index) }
func (b *binder) Int(index int, value int)     { b.set(sqlite3_bind_int(b.stmt, index, value), index) }
func (b *binder) Int64(index int, value int64) {
	b.set(sqlite3_bind_int64(b.stmt, index, value), index)
}
func (b *binder) Null(index int) { b.set(sqlite3_bind_null(b.stmt, index), index) }

// row is the result view handed to read callbacks: positional getters with
// 0-based indices, valid only while the statement sits on a row.
type row struct {
	stmt sqliteStmt
}

func (r *row) Int(index int) int     { return sqlite3_column_int(r.stmt, index) }
func (r *row) Int64(index int) int64 { return sqlite3_column_int64(r.stmt, index) }
func (r *row) Text(index int) string { return sqlite3_column_text(r.stmt, index) }
func (r *row) Blob(index int) []byte { return sqlite3_column_blob(r.stmt, index) }
func (r *row) IsNull(index int) bool { return sqlite3_column_type(r.stmt, index) == SQLITE_NULL }

type bindFunc func(b *binder)

// execute runs one step cycle under the statement lock: bind (optional),
// step once, read (only when a row came back), clear bindings, reset. The
// clear and reset run on every exit path so the statement is always left in
// its start state. hadRow reports whether read was invoked.
func execute[R any](s *statement, bind bindFunc, read func(r *row) R) (result R, hadRow bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return result, false, fmt.Errorf("%w: statement %q", ErrDisposed, s.sql)
	}
	defer func() {
		if bind != nil {
			sqlite3_clear_bindings(s.stmt)
		}
		sqlite3_reset(s.stmt)
	}()

	if bind != nil {
		b := binder{stmt: s.stmt, db: s.db}
		bind(&b)
		if b.err != nil {
			return result, false, b.err
		}
	}
	code := sqlite3_step(s.stmt)
	switch code.primary() {
	case SQLITE_ROW:
		if read != nil {
			result = read(&row{stmt: s.stmt})
			hadRow = true
		}
	case SQLITE_DONE, SQLITE_OK:
		// no result row
	default:
		return result, false, statusError(code, sqlite3_errmsg(s.db), "step "+s.sql)
	}
	return result, hadRow, nil
}

// executeMany is execute with a cursor: it steps while rows are available,
// collecting one R per row in engine order. The slice is built in one pass;
// calling again re-executes from scratch because reset runs on exit.
func executeMany[R any](s *statement, bind bindFunc, read func(r *row) R) ([]R, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return nil, fmt.Errorf("%w: statement %q", ErrDisposed, s.sql)
	}
	defer func() {
		if bind != nil {
			sqlite3_clear_bindings(s.stmt)
		}
		sqlite3_reset(s.stmt)
	}()

	if bind != nil {
		b := binder{stmt: s.stmt, db: s.db}
		bind(&b)
		if b.err != nil {
			return nil, b.err
		}
	}
	var out []R
	for {
		code := sqlite3_step(s.stmt)
		switch code.primary() {
		case SQLITE_ROW:
			out = append(out, read(&row{stmt: s.stmt}))
		case SQLITE_DONE, SQLITE_OK:
			return out, nil
		default:
			return nil, statusError(code, sqlite3_errmsg(s.db), "step "+s.sql)
		}
	}
}

// exec is execute for statements without results or bindings (DDL, pragmas).
func (s *statement) exec() error {
	_, _, err := execute[struct{}](s, nil, nil)
	return err
}
