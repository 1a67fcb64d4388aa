package doclite

import (
	"unsafe"

	"github.com/ebitengine/purego"
)

// define all necessary constants first
type sqliteStatusCode int32

// note, that the only non-error statuses are OK, ROW, DONE - everything else is errors
const (
	SQLITE_OK         sqliteStatusCode = 0
	SQLITE_ERROR      sqliteStatusCode = 1
	SQLITE_BUSY       sqliteStatusCode = 5
	SQLITE_LOCKED     sqliteStatusCode = 6
	SQLITE_NOMEM      sqliteStatusCode = 7
	SQLITE_READONLY   sqliteStatusCode = 8
	SQLITE_INTERRUPT  sqliteStatusCode = 9
	SQLITE_IOERR      sqliteStatusCode = 10
	SQLITE_CORRUPT    sqliteStatusCode = 11
	SQLITE_FULL       sqliteStatusCode = 13
	SQLITE_CANTOPEN   sqliteStatusCode = 14
	SQLITE_CONSTRAINT sqliteStatusCode = 19
	SQLITE_MISMATCH   sqliteStatusCode = 20
	SQLITE_MISUSE     sqliteStatusCode = 21
	SQLITE_RANGE      sqliteStatusCode = 25
	SQLITE_NOTADB     sqliteStatusCode = 26
	SQLITE_ROW        sqliteStatusCode = 100
	SQLITE_DONE       sqliteStatusCode = 101
)

// primary reports the primary result code with any extended bits masked off
// (e.g. SQLITE_CONSTRAINT_UNIQUE -> SQLITE_CONSTRAINT).
func (c sqliteStatusCode) primary() sqliteStatusCode { return c & 0xff }

type sqliteColumnType int32

const (
	SQLITE_INTEGER sqliteColumnType = 1
	SQLITE_FLOAT   sqliteColumnType = 2
	SQLITE_TEXT    sqliteColumnType = 3
	SQLITE_BLOB    sqliteColumnType = 4
	SQLITE_NULL    sqliteColumnType = 5
)

// open flags; FULLMUTEX puts the handle in serialized threading mode so that
// distinct statements on one handle may step from different goroutines.
const (
	SQLITE_OPEN_READWRITE int32 = 0x00000002
	SQLITE_OPEN_CREATE    int32 = 0x00000004
	SQLITE_OPEN_FULLMUTEX int32 = 0x00010000
)

// wal_checkpoint_v2 modes
const (
	SQLITE_CHECKPOINT_PASSIVE  int32 = 0
	SQLITE_CHECKPOINT_FULL     int32 = 1
	SQLITE_CHECKPOINT_RESTART  int32 = 2
	SQLITE_CHECKPOINT_TRUNCATE int32 = 3
)

// SQLITE_TRANSIENT destructor: the engine makes its own copy of bound
// text/blob values before bind returns.
const sqliteTransient = ^uintptr(0)

// define opaque pointers as-is and accept them as exact arguments
type sqlite3_t struct{}
type sqlite3_stmt_t struct{}

type sqliteDB *sqlite3_t
type sqliteStmt *sqlite3_stmt_t

// then, define C extern methods
var (
	c_sqlite3_open_v2 func(
		filename string, // const char*
		ppDb unsafe.Pointer, // sqlite3**
		flags int32,
		vfs uintptr, // const char* | NULL
	) sqliteStatusCode

	c_sqlite3_close_v2 func(
		db unsafe.Pointer, // sqlite3*
	) sqliteStatusCode

	c_sqlite3_exec func(
		db unsafe.Pointer, // sqlite3*
		sql string, // const char*
		callback uintptr, // int (*)(void*,int,char**,char**) | NULL
		arg uintptr, // void* | NULL
		errmsg uintptr, // char** | NULL
	) sqliteStatusCode

	c_sqlite3_errmsg func(
		db unsafe.Pointer, // sqlite3*
	) unsafe.Pointer // const char*

	c_sqlite3_prepare_v2 func(
		db unsafe.Pointer, // sqlite3*
		sql string, // const char*
		nByte int32,
		ppStmt unsafe.Pointer, // sqlite3_stmt**
		pzTail uintptr, // const char** | NULL
	) sqliteStatusCode

	c_sqlite3_bind_text func(
		stmt unsafe.Pointer, // sqlite3_stmt*
		index int32,
		value string, // const char*
		n int32,
		destructor uintptr, // void (*)(void*)
	) sqliteStatusCode

	c_sqlite3_bind_blob func(
		stmt unsafe.Pointer,
		index int32,
		value unsafe.Pointer, // const void*
		n int32,
		destructor uintptr,
	) sqliteStatusCode

	c_sqlite3_bind_int func(
		stmt unsafe.Pointer,
		index int32,
		value int32,
	) sqliteStatusCode

	c_sqlite3_bind_int64 func(
		stmt unsafe.Pointer,
		index int32,
		value int64,
	) sqliteStatusCode

	c_sqlite3_bind_null func(
		stmt unsafe.Pointer,
		index int32,
	) sqliteStatusCode

	c_sqlite3_step func(
		stmt unsafe.Pointer,
	) sqliteStatusCode

	c_sqlite3_column_int func(
		stmt unsafe.Pointer,
		index int32,
	) int32

	c_sqlite3_column_int64 func(
		stmt unsafe.Pointer,
		index int32,
	) int64

	c_sqlite3_column_text func(
		stmt unsafe.Pointer,
		index int32,
	) unsafe.Pointer // const unsigned char*

	c_sqlite3_column_blob func(
		stmt unsafe.Pointer,
		index int32,
	) unsafe.Pointer // const void*

	c_sqlite3_column_bytes func(
		stmt unsafe.Pointer,
		index int32,
	) int32

	c_sqlite3_column_type func(
		stmt unsafe.Pointer,
		index int32,
	) sqliteColumnType

	c_sqlite3_column_count func(
		stmt unsafe.Pointer,
	) int32

	c_sqlite3_reset func(
		stmt unsafe.Pointer,
	) sqliteStatusCode

	c_sqlite3_clear_bindings func(
		stmt unsafe.Pointer,
	) sqliteStatusCode

	c_sqlite3_finalize func(
		stmt unsafe.Pointer,
	) sqliteStatusCode

	c_sqlite3_busy_timeout func(
		db unsafe.Pointer,
		ms int32,
	) sqliteStatusCode

	c_sqlite3_wal_checkpoint_v2 func(
		db unsafe.Pointer,
		zDb uintptr, // const char* | NULL (all attached databases)
		mode int32,
		pnLog unsafe.Pointer, // int*
		pnCkpt unsafe.Pointer, // int*
	) sqliteStatusCode

	c_sqlite3_changes func(
		db unsafe.Pointer,
	) int32

	c_sqlite3_libversion func() unsafe.Pointer // const char*

	c_sqlite3_threadsafe func() int32
)

// implement a function to register extern methods from loaded lib
// DO NOT load lib - as it will be done externally
func register_sqlite3(handle uintptr) {
	purego.RegisterLibFunc(&c_sqlite3_open_v2, handle, "sqlite3_open_v2")
	purego.RegisterLibFunc(&c_sqlite3_close_v2, handle, "sqlite3_close_v2")
	purego.RegisterLibFunc(&c_sqlite3_exec, handle, "sqlite3_exec")
	purego.RegisterLibFunc(&c_sqlite3_errmsg, handle, "sqlite3_errmsg")
	purego.RegisterLibFunc(&c_sqlite3_prepare_v2, handle, "sqlite3_prepare_v2")
	purego.RegisterLibFunc(&c_sqlite3_bind_text, handle, "sqlite3_bind_text")
	purego.RegisterLibFunc(&c_sqlite3_bind_blob, handle, "sqlite3_bind_blob")
	purego.RegisterLibFunc(&c_sqlite3_bind_int, handle, "sqlite3_bind_int")
	purego.RegisterLibFunc(&c_sqlite3_bind_int64, handle, "sqlite3_bind_int64")
	purego.RegisterLibFunc(&c_sqlite3_bind_null, handle, "sqlite3_bind_null")
	purego.RegisterLibFunc(&c_sqlite3_step, handle, "sqlite3_step")
	purego.RegisterLibFunc(&c_sqlite3_column_int, handle, "sqlite3_column_int")
	purego.RegisterLibFunc(&c_sqlite3_column_int64, handle, "sqlite3_column_int64")
	purego.RegisterLibFunc(&c_sqlite3_column_text, handle, "sqlite3_column_text")
	purego.RegisterLibFunc(&c_sqlite3_column_blob, handle, "sqlite3_column_blob")
	purego.RegisterLibFunc(&c_sqlite3_column_bytes, handle, "sqlite3_column_bytes")
	purego.RegisterLibFunc(&c_sqlite3_column_type, handle, "sqlite3_column_type")
	purego.RegisterLibFunc(&c_sqlite3_column_count, handle, "sqlite3_column_count")
	purego.RegisterLibFunc(&c_sqlite3_reset, handle, "sqlite3_reset")
	purego.RegisterLibFunc(&c_sqlite3_clear_bindings, handle, "sqlite3_clear_bindings")
	purego.RegisterLibFunc(&c_sqlite3_finalize, handle, "sqlite3_finalize")
	purego.RegisterLibFunc(&c_sqlite3_busy_timeout, handle, "sqlite3_busy_timeout")
	purego.RegisterLibFunc(&c_sqlite3_wal_checkpoint_v2, handle, "sqlite3_wal_checkpoint_v2")
	purego.RegisterLibFunc(&c_sqlite3_changes, handle, "sqlite3_changes")
	purego.RegisterLibFunc(&c_sqlite3_libversion, handle, "sqlite3_libversion")
	purego.RegisterLibFunc(&c_sqlite3_threadsafe, handle, "sqlite3_threadsafe")
}

// Helpers

func copyCString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	base := uintptr(p)
	n := 0
	for {
		b := *(*byte)(unsafe.Pointer(base + uintptr(n)))
		if b == 0 {
			break
		}
		n++
	}
	if n == 0 {
		return ""
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = *(*byte)(unsafe.Pointer(base + uintptr(i)))
	}
	return string(buf)
}

// Go wrappers over imported C bindings

/** Open (creating if necessary) the database file at path */
func sqlite3_open_v2(path string, flags int32) (sqliteDB, sqliteStatusCode) {
	var db sqliteDB
	code := c_sqlite3_open_v2(path, unsafe.Pointer(&db), flags, 0)
	return db, code
}

/** Close the database handle
 * All statements prepared on the handle must be finalized first.
 */
func sqlite3_close_v2(db sqliteDB) sqliteStatusCode {
	if db == nil {
		return SQLITE_OK
	}
	return c_sqlite3_close_v2(unsafe.Pointer(db))
}

/** Run one or more SQL statements without result rows */
func sqlite3_exec(db sqliteDB, sql string) sqliteStatusCode {
	return c_sqlite3_exec(unsafe.Pointer(db), sql, 0, 0, 0)
}

/** Return the engine's diagnostic text for the most recent failure on db */
func sqlite3_errmsg(db sqliteDB) string {
	if db == nil {
		return ""
	}
	// owned by the engine, must not be freed
	return copyCString(c_sqlite3_errmsg(unsafe.Pointer(db)))
}

/** Compile a single SQL statement into a new statement handle */
func sqlite3_prepare_v2(db sqliteDB, sql string) (sqliteStmt, sqliteStatusCode) {
	var stmt sqliteStmt
	code := c_sqlite3_prepare_v2(unsafe.Pointer(db), sql, int32(len(sql)), unsafe.Pointer(&stmt), 0)
	return stmt, code
}

/** Bind a positional argument to a statement: TEXT (1-based index) */
func sqlite3_bind_text(stmt sqliteStmt, index int, value string) sqliteStatusCode {
	return c_sqlite3_bind_text(unsafe.Pointer(stmt), int32(index), value, int32(len(value)), sqliteTransient)
}

/** Bind a positional argument to a statement: BLOB (1-based index) */
func sqlite3_bind_blob(stmt sqliteStmt, index int, value []byte) sqliteStatusCode {
	if len(value) == 0 {
		// zero-length blob; pointer may be NULL
		return c_sqlite3_bind_blob(unsafe.Pointer(stmt), int32(index), nil, 0, sqliteTransient)
	}
	return c_sqlite3_bind_blob(unsafe.Pointer(stmt), int32(index), unsafe.Pointer(&value[0]), int32(len(value)), sqliteTransient)
}

/** Bind a positional argument to a statement: INTEGER (1-based index) */
func sqlite3_bind_int(stmt sqliteStmt, index int, value int) sqliteStatusCode {
	return c_sqlite3_bind_int(unsafe.Pointer(stmt), int32(index), int32(value))
}

/** Bind a positional argument to a statement: 64-bit INTEGER (1-based index) */
func sqlite3_bind_int64(stmt sqliteStmt, index int, value int64) sqliteStatusCode {
	return c_sqlite3_bind_int64(unsafe.Pointer(stmt), int32(index), value)
}

/** Bind a positional argument to a statement: NULL (1-based index) */
func sqlite3_bind_null(stmt sqliteStmt, index int) sqliteStatusCode {
	return c_sqlite3_bind_null(unsafe.Pointer(stmt), int32(index))
}

/** Step statement execution once
 * Returns SQLITE_ROW when a result row is available and SQLITE_DONE when
 * execution finished; anything else is an error status.
 */
func sqlite3_step(stmt sqliteStmt) sqliteStatusCode {
	return c_sqlite3_step(unsafe.Pointer(stmt))
}

/** Return INTEGER column value (0-based index) */
func sqlite3_column_int(stmt sqliteStmt, index int) int {
	return int(c_sqlite3_column_int(unsafe.Pointer(stmt), int32(index)))
}

/** Return 64-bit INTEGER column value (0-based index) */
func sqlite3_column_int64(stmt sqliteStmt, index int) int64 {
	return c_sqlite3_column_int64(unsafe.Pointer(stmt), int32(index))
}

/** Return TEXT column value as a Go string (copied; 0-based index) */
func sqlite3_column_text(stmt sqliteStmt, index int) string {
	n := c_sqlite3_column_bytes(unsafe.Pointer(stmt), int32(index))
	if n <= 0 {
		return ""
	}
	ptr := c_sqlite3_column_text(unsafe.Pointer(stmt), int32(index))
	if ptr == nil {
		return ""
	}
	buf := make([]byte, n)
	base := uintptr(ptr)
	for i := int32(0); i < n; i++ {
		buf[i] = *(*byte)(unsafe.Pointer(base + uintptr(i)))
	}
	return string(buf)
}

/** Return BLOB column value as a Go byte slice (copied; 0-based index) */
func sqlite3_column_blob(stmt sqliteStmt, index int) []byte {
	n := c_sqlite3_column_bytes(unsafe.Pointer(stmt), int32(index))
	if n <= 0 {
		return nil
	}
	ptr := c_sqlite3_column_blob(unsafe.Pointer(stmt), int32(index))
	if ptr == nil {
		return nil
	}
	out := make([]byte, n)
	base := uintptr(ptr)
	for i := int32(0); i < n; i++ {
		out[i] = *(*byte)(unsafe.Pointer(base + uintptr(i)))
	}
	return out
}

/** Return the storage type of the column value (0-based index) */
func sqlite3_column_type(stmt sqliteStmt, index int) sqliteColumnType {
	return c_sqlite3_column_type(unsafe.Pointer(stmt), int32(index))
}

/** Return number of columns produced by the statement */
func sqlite3_column_count(stmt sqliteStmt) int {
	return int(c_sqlite3_column_count(unsafe.Pointer(stmt)))
}

/** Rewind a statement to its initial state, keeping bindings */
func sqlite3_reset(stmt sqliteStmt) sqliteStatusCode {
	return c_sqlite3_reset(unsafe.Pointer(stmt))
}

/** Clear all parameter bindings back to NULL */
func sqlite3_clear_bindings(stmt sqliteStmt) sqliteStatusCode {
	return c_sqlite3_clear_bindings(unsafe.Pointer(stmt))
}

/** Release a compiled statement
 * SAFETY: caller must ensure that no other code can concurrently or later
 * call methods over the finalized statement.
 */
func sqlite3_finalize(stmt sqliteStmt) sqliteStatusCode {
	if stmt == nil {
		return SQLITE_OK
	}
	return c_sqlite3_finalize(unsafe.Pointer(stmt))
}

/** Set the busy handler timeout in milliseconds; 0 disables it */
func sqlite3_busy_timeout(db sqliteDB, ms int) sqliteStatusCode {
	return c_sqlite3_busy_timeout(unsafe.Pointer(db), int32(ms))
}

/** Checkpoint the write-ahead log of every attached database */
func sqlite3_wal_checkpoint_v2(db sqliteDB, mode int32) (logFrames int, checkpointed int, code sqliteStatusCode) {
	var nLog, nCkpt int32
	code = c_sqlite3_wal_checkpoint_v2(unsafe.Pointer(db), 0, mode, unsafe.Pointer(&nLog), unsafe.Pointer(&nCkpt))
	return int(nLog), int(nCkpt), code
}

/** Return the number of rows changed by the most recent statement */
func sqlite3_changes(db sqliteDB) int {
	return int(c_sqlite3_changes(unsafe.Pointer(db)))
}

/** Return the engine library version string */
func sqlite3_libversion() string {
	return copyCString(c_sqlite3_libversion())
}

/** Report the engine's compiled threading mode (0 = single-thread) */
func sqlite3_threadsafe() bool {
	return c_sqlite3_threadsafe() != 0
}
