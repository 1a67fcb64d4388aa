package doclite

import (
	"bytes"
	"errors"
	"testing"
)

// helper to open an in-memory database for raw binding tests
func openMemoryDB(t *testing.T) sqliteDB {
	t.Helper()
	requireLib(t)
	db, code := sqlite3_open_v2(":memory:", SQLITE_OPEN_READWRITE|SQLITE_OPEN_CREATE|SQLITE_OPEN_FULLMUTEX)
	if code != SQLITE_OK {
		t.Fatalf("sqlite3_open_v2 failed: status %d", code)
	}
	t.Cleanup(func() { sqlite3_close_v2(db) })
	return db
}

func TestOpenMemoryDB(t *testing.T) {
	db := openMemoryDB(t)
	if v := sqlite3_libversion(); v == "" {
		t.Fatalf("expected a library version string")
	}
	if !sqlite3_threadsafe() {
		t.Fatalf("engine must be compiled threadsafe for serialized handles")
	}
	if code := sqlite3_exec(db, "SELECT 1"); code != SQLITE_OK {
		t.Fatalf("exec failed: status %d: %s", code, sqlite3_errmsg(db))
	}
}

func TestPrepareBindStepColumnRoundtrip(t *testing.T) {
	db := openMemoryDB(t)

	if code := sqlite3_exec(db, "CREATE TABLE t (id INTEGER, big INTEGER, name TEXT, data BLOB)"); code != SQLITE_OK {
		t.Fatalf("create table failed: %s", sqlite3_errmsg(db))
	}

	stmt, code := sqlite3_prepare_v2(db, "INSERT INTO t (id, big, name, data) VALUES (?, ?, ?, ?)")
	if code != SQLITE_OK {
		t.Fatalf("prepare insert failed: %s", sqlite3_errmsg(db))
	}
	if code := sqlite3_bind_int(stmt, 1, 7); code != SQLITE_OK {
		t.Fatalf("bind int failed: status %d", code)
	}
	if code := sqlite3_bind_int64(stmt, 2, 1<<40); code != SQLITE_OK {
		t.Fatalf("bind int64 failed: status %d", code)
	}
	if code := sqlite3_bind_text(stmt, 3, "alice"); code != SQLITE_OK {
		t.Fatalf("bind text failed: status %d", code)
	}
	if code := sqlite3_bind_blob(stmt, 4, []byte{1, 2, 3}); code != SQLITE_OK {
		t.Fatalf("bind blob failed: status %d", code)
	}
	if code := sqlite3_step(stmt); code != SQLITE_DONE {
		t.Fatalf("step insert: expected DONE, got %d: %s", code, sqlite3_errmsg(db))
	}
	if code := sqlite3_finalize(stmt); code != SQLITE_OK {
		t.Fatalf("finalize insert failed: status %d", code)
	}

	stmt, code = sqlite3_prepare_v2(db, "SELECT id, big, name, data FROM t")
	if code != SQLITE_OK {
		t.Fatalf("prepare select failed: %s", sqlite3_errmsg(db))
	}
	defer sqlite3_finalize(stmt)

	if code := sqlite3_step(stmt); code != SQLITE_ROW {
		t.Fatalf("step select: expected ROW, got %d", code)
	}
	if n := sqlite3_column_count(stmt); n != 4 {
		t.Fatalf("expected 4 columns, got %d", n)
	}
	if got := sqlite3_column_int(stmt, 0); got != 7 {
		t.Fatalf("column int: expected 7, got %d", got)
	}
	if got := sqlite3_column_int64(stmt, 1); got != 1<<40 {
		t.Fatalf("column int64: expected %d, got %d", int64(1)<<40, got)
	}
	if got := sqlite3_column_text(stmt, 2); got != "alice" {
		t.Fatalf("column text: expected alice, got %q", got)
	}
	if got := sqlite3_column_blob(stmt, 3); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("column blob: expected [1 2 3], got %v", got)
	}
	if kind := sqlite3_column_type(stmt, 2); kind != SQLITE_TEXT {
		t.Fatalf("column type: expected TEXT, got %d", kind)
	}
	if code := sqlite3_step(stmt); code != SQLITE_DONE {
		t.Fatalf("step select: expected DONE after one row, got %d", code)
	}
}

func TestResetAndClearBindings(t *testing.T) {
	db := openMemoryDB(t)
	if code := sqlite3_exec(db, "CREATE TABLE t (v TEXT)"); code != SQLITE_OK {
		t.Fatalf("create table failed: %s", sqlite3_errmsg(db))
	}
	stmt, code := sqlite3_prepare_v2(db, "INSERT INTO t (v) VALUES (?)")
	if code != SQLITE_OK {
		t.Fatalf("prepare failed: %s", sqlite3_errmsg(db))
	}
	defer sqlite3_finalize(stmt)

	for _, v := range []string{"a", "b"} {
		if code := sqlite3_bind_text(stmt, 1, v); code != SQLITE_OK {
			t.Fatalf("bind failed: status %d", code)
		}
		if code := sqlite3_step(stmt); code != SQLITE_DONE {
			t.Fatalf("step failed: status %d", code)
		}
		if code := sqlite3_clear_bindings(stmt); code != SQLITE_OK {
			t.Fatalf("clear_bindings failed: status %d", code)
		}
		if code := sqlite3_reset(stmt); code != SQLITE_OK {
			t.Fatalf("reset failed: status %d", code)
		}
	}
	// after clear_bindings the parameter is NULL; the insert still runs
	if code := sqlite3_step(stmt); code != SQLITE_DONE {
		t.Fatalf("step with cleared bindings failed: status %d", code)
	}
}

func TestDefaultLibraryNames(t *testing.T) {
	names, err := defaultLibraryNames("linux")
	if err != nil {
		t.Fatalf("linux: %v", err)
	}
	// the runtime soname comes first; the unversioned name only exists on
	// hosts with the development package installed
	if len(names) == 0 || names[0] != "libsqlite3.so.0" {
		t.Fatalf("linux: expected libsqlite3.so.0 first, got %v", names)
	}
	if _, err := defaultLibraryNames("plan9"); err == nil {
		t.Fatalf("expected an error for an unsupported OS")
	}
}

func TestStatusErrorMapping(t *testing.T) {
	for _, code := range []sqliteStatusCode{SQLITE_OK, SQLITE_ROW, SQLITE_DONE} {
		if err := statusError(code, "ignored", "op"); err != nil {
			t.Fatalf("status %d must not be an error, got %v", code, err)
		}
	}
	if err := statusError(SQLITE_CONSTRAINT, "UNIQUE constraint failed", "insert"); !errors.Is(err, ErrConstraint) {
		t.Fatalf("expected ErrConstraint, got %v", err)
	}
	// extended constraint code (SQLITE_CONSTRAINT_UNIQUE = 19 | 8<<8)
	if err := statusError(19|8<<8, "", "insert"); !errors.Is(err, ErrConstraint) {
		t.Fatalf("expected ErrConstraint from extended code, got %v", err)
	}
	if err := statusError(SQLITE_CANTOPEN, "", "open"); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if err := statusError(SQLITE_MISUSE, "out of sequence", "step"); err == nil {
		t.Fatalf("expected a generic engine error")
	}
}
