package doclite

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Table is one named collection of JSON documents. It owns a lazily-populated
// cache of prepared statements for its operations and holds a non-owning
// back-reference to its Connection used only to deregister on Dispose.
//
// A Table stays bound to the physical table that existed when it was created.
// Dropping that table through the Connection DDL passthroughs does not
// invalidate the cached statements; keep using the wrapper after a drop and
// the engine will report errors against the stale schema.
type Table struct {
	conn  *Connection
	db    sqliteDB // non-owning; valid until Dispose because Connection tears tables down first
	codec *Codec
	log   *slog.Logger
	name  string

	identity IdentityModel
	keyPath  Path

	mu       sync.Mutex
	stmts    map[string]*statement
	disposed bool
}

func newTable(conn *Connection, name string) *Table {
	return &Table{
		conn:     conn,
		db:       conn.db,
		codec:    conn.codec,
		log:      conn.log,
		name:     name,
		identity: conn.config.Identity,
		keyPath:  conn.config.KeyPath,
		stmts:    make(map[string]*statement),
	}
}

// Name returns the collection name the table was created with.
func (t *Table) Name() string { return t.name }

// stmt returns the cached statement for key, preparing and storing it on
// first use. The cache key carries the derived JSON path where the SQL text
// does, so one logical operation maps to one compiled program per selector.
func (t *Table) stmt(key, sql string) (*statement, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return nil, fmt.Errorf("%w: table %q", ErrDisposed, t.name)
	}
	if s, ok := t.stmts[key]; ok {
		return s, nil
	}
	s, err := prepareStatement(t.db, sql)
	if err != nil {
		return nil, err
	}
	t.stmts[key] = s
	return s, nil
}

// Count returns the number of stored documents.
func (t *Table) Count() (int, error) {
	s, err := t.stmt("count", fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(t.name)))
	if err != nil {
		return 0, err
	}
	n, _, err := execute(s, nil, func(r *row) int { return r.Int(0) })
	return n, err
}

// LongCount is Count with 64-bit range.
func (t *Table) LongCount() (int64, error) {
	s, err := t.stmt("count", fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(t.name)))
	if err != nil {
		return 0, err
	}
	n, _, err := execute(s, nil, func(r *row) int64 { return r.Int64(0) })
	return n, err
}

// Clear deletes every document. Cached statements and indexes survive.
func (t *Table) Clear() error {
	s, err := t.stmt("clear", fmt.Sprintf(`DELETE FROM %s`, quoteIdent(t.name)))
	if err != nil {
		return err
	}
	if err := s.exec(); err != nil {
		return err
	}
	t.log.Debug("table cleared", "table", t.name, "rows", sqlite3_changes(t.db))
	return nil
}

// Exists reports whether any document's value at keySelector equals key.
func (t *Table) Exists(keySelector Path, key any) (bool, error) {
	if err := keySelector.validate(); err != nil {
		return false, err
	}
	keyJSON, err := t.codec.Marshal(key)
	if err != nil {
		return false, err
	}
	sql := fmt.Sprintf(
		`SELECT EXISTS(SELECT 1 FROM %s WHERE json_extract(documents, '%s') = json_extract(?1, '$'))`,
		quoteIdent(t.name), keySelector.jsonPath())
	s, err := t.stmt("exists:"+string(keySelector), sql)
	if err != nil {
		return false, err
	}
	found, _, err := execute(s, func(b *binder) { b.Text(1, string(keyJSON)) },
		func(r *row) bool { return r.Int(0) != 0 })
	return found, err
}

// Add inserts document as a new row. Key collisions are not checked here;
// a unique index or identity-column collision surfaces as ErrConstraint.
func (t *Table) Add(document any) error {
	data, err := t.codec.Marshal(document)
	if err != nil {
		return err
	}
	var sql string
	if t.identity == IdentityColumn {
		sql = fmt.Sprintf(`INSERT INTO %s (id, documents) VALUES (json_extract(?1, '%s'), json(?1))`,
			quoteIdent(t.name), t.keyPath.jsonPath())
	} else {
		sql = fmt.Sprintf(`INSERT INTO %s (documents) VALUES (json(?1))`, quoteIdent(t.name))
	}
	s, err := t.stmt("add", sql)
	if err != nil {
		return err
	}
	_, _, err = execute[struct{}](s, func(b *binder) { b.Text(1, string(data)) }, nil)
	return err
}

// AddMany inserts documents inside one transaction scope; on the first
// failure the batch is rolled back and nothing is kept.
func (t *Table) AddMany(documents ...any) error {
	return t.conn.Batch(func(tx *Tx) error {
		for _, d := range documents {
			if err := t.Add(d); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return nil
	})
}

// Update overwrites the stored document whose value at keySelector matches
// the same path inside document itself.
func (t *Table) Update(document any, keySelector Path) error {
	if err := keySelector.validate(); err != nil {
		return err
	}
	data, err := t.codec.Marshal(document)
	if err != nil {
		return err
	}
	p := keySelector.jsonPath()
	var sql string
	if t.identity == IdentityColumn {
		sql = fmt.Sprintf(
			`UPDATE %s SET id = json_extract(?1, '%s'), documents = json(?1) WHERE json_extract(documents, '%s') = json_extract(?1, '%s')`,
			quoteIdent(t.name), t.keyPath.jsonPath(), p, p)
	} else {
		sql = fmt.Sprintf(
			`UPDATE %s SET documents = json(?1) WHERE json_extract(documents, '%s') = json_extract(?1, '%s')`,
			quoteIdent(t.name), p, p)
	}
	s, err := t.stmt("update:"+string(keySelector), sql)
	if err != nil {
		return err
	}
	_, _, err = execute[struct{}](s, func(b *binder) { b.Text(1, string(data)) }, nil)
	return err
}

// Insert, Replace and Set apply one partial update to the document located
// by keySelector = key, differing only in how the engine's JSON merge treats
// the target path:
//
//	Insert  - keeps an existing value, creates the path when absent
//	Replace - overwrites an existing value, no-ops when the path is absent
//	Set     - overwrites and creates
//
// None of the three reports whether anything changed; the merge primitive is
// silent on no-ops, and "path already had that value" is indistinguishable
// from "no matching document". Callers needing certainty must Find first.
func (t *Table) Insert(keySelector, propertySelector Path, key, value any) error {
	return t.mergeUpdate("json_insert", keySelector, propertySelector, key, value)
}

func (t *Table) Replace(keySelector, propertySelector Path, key, value any) error {
	return t.mergeUpdate("json_replace", keySelector, propertySelector, key, value)
}

func (t *Table) Set(keySelector, propertySelector Path, key, value any) error {
	return t.mergeUpdate("json_set", keySelector, propertySelector, key, value)
}

func (t *Table) mergeUpdate(fn string, keySelector, propertySelector Path, key, value any) error {
	if err := keySelector.validate(); err != nil {
		return err
	}
	if err := propertySelector.validate(); err != nil {
		return err
	}
	keyJSON, err := t.codec.Marshal(key)
	if err != nil {
		return err
	}
	valueJSON, err := t.codec.Marshal(value)
	if err != nil {
		return err
	}
	sql := fmt.Sprintf(
		`UPDATE %s SET documents = %s(documents, '%s', json(?1)) WHERE json_extract(documents, '%s') = json_extract(?2, '$')`,
		quoteIdent(t.name), fn, propertySelector.jsonPath(), keySelector.jsonPath())
	s, err := t.stmt(fn+":"+string(keySelector)+":"+string(propertySelector), sql)
	if err != nil {
		return err
	}
	_, _, err = execute[struct{}](s, func(b *binder) {
		b.Text(1, string(valueJSON))
		b.Text(2, string(keyJSON))
	}, nil)
	return err
}

// Delete removes the documents matching key. Deleting an absent key is a
// no-op, not an error.
func (t *Table) Delete(keySelector Path, key any) error {
	if err := keySelector.validate(); err != nil {
		return err
	}
	keyJSON, err := t.codec.Marshal(key)
	if err != nil {
		return err
	}
	sql := fmt.Sprintf(
		`DELETE FROM %s WHERE json_extract(documents, '%s') = json_extract(?1, '$')`,
		quoteIdent(t.name), keySelector.jsonPath())
	s, err := t.stmt("delete:"+string(keySelector), sql)
	if err != nil {
		return err
	}
	_, _, err = execute[struct{}](s, func(b *binder) { b.Text(1, string(keyJSON)) }, nil)
	return err
}

// indexName builds the deterministic physical index name.
func (t *Table) indexName(name string) string {
	return t.name + "_" + name
}

// IndexExists reports whether CreateIndex(selector, name) has run before.
func (t *Table) IndexExists(name string) (bool, error) {
	s, err := t.stmt("indexexists",
		`SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type = 'index' AND name = ?1)`)
	if err != nil {
		return false, err
	}
	full := t.indexName(name)
	found, _, err := execute(s, func(b *binder) { b.Text(1, full) },
		func(r *row) bool { return r.Int(0) != 0 })
	return found, err
}

// CreateIndex builds an expression index named "{table}_{name}" over the JSON
// path derived from selector. Creation is idempotent on the index name for
// both forms; creating a unique index while stored documents already carry
// duplicate values at the path fails with ErrConstraint.
func (t *Table) CreateIndex(selector Path, name string, unique bool) error {
	if err := selector.validate(); err != nil {
		return err
	}
	kw := ""
	if unique {
		kw = "UNIQUE "
	}
	sql := fmt.Sprintf(`CREATE %sINDEX IF NOT EXISTS %s ON %s (json_extract(documents, '%s'))`,
		kw, quoteIdent(t.indexName(name)), quoteIdent(t.name), selector.jsonPath())
	s, err := t.stmt("createindex:"+t.indexName(name)+":"+kw, sql)
	if err != nil {
		return err
	}
	if err := s.exec(); err != nil {
		return err
	}
	t.log.Debug("index created", "table", t.name, "index", t.indexName(name), "unique", unique)
	return nil
}

// DeleteIndex drops the index and reports whether it existed.
func (t *Table) DeleteIndex(name string) (bool, error) {
	existed, err := t.IndexExists(name)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}
	sql := fmt.Sprintf(`DROP INDEX IF EXISTS %s`, quoteIdent(t.indexName(name)))
	s, err := t.stmt("dropindex:"+t.indexName(name), sql)
	if err != nil {
		return false, err
	}
	if err := s.exec(); err != nil {
		return false, err
	}
	t.log.Debug("index dropped", "table", t.name, "index", t.indexName(name))
	return true, nil
}

// Dispose finalizes every cached statement exactly once and deregisters the
// table from its connection. Safe to call repeatedly; all other operations
// fail with ErrDisposed afterwards.
func (t *Table) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	stmts := t.stmts
	t.stmts = nil
	t.mu.Unlock()

	for _, s := range stmts {
		s.finalize()
	}
	t.conn.forget(t.name)
	t.log.Debug("table disposed", "table", t.name)
}

// raw accessors shared by the generic wrappers

func (t *Table) allDocs() ([][]byte, error) {
	s, err := t.stmt("all", fmt.Sprintf(`SELECT documents FROM %s`, quoteIdent(t.name)))
	if err != nil {
		return nil, err
	}
	return executeMany(s, nil, func(r *row) []byte { return []byte(r.Text(0)) })
}

func (t *Table) findDoc(keySelector Path, key any) ([]byte, error) {
	if err := keySelector.validate(); err != nil {
		return nil, err
	}
	keyJSON, err := t.codec.Marshal(key)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf(
		`SELECT documents FROM %s WHERE json_extract(documents, '%s') = json_extract(?1, '$') LIMIT 1`,
		quoteIdent(t.name), keySelector.jsonPath())
	s, err := t.stmt("find:"+string(keySelector), sql)
	if err != nil {
		return nil, err
	}
	doc, hadRow, err := execute(s, func(b *binder) { b.Text(1, string(keyJSON)) },
		func(r *row) []byte { return []byte(r.Text(0)) })
	if err != nil {
		return nil, err
	}
	if !hadRow {
		return nil, fmt.Errorf("%w: table %q, %s = %s", ErrKeyNotFound, t.name, keySelector, keyJSON)
	}
	return doc, nil
}

func (t *Table) findProp(keySelector, propertySelector Path, key any) ([]byte, bool, error) {
	if err := keySelector.validate(); err != nil {
		return nil, false, err
	}
	if err := propertySelector.validate(); err != nil {
		return nil, false, err
	}
	keyJSON, err := t.codec.Marshal(key)
	if err != nil {
		return nil, false, err
	}
	// The property is selected twice. The raw extract carries presence: it is
	// SQL NULL when the path is absent (json_quote would fold that NULL into
	// the TEXT 'null' and hide it). The quoted extract carries the value:
	// json_quote re-quotes scalars and keeps objects/arrays intact, so the
	// column is always valid JSON for the codec.
	sql := fmt.Sprintf(
		`SELECT json_extract(documents, '%[1]s') IS NULL, json_quote(json_extract(documents, '%[1]s')) FROM %[2]s WHERE json_extract(documents, '%[3]s') = json_extract(?1, '$') LIMIT 1`,
		propertySelector.jsonPath(), quoteIdent(t.name), keySelector.jsonPath())
	s, err := t.stmt("findprop:"+string(keySelector)+":"+string(propertySelector), sql)
	if err != nil {
		return nil, false, err
	}
	type propRow struct {
		data []byte
		null bool
	}
	res, hadRow, err := execute(s, func(b *binder) { b.Text(1, string(keyJSON)) },
		func(r *row) propRow { return propRow{null: r.Int(0) != 0, data: []byte(r.Text(1))} })
	if err != nil {
		return nil, false, err
	}
	if !hadRow || res.null {
		return nil, false, nil
	}
	return res.data, true, nil
}

// Generic wrappers. Go methods cannot carry type parameters, so the typed
// document surface lives on package-level functions over a *Table.

// All deserializes every stored document in storage order. The order is not
// guaranteed stable across engine-internal reorganizations.
func All[T any](t *Table) ([]T, error) {
	raws, err := t.allDocs()
	if err != nil {
		return nil, err
	}
	out := make([]T, len(raws))
	for i, raw := range raws {
		if err := t.codec.Unmarshal(raw, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Find returns the first document whose value at keySelector equals key, or
// ErrKeyNotFound when none match.
func Find[T any](t *Table, keySelector Path, key any) (T, error) {
	var doc T
	raw, err := t.findDoc(keySelector, key)
	if err != nil {
		return doc, err
	}
	if err := t.codec.Unmarshal(raw, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// FindProperty extracts the value at propertySelector from the matching
// document without deserializing the whole document. ok is false both when
// no document matches and when the document lacks the path; the two causes
// are not distinguished.
func FindProperty[P any](t *Table, keySelector, propertySelector Path, key any) (value P, ok bool, err error) {
	raw, ok, err := t.findProp(keySelector, propertySelector, key)
	if err != nil || !ok {
		return value, false, err
	}
	if err := t.codec.Unmarshal(raw, &value); err != nil {
		return value, false, err
	}
	return value, true, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
