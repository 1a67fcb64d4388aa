package doclite

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// IdentityModel selects how documents are keyed physically.
type IdentityModel int

const (
	// IdentityPath stores one documents column; identity lives at a JSON
	// path inside the document and is enforced with a unique expression
	// index when the caller creates one.
	IdentityPath IdentityModel = iota
	// IdentityColumn adds an explicit id TEXT PRIMARY KEY column populated
	// from Config.KeyPath on Add and Update.
	IdentityColumn
)

// DefaultBusyTimeout is the busy-handler timeout applied when Config leaves
// BusyTimeout at zero, in milliseconds.
const DefaultBusyTimeout = 5000

// Config describes one Connection. It is captured at Open; mutating it
// afterwards has no effect on the connection (and would be unsafe for the
// codec, which cached statements capture implicitly).
type Config struct {
	// Codec configures document serialization and path naming.
	Codec CodecConfig
	// Identity selects the document identity model.
	Identity IdentityModel
	// KeyPath is the JSON path feeding the id column under IdentityColumn.
	// Defaults to "id". Ignored under IdentityPath.
	KeyPath Path
	// BusyTimeout in milliseconds. 0 applies DefaultBusyTimeout, -1
	// disables the busy handler.
	BusyTimeout int
	// Logger receives debug/warn events; nil silences them.
	Logger *slog.Logger
	// Library overrides how the engine shared library is located. Only the
	// first Open in the process can influence loading.
	Library LibraryConfig
}

// Connection owns the engine handle, the registry of live Tables keyed by
// name, and the connection-wide pragmas (WAL journal mode, busy timeout).
// The handle is never shared across Connections.
type Connection struct {
	path    string
	version string
	codec   *Codec
	config  Config
	log     *slog.Logger

	mu     sync.Mutex
	txMu   sync.Mutex // serializes Batch scopes; held from BEGIN through COMMIT
	db     sqliteDB
	tables map[string]*Table
	stmts  map[string]*statement
	closed bool
}

// Open creates or opens the database file at path and applies the
// connection-wide pragmas. Nothing needs rolling back when it fails: no
// Table exists yet and the partially-opened handle is released here.
func Open(path string, config Config) (*Connection, error) {
	if err := InitLibrary(config.Library); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if config.KeyPath == "" {
		config.KeyPath = "id"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, code := sqlite3_open_v2(path, SQLITE_OPEN_READWRITE|SQLITE_OPEN_CREATE|SQLITE_OPEN_FULLMUTEX)
	if code != SQLITE_OK {
		msg := sqlite3_errmsg(db)
		sqlite3_close_v2(db)
		return nil, fmt.Errorf("%w: %q: %s", ErrOpen, path, msg)
	}

	timeout := config.BusyTimeout
	if timeout == 0 {
		timeout = DefaultBusyTimeout
	} else if timeout < 0 {
		timeout = 0
	}
	if timeout > 0 {
		sqlite3_busy_timeout(db, timeout)
	}

	c := &Connection{
		path:    path,
		version: sqlite3_libversion(),
		codec:   NewCodec(config.Codec),
		config:  config,
		log:     logger,
		db:      db,
		tables:  make(map[string]*Table),
		stmts:   make(map[string]*statement),
	}
	if err := c.exec(`PRAGMA journal_mode=WAL`); err != nil {
		sqlite3_close_v2(db)
		return nil, fmt.Errorf("%w: %q: enabling WAL: %v", ErrOpen, path, err)
	}
	c.log.Debug("connection opened", "path", path, "engine", c.version)
	return c, nil
}

// Path returns the backing file path.
func (c *Connection) Path() string { return c.path }

// Version returns the engine library version string.
func (c *Connection) Version() string { return c.version }

// Codec returns the connection's document codec.
func (c *Connection) Codec() *Codec { return c.codec }

// GetTable returns the Table registered under name, creating both the
// physical table (idempotent DDL) and the wrapper on first request. Two
// calls with the same name on one connection yield the same instance.
func (c *Connection) GetTable(name string) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("%w: connection %q", ErrDisposed, c.path)
	}
	if t, ok := c.tables[name]; ok {
		return t, nil
	}
	if err := c.execLocked(createTableSQL(name, c.config.Identity)); err != nil {
		return nil, err
	}
	t := newTable(c, name)
	c.tables[name] = t
	c.log.Debug("table opened", "table", name)
	return t, nil
}

// TableExists reports whether a physical table named name exists.
func (c *Connection) TableExists(name string) (bool, error) {
	s, err := c.stmt("tableexists",
		`SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?1)`)
	if err != nil {
		return false, err
	}
	found, _, err := execute(s, func(b *binder) { b.Text(1, name) },
		func(r *row) bool { return r.Int(0) != 0 })
	return found, err
}

// CreateTable creates the physical table if absent. GetTable does this
// implicitly; the passthrough exists for callers managing schema directly.
func (c *Connection) CreateTable(name string) error {
	return c.exec(createTableSQL(name, c.config.Identity))
}

// DropTable drops the physical table if present. A live Table wrapper for
// name is NOT invalidated: its cached statements still reference the dropped
// schema and must not be used afterwards.
func (c *Connection) DropTable(name string) error {
	return c.exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(name)))
}

// DropAndCreateTable recreates the physical table empty. The same live
// wrapper hazard as DropTable applies.
func (c *Connection) DropAndCreateTable(name string) error {
	if err := c.DropTable(name); err != nil {
		return err
	}
	return c.CreateTable(name)
}

// Checkpoint folds the write-ahead log back into the main database file and
// truncates the log to zero bytes, leaving the connection usable. Callers
// use it to guarantee the main file is complete before external consumers
// read it.
func (c *Connection) Checkpoint() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.db == nil {
		return fmt.Errorf("%w: connection %q", ErrDisposed, c.path)
	}
	logFrames, checkpointed, code := sqlite3_wal_checkpoint_v2(c.db, SQLITE_CHECKPOINT_TRUNCATE)
	if code != SQLITE_OK {
		return engineError(c.db, code, "wal checkpoint")
	}
	c.log.Debug("wal checkpointed", "frames", logFrames, "checkpointed", checkpointed)
	return nil
}

// Batch runs fn inside one transaction scope. Scopes on one connection are
// serialized: a second Batch waits until the first one finished, so the
// engine never sees nested BEGINs. The transaction commits when fn returns -
// even when it returns an error - unless fn already called Rollback; callers
// wanting rollback-on-error roll back explicitly. A commit failure is
// returned when fn itself succeeded, otherwise fn's error wins and the
// commit failure is logged.
func (c *Connection) Batch(fn func(tx *Tx) error) (err error) {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.txMu.Lock()
	defer c.txMu.Unlock()
	if err := c.exec(`BEGIN`); err != nil {
		return err
	}
	tx := &Tx{conn: c}
	defer func() {
		cerr := tx.Commit()
		if cerr == nil || cerr == ErrTxDone {
			return
		}
		if err == nil {
			err = cerr
			return
		}
		c.log.Warn("batch commit failed", "error", cerr)
	}()
	return fn(tx)
}

// Close disposes every registered Table, finalizes connection-scoped
// statements, and closes the engine handle, which removes the WAL side
// files. Idempotent; every other operation fails with ErrDisposed after it.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	tables := make([]*Table, 0, len(c.tables))
	for _, t := range c.tables {
		tables = append(tables, t)
	}
	c.mu.Unlock()

	// teardown is top-down: tables finalize their statements and
	// deregister themselves before the handle goes away
	for _, t := range tables {
		t.Dispose()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.stmts {
		s.finalize()
	}
	c.stmts = nil
	if c.db != nil {
		if code := sqlite3_close_v2(c.db); code != SQLITE_OK {
			err := statusError(code, "", "close")
			c.log.Warn("engine close failed", "error", err)
			c.db = nil
			return err
		}
		c.db = nil
	}
	c.log.Debug("connection closed", "path", c.path)
	return nil
}

// forget removes name from the registry; called by Table.Dispose only.
func (c *Connection) forget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tables, name)
}

func (c *Connection) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.db == nil {
		return fmt.Errorf("%w: connection %q", ErrDisposed, c.path)
	}
	return nil
}

// exec runs sql without results, holding the connection lock across the
// engine call so a concurrent Close cannot pull the handle away mid-call.
// Callers hold no expectation of rows; the engine's exec primitive discards
// any.
func (c *Connection) exec(sql string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.execLocked(sql)
}

// execLocked is exec for callers already holding c.mu.
func (c *Connection) execLocked(sql string) error {
	if c.closed || c.db == nil {
		return fmt.Errorf("%w: connection %q", ErrDisposed, c.path)
	}
	code := sqlite3_exec(c.db, sql)
	if code != SQLITE_OK {
		return engineError(c.db, code, sql)
	}
	return nil
}

// stmt returns the connection-scoped cached statement for key.
func (c *Connection) stmt(key, sql string) (*statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("%w: connection %q", ErrDisposed, c.path)
	}
	if s, ok := c.stmts[key]; ok {
		return s, nil
	}
	s, err := prepareStatement(c.db, sql)
	if err != nil {
		return nil, err
	}
	c.stmts[key] = s
	return s, nil
}

func createTableSQL(name string, identity IdentityModel) string {
	// NOT NULL because SQLite admits NULL in non-INTEGER primary key
	// columns; a document missing the key path must fail, not insert
	// a keyless row.
	if identity == IdentityColumn {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY NOT NULL, documents TEXT NOT NULL)`, quoteIdent(name))
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (documents TEXT NOT NULL)`, quoteIdent(name))
}

// Tx is one explicit transaction scope produced by Batch. Commit and
// Rollback are each valid once; the second of either returns ErrTxDone.
type Tx struct {
	conn *Connection
	done bool
}

func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	return tx.conn.exec(`COMMIT`)
}

func (tx *Tx) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	return tx.conn.exec(`ROLLBACK`)
}
