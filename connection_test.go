package doclite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenRejectsBadPath(t *testing.T) {
	requireLib(t)
	_, err := Open(filepath.Join(t.TempDir(), "missing", "nested", "db.sqlite"), Config{})
	require.ErrorIs(t, err, ErrOpen)
}

func TestVersionAndPath(t *testing.T) {
	conn := openTestConn(t, Config{})
	require.NotEmpty(t, conn.Version())
	require.NotEmpty(t, conn.Path())
}

func TestGetTableIsIdempotent(t *testing.T) {
	conn := openTestConn(t, Config{})
	a, err := conn.GetTable("users")
	require.NoError(t, err)
	b, err := conn.GetTable("users")
	require.NoError(t, err)
	require.Same(t, a, b)

	other, err := conn.GetTable("Users") // names are case-sensitive
	require.NoError(t, err)
	require.NotSame(t, a, other)
}

func TestTableExistsAndDDLPassthrough(t *testing.T) {
	conn := openTestConn(t, Config{})

	ok, err := conn.TableExists("users")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, conn.CreateTable("users"))
	ok, err = conn.TableExists("users")
	require.NoError(t, err)
	require.True(t, ok)

	// idempotent DDL
	require.NoError(t, conn.CreateTable("users"))

	require.NoError(t, conn.DropTable("users"))
	ok, err = conn.TableExists("users")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, conn.DropTable("users")) // drop of absent table no-ops

	table, err := conn.GetTable("events")
	require.NoError(t, err)
	require.NoError(t, table.Add(user{ID: "u1"}))
	require.NoError(t, conn.DropAndCreateTable("events"))

	fresh, err := conn.GetTable("events") // same live wrapper, per registry
	require.NoError(t, err)
	require.Same(t, table, fresh)
}

func TestWALSideFilesRemovedOnClose(t *testing.T) {
	requireLib(t)
	path := filepath.Join(t.TempDir(), "wal.db")
	conn, err := Open(path, Config{})
	require.NoError(t, err)

	table, err := conn.GetTable("users")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, table.Add(user{ID: fmt.Sprintf("u%d", i), Name: "payload"}))
	}

	walPath := path + "-wal"
	info, err := os.Stat(walPath)
	require.NoError(t, err, "WAL side file must exist while the log holds frames")
	require.Positive(t, info.Size())

	require.NoError(t, conn.Close())
	_, err = os.Stat(walPath)
	require.True(t, os.IsNotExist(err), "WAL file must be removed on orderly close")
	_, err = os.Stat(path + "-shm")
	require.True(t, os.IsNotExist(err), "shared-memory file must be removed on orderly close")
}

func TestCheckpointFoldsWALWithoutClosing(t *testing.T) {
	requireLib(t)
	path := filepath.Join(t.TempDir(), "ckpt.db")
	conn, err := Open(path, Config{})
	require.NoError(t, err)
	defer conn.Close()

	table, err := conn.GetTable("users")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, table.Add(user{ID: fmt.Sprintf("u%d", i), Name: "payload"}))
	}

	require.NoError(t, conn.Checkpoint())
	if info, err := os.Stat(path + "-wal"); err == nil {
		require.Zero(t, info.Size(), "checkpoint must fold every frame back into the main file")
	}

	// the connection stays usable
	count, err := table.Count()
	require.NoError(t, err)
	require.Equal(t, 50, count)
}

func TestCloseCascadesAndIsIdempotent(t *testing.T) {
	conn := openTestConn(t, Config{})
	table, err := conn.GetTable("users")
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close()) // idempotent

	_, err = table.Count()
	require.ErrorIs(t, err, ErrDisposed)
	_, err = conn.GetTable("users")
	require.ErrorIs(t, err, ErrDisposed)
	_, err = conn.TableExists("users")
	require.ErrorIs(t, err, ErrDisposed)
	require.ErrorIs(t, conn.Checkpoint(), ErrDisposed)
	require.ErrorIs(t, conn.CreateTable("x"), ErrDisposed)
	require.ErrorIs(t, conn.Batch(func(tx *Tx) error { return nil }), ErrDisposed)
}

func TestBatchCommitsOnExit(t *testing.T) {
	conn := openTestConn(t, Config{})
	table, err := conn.GetTable("users")
	require.NoError(t, err)

	// the scope commits even when fn reports an error; rollback is explicit
	sentinel := errors.New("boom")
	err = conn.Batch(func(tx *Tx) error {
		require.NoError(t, table.Add(user{ID: "kept"}))
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	ok, err := table.Exists(userID, "kept")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBatchExplicitRollback(t *testing.T) {
	conn := openTestConn(t, Config{})
	table, err := conn.GetTable("users")
	require.NoError(t, err)

	err = conn.Batch(func(tx *Tx) error {
		require.NoError(t, table.Add(user{ID: "discarded"}))
		return tx.Rollback()
	})
	require.NoError(t, err)

	ok, err := table.Exists(userID, "discarded")
	require.NoError(t, err)
	require.False(t, ok)

	count, err := table.Count()
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestConcurrentBatchesSerialize(t *testing.T) {
	conn := openTestConn(t, Config{})
	table, err := conn.GetTable("users")
	require.NoError(t, err)

	const workers, docs = 4, 50
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			batch := make([]any, 0, docs)
			for i := 0; i < docs; i++ {
				batch = append(batch, user{ID: fmt.Sprintf("w%d-%d", worker, i)})
			}
			errs[worker] = table.AddMany(batch...)
		}(w)
	}
	wg.Wait()
	for worker, err := range errs {
		require.NoError(t, err, "writer %d", worker)
	}

	count, err := table.Count()
	require.NoError(t, err)
	require.Equal(t, workers*docs, count)
}

func TestBatchReturnsCommitFailure(t *testing.T) {
	conn := openTestConn(t, Config{})
	table, err := conn.GetTable("users")
	require.NoError(t, err)

	err = conn.Batch(func(tx *Tx) error {
		require.NoError(t, table.Add(user{ID: "gone"}))
		// ends the transaction behind the scope's back, so the commit on
		// exit has nothing to commit and must surface its failure
		require.NoError(t, conn.exec(`ROLLBACK`))
		return nil
	})
	require.Error(t, err)

	ok, err := table.Exists(userID, "gone")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCloseConcurrentWithEngineCalls(t *testing.T) {
	conn := openTestConn(t, Config{})
	_, err := conn.GetTable("users")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		for i := 0; i < 100; i++ {
			if err := conn.Checkpoint(); err != nil {
				errCh <- err
				return
			}
			if err := conn.CreateTable("users"); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	require.NoError(t, conn.Close())
	if err := <-errCh; err != nil {
		require.ErrorIs(t, err, ErrDisposed)
	}
	require.ErrorIs(t, conn.Checkpoint(), ErrDisposed)
}

func TestTxDoneAfterUse(t *testing.T) {
	conn := openTestConn(t, Config{})
	err := conn.Batch(func(tx *Tx) error {
		require.NoError(t, tx.Commit())
		require.ErrorIs(t, tx.Commit(), ErrTxDone)
		require.ErrorIs(t, tx.Rollback(), ErrTxDone)
		return nil
	})
	require.NoError(t, err)
}

func TestAddManyRollsBackOnFailure(t *testing.T) {
	conn := openTestConn(t, Config{})
	table, err := conn.GetTable("users")
	require.NoError(t, err)
	require.NoError(t, table.CreateIndex(userID, "byid", true))
	require.NoError(t, table.Add(user{ID: "u1"}))

	err = table.AddMany(user{ID: "u2"}, user{ID: "u1"}, user{ID: "u3"})
	require.ErrorIs(t, err, ErrConstraint)

	count, err := table.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count, "a failed batch must leave nothing behind")
}

func TestAddManyCommits(t *testing.T) {
	conn := openTestConn(t, Config{})
	table, err := conn.GetTable("users")
	require.NoError(t, err)

	require.NoError(t, table.AddMany(user{ID: "u1"}, user{ID: "u2"}, user{ID: "u3"}))
	count, err := table.Count()
	require.NoError(t, err)
	require.Equal(t, 3, count)
}
