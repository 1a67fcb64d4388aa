// Package doclite is a document store over the host's embedded SQLite
// library. Documents are JSON values held one per row; lookups, partial
// updates and indexing are delegated to the engine's native JSON operators.
//
// The engine is loaded at runtime with purego, so the package builds without
// cgo. InitLibrary must succeed before the first Open call; Open performs it
// implicitly with the default configuration.
package doclite

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/purego"
)

// LibraryConfig controls how the SQLite shared library is located.
type LibraryConfig struct {
	// Path points at the shared library directly. When empty the loader
	// consults the DOCLITE_SQLITE_PATH environment variable, then the
	// platform-conventional library names.
	Path string
}

var (
	libOnce   sync.Once
	libErr    error
	libLoaded atomic.Bool
)

// InitLibrary loads the engine library and registers its symbols. It runs at
// most once per process; later calls return the outcome of the first one,
// regardless of their configuration. Teardown is left to process exit.
func InitLibrary(config LibraryConfig) error {
	libOnce.Do(func() {
		handle, err := loadLibrary(config)
		if err != nil {
			libErr = err
			return
		}
		register_sqlite3(handle)
		libLoaded.Store(true)
	})
	return libErr
}

// LibraryLoaded reports whether InitLibrary has completed successfully.
// Integration tests use it to skip when no engine library is present.
func LibraryLoaded() bool {
	return libLoaded.Load()
}

func loadLibrary(config LibraryConfig) (uintptr, error) {
	var candidates []string
	switch {
	case config.Path != "":
		candidates = []string{config.Path}
	case os.Getenv("DOCLITE_SQLITE_PATH") != "":
		candidates = []string{os.Getenv("DOCLITE_SQLITE_PATH")}
	default:
		names, err := defaultLibraryNames(runtime.GOOS)
		if err != nil {
			return 0, err
		}
		candidates = names
	}

	var firstErr error
	for _, name := range candidates {
		handle, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return handle, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return 0, fmt.Errorf("doclite: unable to load sqlite library (tried %v): %w", candidates, firstErr)
}

// defaultLibraryNames lists the platform-conventional sqlite library names,
// most specific first. On Linux the runtime soname is libsqlite3.so.0; the
// unversioned name only exists where the development package is installed.
func defaultLibraryNames(goos string) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{"libsqlite3.dylib", "/usr/lib/libsqlite3.dylib"}, nil
	case "linux", "freebsd":
		return []string{"libsqlite3.so.0", "libsqlite3.so"}, nil
	default:
		return nil, fmt.Errorf("doclite: unsupported operating system: %s", goos)
	}
}
