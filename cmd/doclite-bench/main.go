// doclite-bench is a small stress driver for the doclite document store:
// a pool of writers inserting JSON documents and a pool of readers finding
// them back by key, over one shared connection.
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"github.com/doclitehq/doclite"
)

type record struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Payload string `json:"payload"`
	Seq     int    `json:"seq"`
}

func main() {
	var (
		dir     = pflag.String("dir", "", "database directory (default: a temp dir)")
		docs    = pflag.Int("docs", 10000, "documents per writer")
		writers = pflag.Int("writers", 4, "concurrent writers")
		readers = pflag.Int("readers", 4, "concurrent readers")
		batch   = pflag.Int("batch", 100, "documents per insert batch")
		verbose = pflag.Bool("verbose", false, "debug logging")
	)
	pflag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))

	if *dir == "" {
		tmp, err := os.MkdirTemp("", "doclite-bench-*")
		if err != nil {
			logger.Error("mkdir temp", "error", err)
			os.Exit(1)
		}
		defer os.RemoveAll(tmp)
		*dir = tmp
	}
	path := filepath.Join(*dir, "bench.db")

	conn, err := doclite.Open(path, doclite.Config{
		Codec:  doclite.CodecConfig{Naming: doclite.LowerCamel},
		Logger: logger,
	})
	if err != nil {
		logger.Error("open", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("database opened", "path", path, "engine", conn.Version())

	table, err := conn.GetTable("records")
	if err != nil {
		logger.Error("get table", "error", err)
		os.Exit(1)
	}
	keyPath := doclite.MustPathOf[record](conn.Codec().Naming(), "ID")
	if err := table.CreateIndex(keyPath, "id", true); err != nil {
		logger.Error("create index", "error", err)
		os.Exit(1)
	}

	var inserted, found atomic.Int64
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < *writers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			pending := make([]any, 0, *batch)
			for i := 0; i < *docs; i++ {
				pending = append(pending, record{
					ID:      fmt.Sprintf("w%d-%d", worker, i),
					Name:    fmt.Sprintf("record %d", i),
					Payload: randomPayload(64),
					Seq:     i,
				})
				if len(pending) == *batch {
					if err := table.AddMany(pending...); err != nil {
						logger.Error("insert batch", "worker", worker, "error", err)
						return
					}
					inserted.Add(int64(len(pending)))
					pending = pending[:0]
				}
			}
			if len(pending) > 0 {
				if err := table.AddMany(pending...); err != nil {
					logger.Error("insert batch", "worker", worker, "error", err)
					return
				}
				inserted.Add(int64(len(pending)))
			}
		}(w)
	}

	done := make(chan struct{})
	var rg sync.WaitGroup
	for r := 0; r < *readers; r++ {
		rg.Add(1)
		go func(worker int) {
			defer rg.Done()
			rng := rand.New(rand.NewSource(int64(worker)))
			for {
				select {
				case <-done:
					return
				default:
				}
				id := fmt.Sprintf("w%d-%d", rng.Intn(*writers), rng.Intn(*docs))
				if _, err := doclite.Find[record](table, keyPath, id); err == nil {
					found.Add(1)
				}
			}
		}(r)
	}

	wg.Wait()
	close(done)
	rg.Wait()
	elapsed := time.Since(start)

	count, err := table.Count()
	if err != nil {
		logger.Error("count", "error", err)
		os.Exit(1)
	}
	if err := conn.Checkpoint(); err != nil {
		logger.Error("checkpoint", "error", err)
		os.Exit(1)
	}

	logger.Info("bench finished",
		"elapsed", elapsed.Round(time.Millisecond),
		"inserted", inserted.Load(),
		"stored", count,
		"lookups", found.Load(),
		"inserts_per_sec", int(float64(inserted.Load())/elapsed.Seconds()),
	)
}

const payloadAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomPayload(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = payloadAlphabet[rand.Intn(len(payloadAlphabet))]
	}
	return string(b)
}
