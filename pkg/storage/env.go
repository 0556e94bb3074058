package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Options controls how an Env is opened. It mirrors the options a legdb
// caller recognizes (see legdb.Config): most of them map directly onto
// bbolt.Options, a couple exist only so the legdb.Config surface has
// somewhere to put values bbolt does not need.
type Options struct {
	// ReadOnly opens the environment without permission to write.
	ReadOnly bool

	// Subdir, when true, treats Path as a directory containing the data
	// file rather than the data file itself (mirrors lmdb's subdir flag,
	// which the original storage layer exposed).
	Subdir bool

	// MaxReaders has no effect on bbolt, which has no reader-slot table:
	// bbolt readers are ordinary mmap views and are not bounded by a
	// configured count. The field is kept so Config round-trips the
	// value the spec's storage interface recognizes.
	MaxReaders int

	// MapSize bounds the initial mmap size, in bytes. bbolt grows the
	// mmap automatically, so this is only a hint used as the bbolt
	// InitialMmapSize.
	MapSize int64

	// Timeout bounds how long Open waits to acquire the file lock.
	Timeout time.Duration
}

// Env is a single on-disk legdb database: one bbolt.DB plus the path of
// its data file.
type Env struct {
	db       *bolt.DB
	path     string
	readOnly bool
}

// Open opens (creating if necessary) the bbolt file at path.
func Open(path string, opts Options) (*Env, error) {
	dbPath := path
	if opts.Subdir {
		if !opts.ReadOnly {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return nil, fmt.Errorf("storage: create data dir: %w", err)
			}
		}
		dbPath = filepath.Join(path, "legdb.db")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{
		Timeout:         timeout,
		ReadOnly:        opts.ReadOnly,
		InitialMmapSize: int(opts.MapSize),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dbPath, err)
	}

	return &Env{db: db, path: dbPath, readOnly: opts.ReadOnly}, nil
}

// Path returns the path to the underlying bbolt file.
func (e *Env) Path() string { return e.path }

// Close releases the file lock and closes the underlying bbolt.DB.
func (e *Env) Close() error {
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	return nil
}

// Begin starts a transaction. Unlike View/Update it does not bind the
// transaction's lifetime to a closure, which is what legdb's auto-tx
// wrapper needs: a read-only operation invoked without an explicit
// transaction opens one here and keeps it open for as long as the
// resulting iterator is being drained.
func (e *Env) Begin(writable bool) (*Tx, error) {
	btx, err := e.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("storage: begin tx: %w", err)
	}
	return &Tx{btx: btx, writable: writable}, nil
}

// View runs fn inside a read-only transaction that is always rolled back.
func (e *Env) View(fn func(tx *Tx) error) error {
	return e.db.View(func(btx *bolt.Tx) error {
		return fn(&Tx{btx: btx, writable: false})
	})
}

// Update runs fn inside a read-write transaction, committed if fn returns
// nil and rolled back otherwise.
func (e *Env) Update(fn func(tx *Tx) error) error {
	return e.db.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{btx: btx, writable: true})
	})
}

// Sync forces a fsync of the underlying file by running a no-op write
// transaction; bbolt fsyncs on every commit, so this is mostly useful to
// flush any batched writers.
func (e *Env) Sync() error {
	return e.Update(func(tx *Tx) error { return nil })
}

// DB exposes the underlying bbolt.DB for the rare operation (Stats, Info)
// that has no wrapper here.
func (e *Env) DB() *bolt.DB { return e.db }
