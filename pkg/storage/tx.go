package storage

import (
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// ErrNoSuchTable is returned when a read-only transaction asks for a table
// bucket that was never created.
var ErrNoSuchTable = errors.New("storage: no such table")

// Tx is a single bbolt transaction, read-only or read-write.
type Tx struct {
	btx      *bolt.Tx
	writable bool
}

// Writable reports whether the transaction can mutate data.
func (tx *Tx) Writable() bool { return tx.writable }

// Commit commits a writable transaction.
func (tx *Tx) Commit() error {
	if err := tx.btx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. It is safe to call after Commit.
func (tx *Tx) Rollback() error {
	if err := tx.btx.Rollback(); err != nil && err != bolt.ErrTxClosed {
		return fmt.Errorf("storage: rollback: %w", err)
	}
	return nil
}

// Table returns a handle to the named table bucket, creating it if the
// transaction is writable and it does not yet exist. Index buckets are
// created later, on first use (see Table.indexBucket).
func (tx *Tx) Table(name string) (*Table, error) {
	bucketName := []byte("t:" + name)

	if tx.writable {
		b, err := tx.btx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return nil, fmt.Errorf("storage: create table %s: %w", name, err)
		}
		return &Table{tx: tx, name: name, bucket: b}, nil
	}

	b := tx.btx.Bucket(bucketName)
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	return &Table{tx: tx, name: name, bucket: b}, nil
}
