package storage

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// CompactTo copies every bucket, nested bucket and key/value pair from e
// into dst, which must be empty. It is the primitive legdb's vacuum
// operation is built on: bbolt never reclaims free pages from deleted keys
// on its own, so periodically copying a database into a fresh file is the
// standard way to shrink it back down.
func (e *Env) CompactTo(dst *Env) error {
	return e.db.View(func(srcTx *bolt.Tx) error {
		return dst.db.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, b *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return fmt.Errorf("storage: compact create bucket %s: %w", name, err)
				}
				dstBucket.FillPercent = 0.9
				return copyBucket(b, dstBucket)
			})
		})
	})
}

func copyBucket(src, dst *bolt.Bucket) error {
	c := src.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if v == nil {
			nestedSrc := src.Bucket(k)
			nestedDst, err := dst.CreateBucketIfNotExists(k)
			if err != nil {
				return fmt.Errorf("storage: compact create nested bucket %s: %w", k, err)
			}
			nestedDst.FillPercent = 0.9
			if err := copyBucket(nestedSrc, nestedDst); err != nil {
				return err
			}
			continue
		}
		if err := dst.Put(k, v); err != nil {
			return fmt.Errorf("storage: compact put: %w", err)
		}
	}
	if seq := src.Sequence(); seq > 0 {
		if err := dst.SetSequence(seq); err != nil {
			return fmt.Errorf("storage: compact set sequence: %w", err)
		}
	}
	return nil
}
