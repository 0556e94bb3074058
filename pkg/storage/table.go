package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// indexSep terminates the user-supplied key portion of an index entry so
// that a prefix search for one key can never accidentally match a longer
// key that merely starts with the same bytes.
const indexSep = 0x00

const oidSize = 8

// EncodeOID renders an oid in the big-endian, lexicographically-ordered
// form every table and index key is built on, so iterating a table bucket
// directly also iterates oids in assignment order.
func EncodeOID(oid uint64) []byte {
	buf := make([]byte, oidSize)
	binary.BigEndian.PutUint64(buf, oid)
	return buf
}

// DecodeOID is the inverse of EncodeOID.
func DecodeOID(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// Table is a handle, scoped to one transaction, to a table's data bucket
// and its declared index buckets.
type Table struct {
	tx     *Tx
	name   string
	bucket *bolt.Bucket

	compressor *Compressor
}

// WithCompressor attaches a compressor used to encode/decode document
// values (but never index keys). It returns the same Table for chaining.
func (t *Table) WithCompressor(c *Compressor) *Table {
	t.compressor = c
	return t
}

func (t *Table) encode(value []byte) ([]byte, error) {
	if t.compressor == nil {
		return value, nil
	}
	return t.compressor.Encode(value)
}

func (t *Table) decode(value []byte) ([]byte, error) {
	if t.compressor == nil {
		return value, nil
	}
	return t.compressor.Decode(value)
}

// Append assigns the next sequence number as oid and stores value under it.
func (t *Table) Append(value []byte) (uint64, error) {
	if !t.tx.writable {
		return 0, fmt.Errorf("storage: append on read-only transaction")
	}
	oid, err := t.bucket.NextSequence()
	if err != nil {
		return 0, fmt.Errorf("storage: next sequence: %w", err)
	}
	if err := t.Put(oid, value); err != nil {
		return 0, err
	}
	return oid, nil
}

// Put overwrites (or creates) the document stored at oid.
func (t *Table) Put(oid uint64, value []byte) error {
	if !t.tx.writable {
		return fmt.Errorf("storage: put on read-only transaction")
	}
	encoded, err := t.encode(value)
	if err != nil {
		return err
	}
	if err := t.bucket.Put(EncodeOID(oid), encoded); err != nil {
		return fmt.Errorf("storage: put: %w", err)
	}
	return nil
}

// Get returns the document stored at oid, or found=false if there is none.
func (t *Table) Get(oid uint64) (value []byte, found bool, err error) {
	raw := t.bucket.Get(EncodeOID(oid))
	if raw == nil {
		return nil, false, nil
	}
	decoded, err := t.decode(raw)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

// Delete removes the document stored at oid.
func (t *Table) Delete(oid uint64) error {
	if !t.tx.writable {
		return fmt.Errorf("storage: delete on read-only transaction")
	}
	if err := t.bucket.Delete(EncodeOID(oid)); err != nil {
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}

// ForEach walks every document in oid order. It skips nested buckets (index
// storage lives in nested buckets within the same table bucket).
func (t *Table) ForEach(fn func(oid uint64, value []byte) error) error {
	c := t.bucket.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if v == nil {
			continue // nested bucket (an index), not a document
		}
		decoded, err := t.decode(v)
		if err != nil {
			return err
		}
		if err := fn(DecodeOID(k), decoded); err != nil {
			return err
		}
	}
	return nil
}

// ScanPage returns up to limit documents with oid > afterOID, in oid
// order, so a caller can page through a table without materializing the
// whole table.
func (t *Table) ScanPage(afterOID uint64, limit int) (oids []uint64, values [][]byte, err error) {
	c := t.bucket.Cursor()
	var k, v []byte
	if afterOID == 0 {
		k, v = c.First()
	} else {
		k, v = c.Seek(EncodeOID(afterOID))
		for k != nil && DecodeOID(k) <= afterOID {
			k, v = c.Next()
		}
	}
	for ; k != nil && len(oids) < limit; k, v = c.Next() {
		if v == nil {
			continue
		}
		decoded, derr := t.decode(v)
		if derr != nil {
			return nil, nil, derr
		}
		oids = append(oids, DecodeOID(k))
		values = append(values, decoded)
	}
	return oids, values, nil
}

// Count returns the number of documents in the table.
func (t *Table) Count() int {
	n := 0
	c := t.bucket.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if v != nil {
			n++
		}
	}
	return n
}

func indexBucketName(name string) []byte { return []byte("i:" + name) }

// indexBucket returns the nested bucket backing a declared index, creating
// it if the transaction is writable and it does not yet exist.
func (t *Table) indexBucket(name string) (*bolt.Bucket, error) {
	bn := indexBucketName(name)
	if t.tx.writable {
		b, err := t.bucket.CreateBucketIfNotExists(bn)
		if err != nil {
			return nil, fmt.Errorf("storage: create index %s: %w", name, err)
		}
		return b, nil
	}
	b := t.bucket.Bucket(bn)
	if b == nil {
		return nil, fmt.Errorf("%w: index %s", ErrNoSuchTable, name)
	}
	return b, nil
}

// Indexes lists the names of every index bucket declared on this table.
func (t *Table) Indexes() []string {
	var names []string
	c := t.bucket.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if v != nil {
			continue
		}
		if name, ok := bytesCutPrefix(k, []byte("i:")); ok {
			names = append(names, string(name))
		}
	}
	return names
}

func bytesCutPrefix(b, prefix []byte) ([]byte, bool) {
	if !bytes.HasPrefix(b, prefix) {
		return nil, false
	}
	return b[len(prefix):], true
}

func compoundKey(key []byte, oid uint64) []byte {
	out := make([]byte, 0, len(key)+1+oidSize)
	out = append(out, key...)
	out = append(out, indexSep)
	out = append(out, EncodeOID(oid)...)
	return out
}

// IndexPut records that key maps to oid in the named index. Duplicate keys
// (several oids under the same key) are supported by construction: the
// physical bucket key is key+oid, so distinct oids never collide.
func (t *Table) IndexPut(indexName string, key []byte, oid uint64) error {
	b, err := t.indexBucket(indexName)
	if err != nil {
		return err
	}
	if err := b.Put(compoundKey(key, oid), EncodeOID(oid)); err != nil {
		return fmt.Errorf("storage: index put: %w", err)
	}
	return nil
}

// IndexDelete removes the (key, oid) entry from the named index.
func (t *Table) IndexDelete(indexName string, key []byte, oid uint64) error {
	b, err := t.indexBucket(indexName)
	if err != nil {
		return err
	}
	if err := b.Delete(compoundKey(key, oid)); err != nil {
		return fmt.Errorf("storage: index delete: %w", err)
	}
	return nil
}

// IndexDropEntries deletes every entry under an index bucket without
// deleting the bucket itself, used to rebuild an index in place.
func (t *Table) IndexDropEntries(indexName string) error {
	b, err := t.indexBucket(indexName)
	if err != nil {
		return err
	}
	c := b.Cursor()
	var keys [][]byte
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return fmt.Errorf("storage: index drop entries: %w", err)
		}
	}
	return nil
}

// IndexEntry is one (key, oid) pair yielded while scanning an index.
type IndexEntry struct {
	Key []byte
	OID uint64
}

// IndexRange returns every entry in the named index whose key lies between
// lower and upper inclusive. A nil lower/upper leaves that side unbounded.
// Results are ordered by (key, oid).
func (t *Table) IndexRange(indexName string, lower, upper []byte) ([]IndexEntry, error) {
	b, err := t.indexBucket(indexName)
	if err != nil {
		if errors.Is(err, ErrNoSuchTable) {
			return nil, nil
		}
		return nil, err
	}

	var entries []IndexEntry
	c := b.Cursor()
	var k, v []byte
	if lower != nil {
		k, v = c.Seek(lower)
	} else {
		k, v = c.First()
	}
	for ; k != nil; k, v = c.Next() {
		keyPart := k[:len(k)-1-oidSize]
		if upper != nil && bytes.Compare(keyPart, upper) > 0 {
			break
		}
		entries = append(entries, IndexEntry{Key: append([]byte(nil), keyPart...), OID: DecodeOID(v)})
	}
	return entries, nil
}

// IndexSeek returns every oid stored under exactly key in the named index.
func (t *Table) IndexSeek(indexName string, key []byte, limit int) ([]uint64, error) {
	b, err := t.indexBucket(indexName)
	if err != nil {
		if errors.Is(err, ErrNoSuchTable) {
			return nil, nil
		}
		return nil, err
	}

	prefix := append(append([]byte(nil), key...), indexSep)
	var oids []uint64
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		oids = append(oids, DecodeOID(v))
		if limit > 0 && len(oids) >= limit {
			break
		}
	}
	return oids, nil
}

// IndexCount counts the entries stored under exactly key in the named
// index. It is used by the planner to rank candidate indexes by selectivity.
func (t *Table) IndexCount(indexName string, key []byte) (int, error) {
	oids, err := t.IndexSeek(indexName, key, 0)
	if err != nil {
		return 0, err
	}
	return len(oids), nil
}
