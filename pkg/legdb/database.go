package legdb

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/legdb/pkg/log"
	"github.com/cuemby/legdb/pkg/metrics"
	"github.com/cuemby/legdb/pkg/storage"
)

var dbLog = log.WithComponent("database")

// Tx is a handle to one storage transaction, passed explicitly to a
// Database operation that should run within it (Save most commonly)
// instead of the operation opening its own.
type Tx struct {
	db        *Database
	storageTx *storage.Tx
	writable  bool
}

// Commit commits a writable Tx.
func (tx *Tx) Commit() error { return tx.storageTx.Commit() }

// Rollback aborts tx. Safe to call after Commit or on a read-only Tx.
func (tx *Tx) Rollback() error { return tx.storageTx.Rollback() }

// Database is the legdb façade: it owns the storage environment, the
// index catalog and the planner cache, and exposes the save/get/range/
// seek/find/index/maintenance operations described in the design.
type Database struct {
	env     *storage.Env
	cfg     Config
	cat     *catalog
	planner *planner
	pool    *workerPool

	mu          sync.RWMutex
	compressors map[string]*storage.Compressor
}

// Open brings up a Database at cfg.Path, creating it if cfg.OpenMode is
// Create and nothing exists there yet, and registers the built-in edge
// indexes (always present regardless of what the caller declares).
func Open(cfg Config) (*Database, error) {
	cfg = cfg.withDefaults()

	if cfg.OpenMode == ReadWrite {
		dataPath := cfg.Path
		if cfg.Subdir {
			dataPath = filepath.Join(cfg.Path, "legdb.db")
		}
		if _, err := os.Stat(dataPath); err != nil {
			return nil, storageErr("open", "", err)
		}
	}

	env, err := storage.Open(cfg.Path, storage.Options{
		ReadOnly:   cfg.ReadOnly,
		Subdir:     cfg.Subdir,
		MaxReaders: cfg.MaxReaders,
		MapSize:    cfg.MapSize,
		Timeout:    cfg.OpenTimeout,
	})
	if err != nil {
		return nil, err
	}

	db := &Database{
		env:         env,
		cfg:         cfg,
		cat:         newCatalog(),
		compressors: make(map[string]*storage.Compressor),
	}
	db.planner = newPlanner(db.cat)
	db.pool = newWorkerPool(cfg.NJobs)

	if err := db.registerBuiltinIndexes(); err != nil {
		env.Close()
		return nil, err
	}

	dbLog.Info().Str("path", env.Path()).Msg("database opened")
	return db, nil
}

func (db *Database) registerBuiltinIndexes() error {
	builtins := []struct {
		name       string
		attrs      []string
		template   string
		duplicates bool
	}{
		{"by_start_id_end_id", []string{attrStartID, attrEndID}, "!{start_id}|{end_id}", true},
		{"by_start_id", []string{attrStartID}, "{start_id}", true},
		{"by_end_id", []string{attrEndID}, "{end_id}", true},
	}
	for _, b := range builtins {
		if _, _, err := db.cat.ensure(TableEdge, b.name, attrSet(b.attrs...), b.template, b.duplicates); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying storage environment and any compressors
// it holds open.
func (db *Database) Close() error {
	db.mu.Lock()
	for _, c := range db.compressors {
		c.Close()
	}
	db.compressors = nil
	db.mu.Unlock()
	return db.env.Close()
}

func (db *Database) beginRead() (*Tx, error) {
	stx, err := db.env.Begin(false)
	if err != nil {
		return nil, storageErr("begin", "", err)
	}
	return &Tx{db: db, storageTx: stx, writable: false}, nil
}

func (db *Database) beginWrite() (*Tx, error) {
	stx, err := db.env.Begin(true)
	if err != nil {
		return nil, storageErr("begin", "", err)
	}
	return &Tx{db: db, storageTx: stx, writable: true}, nil
}

// Update runs fn within a write Tx, committing if it returns nil and
// rolling back otherwise.
func (db *Database) Update(fn func(tx *Tx) error) error {
	tx, err := db.beginWrite()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// View runs fn within a read-only Tx, always releasing it afterward.
func (db *Database) View(fn func(tx *Tx) error) error {
	tx, err := db.beginRead()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx)
}

func (db *Database) attachCompressor(table string, t *storage.Table) *storage.Table {
	db.mu.RLock()
	c := db.compressors[table]
	db.mu.RUnlock()
	if c == nil {
		return t
	}
	return t.WithCompressor(c)
}

func (db *Database) table(tx *Tx, name string) (*storage.Table, error) {
	t, err := tx.storageTx.Table(name)
	if err != nil {
		return nil, storageErr("table", name, err)
	}
	return db.attachCompressor(name, t), nil
}

// getNode loads a node document by oid within tx's underlying storage
// transaction, used by Edge.Start/Edge.End for endpoint hydration.
func (db *Database) getNode(stx *storage.Tx, oid uint64) (*Node, bool, error) {
	t, err := stx.Table(TableNode)
	if err != nil {
		return nil, false, storageErr("table", TableNode, err)
	}
	t = db.attachCompressor(TableNode, t)
	raw, found, err := t.Get(oid)
	if err != nil || !found {
		return nil, found, err
	}
	doc := NewDocument()
	if err := doc.UnmarshalBinary(raw); err != nil {
		return nil, false, err
	}
	doc.OID = oid
	doc.Bound = true
	return nodeFromDocument(doc), true, nil
}

// EnsureIndex registers (or, with force, rebuilds) a secondary index. Attrs
// are the index's declared covering attributes; template renders an index
// key the same way a Has predicate's attributes are rendered (§4.2).
func (db *Database) EnsureIndex(table, name string, attrs []string, template string, duplicates, force bool) error {
	return db.Update(func(tx *Tx) error {
		ix, created, err := db.cat.ensure(table, name, attrSet(attrs...), template, duplicates)
		if err != nil {
			return err
		}
		if created || force {
			return db.rebuildIndex(tx, ix)
		}
		return nil
	})
}

func (db *Database) rebuildIndex(tx *Tx, ix *indexDef) error {
	t, err := db.table(tx, ix.Table)
	if err != nil {
		return err
	}
	if err := t.IndexDropEntries(ix.Name); err != nil {
		return storageErr("rebuild_index", ix.Table, err)
	}
	err = t.ForEach(func(oid uint64, raw []byte) error {
		doc := NewDocument()
		if err := doc.UnmarshalBinary(raw); err != nil {
			return err
		}
		rendered, err := renderKey(ix.Template, func(name string) (Value, bool) { return doc.Get(name) })
		if err != nil {
			return nil // a document missing one of the index's attrs simply isn't indexed
		}
		return t.IndexPut(ix.Name, []byte(rendered), oid)
	})
	if err != nil {
		return err
	}
	db.cat.bumpVersion(ix.Table)
	return nil
}

// Save persists entity (a *Node or *Edge), assigning it an oid if unset or
// overwriting it in place otherwise, and maintaining every declared index
// on its table. If tx is nil, Save runs in its own write transaction.
func (db *Database) Save(tx *Tx, entity interface{}) error {
	if tx == nil {
		return db.Update(func(tx *Tx) error { return db.Save(tx, entity) })
	}

	switch e := entity.(type) {
	case *Node:
		return db.saveDocument(tx, TableNode, e.document(), func(doc *Document) {
			e.OID = doc.OID
			e.Bound = true
		})
	case *Edge:
		return db.saveDocument(tx, TableEdge, e.document(), func(doc *Document) {
			e.OID = doc.OID
			e.Bound = true
		})
	default:
		return fmt.Errorf("legdb: save: unsupported entity type %T", entity)
	}
}

func (db *Database) saveDocument(tx *Tx, table string, doc *Document, assign func(*Document)) error {
	defer metrics.NewTimer().ObserveDuration(metrics.SaveDuration)

	t, err := db.table(tx, table)
	if err != nil {
		return err
	}

	if doc.Bound {
		if err := db.reindex(tx, table, t, doc.OID, doc); err != nil {
			return err
		}
		raw, err := doc.MarshalBinary()
		if err != nil {
			return err
		}
		if err := t.Put(doc.OID, raw); err != nil {
			return storageErr("put", table, err)
		}
		assign(doc)
		return nil
	}

	if err := db.checkUniqueIndexes(t, table, doc); err != nil {
		return err
	}
	raw, err := doc.MarshalBinary()
	if err != nil {
		return err
	}
	oid, err := t.Append(raw)
	if err != nil {
		return storageErr("append", table, err)
	}
	doc.OID = oid
	doc.Bound = true
	if err := db.indexDocument(t, table, oid, doc); err != nil {
		return err
	}
	assign(doc)
	return nil
}

// reindex removes oid's old entries from every index declared on table and
// re-adds them for the document's current attribute values, used when
// overwriting an already-bound document.
func (db *Database) reindex(tx *Tx, table string, t *storage.Table, oid uint64, doc *Document) error {
	for _, ix := range db.cat.indexesFor(table) {
		old, found, err := t.Get(oid)
		if err != nil {
			return storageErr("get", table, err)
		}
		if found {
			oldDoc := NewDocument()
			if err := oldDoc.UnmarshalBinary(old); err == nil {
				if rendered, err := renderKey(ix.Template, func(name string) (Value, bool) { return oldDoc.Get(name) }); err == nil {
					if err := t.IndexDelete(ix.Name, []byte(rendered), oid); err != nil {
						return storageErr("index_delete", table, err)
					}
				}
			}
		}
	}
	if err := db.checkUniqueIndexes(t, table, doc); err != nil {
		return err
	}
	return db.indexDocument(t, table, oid, doc)
}

// FindMany resolves several independent predicates against table, fanning
// them out across the worker pool when Config.NJobs enables it (each
// worker opening its own read transaction per §5) and otherwise running
// them sequentially against a single transaction. Results are merged and
// deduplicated by oid either way.
func (db *Database) FindMany(table string, predicates []map[string]Value) ([]*Document, error) {
	if db.pool.enabled() {
		return db.pool.fanOutSeeks(db, table, predicates)
	}

	var merged []*Document
	err := db.View(func(tx *Tx) error {
		seen := make(map[uint64]struct{})
		for _, pred := range predicates {
			docs, err := db.findInTx(tx, table, pred)
			if err != nil {
				return err
			}
			for _, d := range docs {
				if _, dup := seen[d.OID]; dup {
					continue
				}
				seen[d.OID] = struct{}{}
				merged = append(merged, d)
			}
		}
		return nil
	})
	return merged, err
}

func (db *Database) checkUniqueIndexes(t *storage.Table, table string, doc *Document) error {
	for _, ix := range db.cat.indexesFor(table) {
		if ix.Duplicates {
			continue
		}
		rendered, err := renderKey(ix.Template, func(name string) (Value, bool) { return doc.Get(name) })
		if err != nil {
			continue
		}
		n, err := t.IndexCount(ix.Name, []byte(rendered))
		if err != nil {
			return storageErr("index_count", table, err)
		}
		if n > 0 {
			return ErrDuplicateKey
		}
	}
	return nil
}

func (db *Database) indexDocument(t *storage.Table, table string, oid uint64, doc *Document) error {
	for _, ix := range db.cat.indexesFor(table) {
		rendered, err := renderKey(ix.Template, func(name string) (Value, bool) { return doc.Get(name) })
		if err != nil {
			continue
		}
		if err := t.IndexPut(ix.Name, []byte(rendered), oid); err != nil {
			return storageErr("index_put", table, err)
		}
	}
	return nil
}

// Get performs a point lookup, returning found=false if oid does not exist
// in table. If tx is nil, a short-lived read transaction is used.
func (db *Database) Get(tx *Tx, table string, oid uint64) (*Document, bool, error) {
	if tx == nil {
		var doc *Document
		var found bool
		err := db.View(func(tx *Tx) error {
			d, f, err := db.Get(tx, table, oid)
			doc, found = d, f
			return err
		})
		return doc, found, err
	}

	t, err := db.table(tx, table)
	if err != nil {
		return nil, false, err
	}
	raw, found, err := t.Get(oid)
	if err != nil || !found {
		return nil, found, err
	}
	doc := NewDocument()
	if err := doc.UnmarshalBinary(raw); err != nil {
		return nil, false, err
	}
	doc.OID = oid
	doc.Bound = true
	return doc, true, nil
}

// Find runs a full pipeline over table with predicate applied as a Has
// filter (planner-selected index, or a full scan with the whole predicate
// as residual), returning a Cursor. A nil tx opens the auto-tx wrapper's
// short-lived read transaction, released on Cursor.Close.
func (db *Database) Find(tx *Tx, table string, predicate map[string]Value) (Rows, error) {
	p := NewPipeline().Source(table)
	if len(predicate) > 0 {
		p = p.Has(predicate)
	}
	return p.Run(db, tx)
}

// findInTx drains a Find call against an already-open tx fully into a
// slice, used by FindMany and the worker pool's fan-out (which need
// complete results per seed, not a cursor).
func (db *Database) findInTx(tx *Tx, table string, predicate map[string]Value) ([]*Document, error) {
	cur, err := db.Find(tx, table, predicate)
	if err != nil {
		return nil, err
	}
	var docs []*Document
	for cur.Next() {
		docs = append(docs, cur.Item().Doc)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Reserved predicate keys naming an edge's endpoint as a nested node
// template to expand (a KindMap value), rather than a literal start_id/
// end_id oid equality check. Distinct from attrStartID/attrEndID, which
// name the rendered oid attribute itself.
const (
	seekStartTemplate = "start"
	seekEndTemplate   = "end"
)

// Seek performs an equality lookup for predicate, optionally forcing a
// named index (ErrMissingIndex if it does not exist) instead of letting
// the planner choose. An edge predicate naming "start" or "end" with a
// nested node template instead of a literal start_id/end_id oid is
// expanded per §4.5: each unbound endpoint is resolved to concrete node
// oids by a recursive Seek, the Cartesian product of the resulting sets
// is taken, and one seek runs per expanded, concrete edge predicate.
// Results are deduplicated by oid either way.
func (db *Database) Seek(tx *Tx, table string, predicate map[string]Value, index string) (Rows, error) {
	defer metrics.NewTimer().ObserveDuration(metrics.SeekDuration)

	if index != "" {
		if _, ok := db.cat.lookup(table, index); !ok {
			return nil, ErrMissingIndex
		}
	}

	owned := false
	if tx == nil {
		t, err := db.beginRead()
		if err != nil {
			return nil, err
		}
		tx = t
		owned = true
	}

	docs, err := db.seekExpanded(tx, table, predicate, index)
	if err != nil {
		if owned {
			tx.Rollback()
		}
		return nil, err
	}
	return &docSliceRows{table: table, docs: docs, tx: tx, owned: owned}, nil
}

// seekExpanded resolves predicate's "start"/"end" node templates, if any,
// to the Cartesian product of concrete edge predicates, runs one forced-
// or planner-chosen seek per combination against tx, and merges the
// results, deduplicated by oid. A predicate with no templated endpoints
// (or a non-edge table, which has no endpoints to template) runs exactly
// one seek.
func (db *Database) seekExpanded(tx *Tx, table string, predicate map[string]Value, index string) ([]*Document, error) {
	expanded, err := db.expandSeekTemplates(tx, table, predicate)
	if err != nil {
		return nil, err
	}

	t, err := db.table(tx, table)
	if err != nil {
		return nil, err
	}

	var merged []*Document
	seen := make(map[uint64]struct{})
	for _, pred := range expanded {
		oids, residual, err := resolvePredicateOIDs(tx.storageTx, db, t, table, pred, index)
		if err != nil {
			return nil, err
		}
		for _, oid := range oids {
			if _, dup := seen[oid]; dup {
				continue
			}
			raw, found, err := t.Get(oid)
			if err != nil {
				return nil, storageErr("get", table, err)
			}
			if !found {
				continue
			}
			doc := NewDocument()
			if err := doc.UnmarshalBinary(raw); err != nil {
				return nil, err
			}
			doc.OID = oid
			doc.Bound = true
			if !doc.Matches(residual) {
				continue
			}
			seen[oid] = struct{}{}
			merged = append(merged, doc)
		}
	}
	return merged, nil
}

// expandSeekTemplates resolves predicate's "start"/"end" nested node
// templates (if any) to the Cartesian product of concrete edge
// predicates §4.5 describes, each naming a literal start_id/end_id oid
// instead of a template. A predicate naming neither template, or a
// predicate against a non-edge table, expands to itself.
func (db *Database) expandSeekTemplates(tx *Tx, table string, predicate map[string]Value) ([]map[string]Value, error) {
	if table != TableEdge {
		return []map[string]Value{predicate}, nil
	}

	startOIDs, hasStart, err := db.resolveEndpointTemplate(tx, predicate, seekStartTemplate)
	if err != nil {
		return nil, err
	}
	endOIDs, hasEnd, err := db.resolveEndpointTemplate(tx, predicate, seekEndTemplate)
	if err != nil {
		return nil, err
	}
	if !hasStart && !hasEnd {
		return []map[string]Value{predicate}, nil
	}

	base := make(map[string]Value, len(predicate))
	for k, v := range predicate {
		if k == seekStartTemplate || k == seekEndTemplate {
			continue
		}
		base[k] = v
	}

	switch {
	case hasStart && hasEnd:
		out := make([]map[string]Value, 0, len(startOIDs)*len(endOIDs))
		for _, s := range startOIDs {
			for _, e := range endOIDs {
				out = append(out, withEndpoints(base, s, e))
			}
		}
		return out, nil
	case hasStart:
		out := make([]map[string]Value, 0, len(startOIDs))
		for _, s := range startOIDs {
			pred := make(map[string]Value, len(base)+1)
			for k, v := range base {
				pred[k] = v
			}
			pred[attrStartID] = OIDValue(s)
			out = append(out, pred)
		}
		return out, nil
	default:
		out := make([]map[string]Value, 0, len(endOIDs))
		for _, e := range endOIDs {
			pred := make(map[string]Value, len(base)+1)
			for k, v := range base {
				pred[k] = v
			}
			pred[attrEndID] = OIDValue(e)
			out = append(out, pred)
		}
		return out, nil
	}
}

func withEndpoints(base map[string]Value, start, end uint64) map[string]Value {
	pred := make(map[string]Value, len(base)+2)
	for k, v := range base {
		pred[k] = v
	}
	pred[attrStartID] = OIDValue(start)
	pred[attrEndID] = OIDValue(end)
	return pred
}

// resolveEndpointTemplate reports ok=true when predicate names key with a
// nested (KindMap) node template, along with the concrete node oids that
// template resolves to via a recursive Seek against tx. ok=false means
// key was absent or not a template, so the caller leaves that endpoint
// untouched.
func (db *Database) resolveEndpointTemplate(tx *Tx, predicate map[string]Value, key string) ([]uint64, bool, error) {
	v, ok := predicate[key]
	if !ok {
		return nil, false, nil
	}
	tmpl, ok := v.Map()
	if !ok {
		return nil, false, nil
	}

	rows, err := db.Seek(tx, TableNode, tmpl, "")
	if err != nil {
		return nil, true, err
	}
	defer rows.Close()

	var oids []uint64
	for rows.Next() {
		oids = append(oids, rows.Item().Doc.OID)
	}
	if err := rows.Err(); err != nil {
		return nil, true, err
	}
	return oids, true, nil
}

// docSliceRows adapts an already-materialized document slice — the merged
// result of seekExpanded's endpoint expansion — to the same Rows shape
// pipeline- and range-backed results use.
type docSliceRows struct {
	table string
	docs  []*Document
	pos   int
	item  *Item
	tx    *Tx
	owned bool
}

func (r *docSliceRows) Next() bool {
	if r.pos >= len(r.docs) {
		return false
	}
	r.item = &Item{Table: r.table, Doc: r.docs[r.pos]}
	r.pos++
	return true
}

func (r *docSliceRows) Item() *Item { return r.item }
func (r *docSliceRows) Err() error  { return nil }

func (r *docSliceRows) Close() error {
	if !r.owned {
		return nil
	}
	return r.tx.Rollback()
}

// RangeIndex iterates index in key order between lower and upper
// (inclusive; either bound nil for unbounded), yielding the matching
// documents from table. This is the explicit-index form of range(); the
// multi-index intersection form described for an index-less call is not
// implemented (see DESIGN.md).
func (db *Database) RangeIndex(tx *Tx, table, index string, lower, upper []byte) (Rows, error) {
	owned := false
	if tx == nil {
		t, err := db.beginRead()
		if err != nil {
			return nil, err
		}
		tx = t
		owned = true
	}

	t, err := db.table(tx, table)
	if err != nil {
		return nil, err
	}
	defer metrics.NewTimer().ObserveDuration(metrics.RangeDuration)

	entries, err := t.IndexRange(index, lower, upper)
	if err != nil {
		return nil, storageErr("range", table, err)
	}

	oids := make([]uint64, 0, len(entries))
	seen := make(map[uint64]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.OID]; dup {
			continue
		}
		seen[e.OID] = struct{}{}
		oids = append(oids, e.OID)
	}

	return &rangeCursor{db: db, tx: tx, owned: owned, table: table, oids: oids}, nil
}

// Range performs a typed range scan over index between lower and upper
// entity-typed bounds, each a *Node, *Edge or nil (nil meaning unbounded
// on that side). lower and upper must resolve to the same table; mixing
// them, e.g. a *Node lower bound against a *Edge upper bound, reports
// ErrTypeMismatch (§8). Missing attributes on a bound simply leave that
// side of the key unspecified rather than erroring, the same leniency
// Has/Seek already give a partial predicate. inclusive controls whether
// exact matches on either bound are returned; RangeIndex itself is
// always inclusive, so a false inclusive filters exact-boundary matches
// back out afterward.
func (db *Database) Range(tx *Tx, index string, lower, upper interface{}, inclusive bool) (Rows, error) {
	lowerTable, lowerDoc, err := entityBoundDocument(lower)
	if err != nil {
		return nil, err
	}
	upperTable, upperDoc, err := entityBoundDocument(upper)
	if err != nil {
		return nil, err
	}
	if lowerTable != "" && upperTable != "" && lowerTable != upperTable {
		return nil, ErrTypeMismatch
	}
	table := lowerTable
	if table == "" {
		table = upperTable
	}
	if table == "" {
		return nil, fmt.Errorf("legdb: range requires at least one of lower, upper to be non-nil")
	}

	ix, ok := db.cat.lookup(table, index)
	if !ok {
		return nil, ErrMissingIndex
	}

	var lowerKey, upperKey []byte
	if lowerDoc != nil {
		lowerKey = renderRangeBound(ix.Template, lowerDoc)
	}
	if upperDoc != nil {
		upperKey = renderRangeBound(ix.Template, upperDoc)
	}

	rows, err := db.RangeIndex(tx, table, index, lowerKey, upperKey)
	if err != nil {
		return nil, err
	}
	if inclusive {
		return rows, nil
	}
	return &exclusiveBoundRows{Rows: rows, index: ix, lower: lowerKey, upper: upperKey}, nil
}

// entityBoundDocument derives the table a Range bound belongs to and the
// Document its attributes should be rendered from. nil means unbounded
// on that side; any type other than *Node, *Edge or nil is a caller
// error, not a type mismatch between the two bounds.
func entityBoundDocument(bound interface{}) (table string, doc *Document, err error) {
	switch b := bound.(type) {
	case nil:
		return "", nil, nil
	case *Node:
		return TableNode, b.document(), nil
	case *Edge:
		return TableEdge, b.document(), nil
	default:
		return "", nil, fmt.Errorf("legdb: range bound must be *Node, *Edge or nil, got %T", bound)
	}
}

// renderRangeBound renders template against doc's attributes the same way
// renderKey does, but treats a missing referenced attribute as "this
// bound is unspecified" rather than an error, since a Range bound is
// usually only a partial entity template.
func renderRangeBound(template string, doc *Document) []byte {
	rendered, err := renderKey(template, func(name string) (Value, bool) { return doc.Get(name) })
	if err != nil {
		return nil
	}
	return []byte(rendered)
}

// exclusiveBoundRows filters the exact-boundary matches out of a Rows
// stream that RangeIndex's always-inclusive scan otherwise includes, by
// re-rendering each item's own key through index's template and
// comparing it against the original bounds.
type exclusiveBoundRows struct {
	Rows
	index *indexDef
	lower []byte
	upper []byte
}

func (r *exclusiveBoundRows) Next() bool {
	for r.Rows.Next() {
		doc := r.Rows.Item().Doc
		rendered, err := renderKey(r.index.Template, func(name string) (Value, bool) { return doc.Get(name) })
		if err == nil {
			key := []byte(rendered)
			if r.lower != nil && bytes.Equal(key, r.lower) {
				continue
			}
			if r.upper != nil && bytes.Equal(key, r.upper) {
				continue
			}
		}
		return true
	}
	return false
}

// Compress trains a dictionary from samples (when non-empty) and attaches
// a zstd compressor to table, used for every document Put/Get thereafter.
func (db *Database) Compress(table string, samples [][]byte, level int) error {
	defer metrics.NewTimer().ObserveDuration(metrics.CompressDuration)
	dict := storage.TrainDictionary(samples, 1<<16)
	c, err := storage.NewCompressor(dict, level)
	if err != nil {
		return err
	}
	db.mu.Lock()
	if old := db.compressors[table]; old != nil {
		old.Close()
	}
	db.compressors[table] = c
	db.mu.Unlock()
	return nil
}

// Vacuum reclaims free pages left behind by deletes: it dumps every table
// into a fresh environment via storage.Env.CompactTo, then swaps it in for
// the live one. bbolt, unlike the original's LMDB-based store, never
// shrinks its file on its own; this is the documented workaround.
func (db *Database) Vacuum() error {
	defer metrics.NewTimer().ObserveDuration(metrics.VacuumDuration)

	path := db.env.Path()
	tmpPath := path + ".vacuum-" + uuid.New().String()

	// path is the data file itself (Subdir already resolved), so neither
	// the temporary file nor the reopened one is opened with Subdir.
	tmpEnv, err := storage.Open(tmpPath, storage.Options{MapSize: db.cfg.MapSize, Timeout: db.cfg.OpenTimeout})
	if err != nil {
		return storageErr("vacuum", "", err)
	}
	if err := db.env.CompactTo(tmpEnv); err != nil {
		tmpEnv.Close()
		os.Remove(tmpPath)
		return storageErr("vacuum", "", err)
	}
	if err := tmpEnv.Close(); err != nil {
		return storageErr("vacuum", "", err)
	}
	if err := db.env.Close(); err != nil {
		return storageErr("vacuum", "", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return storageErr("vacuum", "", err)
	}

	env, err := storage.Open(path, storage.Options{
		ReadOnly:   db.cfg.ReadOnly,
		MaxReaders: db.cfg.MaxReaders,
		MapSize:    db.cfg.MapSize,
		Timeout:    db.cfg.OpenTimeout,
	})
	if err != nil {
		return storageErr("vacuum", "", err)
	}
	db.env = env
	dbLog.Info().Str("path", path).Msg("vacuum complete")
	return nil
}

// Sync forwards to the underlying storage environment when force is true;
// without force it does nothing.
func (db *Database) Sync(force bool) error {
	if !force {
		return nil
	}
	return db.env.Sync()
}

// rangeCursor adapts a pre-computed, already-ordered oid list (from
// RangeIndex) to the same Cursor-shaped iteration the pipeline-backed
// operations use.
type rangeCursor struct {
	db    *Database
	tx    *Tx
	owned bool
	table string

	oids []uint64
	pos  int
	item *Item
	err  error
}

func (c *rangeCursor) Next() bool {
	if c.err != nil {
		return false
	}
	for c.pos < len(c.oids) {
		oid := c.oids[c.pos]
		c.pos++
		doc, found, err := c.db.Get(c.tx, c.table, oid)
		if err != nil {
			c.err = err
			return false
		}
		if !found {
			continue
		}
		c.item = &Item{Table: c.table, Doc: doc}
		return true
	}
	return false
}

func (c *rangeCursor) Item() *Item { return c.item }
func (c *rangeCursor) Err() error  { return c.err }

func (c *rangeCursor) Close() error {
	if !c.owned {
		return nil
	}
	return c.tx.Rollback()
}
