package legdb

import (
	"github.com/cuemby/legdb/pkg/metrics"
	"github.com/cuemby/legdb/pkg/storage"
)

// Item is one entity flowing through a pipeline: a table name plus the
// document storage holds for it (Doc.OID is the storage-assigned oid).
type Item struct {
	Table string
	Doc   *Document
}

// execContext is threaded through every Executor.Pull call: the
// transaction to read from, the database the tables and catalog live on,
// and the page size to respect.
type execContext struct {
	tx       *storage.Tx
	db       *Database
	pageSize int
}

func (c *execContext) table(name string) (*storage.Table, error) {
	t, err := c.tx.Table(name)
	if err != nil {
		return nil, storageErr("table", name, err)
	}
	return c.db.attachCompressor(name, t), nil
}

// Executor is one compiled, stateful stage of a pipeline. Source-derived
// executors never receive Input; traversal executors are fed one seed
// item per upstream entity and queue the resulting per-seed lookups
// internally (the same FIFO-of-pending-predicates shape the engine this
// was ported from uses).
type Executor interface {
	Input(item *Item)
	Pull(ctx *execContext) ([]*Item, error)
	String() string
}

// seedFunc derives the per-upstream-entity predicate(s) a traversal
// executor seeds itself with. filterExec has none (it is always the root
// and seeds itself once from its own fixed predicate); edge executors
// derive one or two seeds referencing the upstream node's oid.
type seedFunc func(upstream *Item) []map[string]Value

// filterExec is the single executor implementation behind FilterExec,
// EdgeInExec, EdgeOutExec and EdgeAllExec: a FIFO of pending predicate
// "seeds", each resolved through the planner and storage in turn. The
// root filter executor seeds itself once (from its own fixed predicate,
// empty for a bare Source); traversal executors are reseeded every time
// Input is called.
type filterExec struct {
	label     string
	table     string
	predicate map[string]Value
	seedFrom  seedFunc // nil for the root filter

	pending  []map[string]Value
	rootSeed bool // true once the root's single implicit seed has been queued

	curOIDs     []uint64
	curResidual map[string]Value

	seen map[uint64]struct{}
}

func newFilterExec(label, table string, predicate map[string]Value, seedFrom seedFunc) *filterExec {
	return &filterExec{
		label:     label,
		table:     table,
		predicate: predicate,
		seedFrom:  seedFrom,
		seen:      make(map[uint64]struct{}),
	}
}

func (f *filterExec) String() string { return f.label }

// mergePredicate folds an additional Has predicate into the root filter's
// own fixed predicate, used by the compiler when a chain of consecutive
// HasStep calls lands on the same FilterExec. Only valid before Pull has
// queued the implicit root seed.
func (f *filterExec) mergePredicate(p map[string]Value) {
	if f.predicate == nil {
		f.predicate = make(map[string]Value, len(p))
	}
	for k, v := range p {
		f.predicate[k] = v
	}
}

func (f *filterExec) Input(item *Item) {
	if f.seedFrom == nil {
		return
	}
	f.pending = append(f.pending, f.seedFrom(item)...)
}

func (f *filterExec) Pull(ctx *execContext) ([]*Item, error) {
	if f.seedFrom == nil && !f.rootSeed {
		f.pending = append(f.pending, f.predicate)
		f.rootSeed = true
	}

	tbl, err := ctx.table(f.table)
	if err != nil {
		return nil, err
	}

	var page []*Item
	for len(page) < ctx.pageSize {
		if len(f.curOIDs) == 0 {
			if len(f.pending) == 0 {
				break
			}
			seed := f.pending[0]
			f.pending = f.pending[1:]

			oids, residual, err := f.resolveSeed(ctx, tbl, seed)
			if err != nil {
				return nil, err
			}
			f.curOIDs = oids
			f.curResidual = residual
		}

		for len(f.curOIDs) > 0 && len(page) < ctx.pageSize {
			oid := f.curOIDs[0]
			f.curOIDs = f.curOIDs[1:]
			if _, dup := f.seen[oid]; dup {
				continue
			}
			raw, found, err := tbl.Get(oid)
			if err != nil {
				return nil, storageErr("get", f.table, err)
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
			if !doc.Matches(f.curResidual) {
				continue
			}
			f.seen[oid] = struct{}{}
			page = append(page, &Item{Table: f.table, Doc: doc})
		}
	}

	metrics.PipelinePagesTotal.WithLabelValues(f.label).Inc()
	metrics.PipelineEntitiesTotal.WithLabelValues(f.label).Add(float64(len(page)))
	return page, nil
}

// resolveSeed picks a plan for seed and returns the candidate oids plus
// the residual predicate a caller still has to check per document.
func (f *filterExec) resolveSeed(ctx *execContext, tbl *storage.Table, seed map[string]Value) ([]uint64, map[string]Value, error) {
	if len(seed) == 0 {
		oids, _, err := fullScanOIDs(tbl)
		return oids, nil, err
	}
	return resolvePredicateOIDs(ctx.tx, ctx.db, tbl, f.table, seed, "")
}

// resolvePredicateOIDs resolves predicate against tbl to a set of
// candidate oids plus the residual predicate a caller still has to check
// per document. With forcedIndex empty, the planner picks the index (or a
// full scan); with forcedIndex set, that index is used directly rather
// than re-running the planner (predicate attributes it does not cover are
// left as residual), falling back to a full scan filtered by the whole
// predicate only if predicate lacks an attribute forcedIndex's key
// template needs. Shared by
// filterExec's pipeline seeding and Database.Seek's forced-index path.
func resolvePredicateOIDs(tx *storage.Tx, db *Database, tbl *storage.Table, table string, predicate map[string]Value, forcedIndex string) ([]uint64, map[string]Value, error) {
	if forcedIndex != "" {
		ix, ok := db.cat.lookup(table, forcedIndex)
		if !ok {
			return nil, nil, ErrMissingIndex
		}
		rendered, err := renderKey(ix.Template, func(name string) (Value, bool) {
			v, ok := predicate[name]
			return v, ok
		})
		if err != nil {
			oids, err := filterScanOIDs(tbl, predicate)
			return oids, nil, err
		}
		oids, err := tbl.IndexSeek(ix.Name, []byte(rendered), 0)
		if err != nil {
			return nil, nil, storageErr("seek", table, err)
		}
		residual := make(map[string]Value, len(predicate))
		for k, v := range predicate {
			if _, covered := ix.Attrs[k]; !covered {
				residual[k] = v
			}
		}
		return oids, residual, nil
	}

	pl, err := db.planner.selectPlan(tx, tbl, table, predicate)
	if err != nil {
		return nil, nil, err
	}
	if pl.index == nil {
		oids, err := filterScanOIDs(tbl, predicate)
		return oids, nil, err
	}
	oids, err := tbl.IndexSeek(pl.index.Name, []byte(pl.renderedKey), 0)
	if err != nil {
		return nil, nil, storageErr("seek", table, err)
	}
	return oids, pl.residual, nil
}

// fullScanOIDs collects every oid in the table, used only by the empty
// ({}) predicate a bare Source compiles to.
func fullScanOIDs(tbl *storage.Table) ([]uint64, bool, error) {
	var oids []uint64
	err := tbl.ForEach(func(oid uint64, _ []byte) error {
		oids = append(oids, oid)
		return nil
	})
	return oids, true, err
}

// filterScanOIDs scans every row applying predicate directly, used as a
// fallback when no declared index covers a seed predicate at all.
func filterScanOIDs(tbl *storage.Table, predicate map[string]Value) ([]uint64, error) {
	var oids []uint64
	err := tbl.ForEach(func(oid uint64, raw []byte) error {
		doc := NewDocument()
		if err := doc.UnmarshalBinary(raw); err != nil {
			return err
		}
		if doc.Matches(predicate) {
			oids = append(oids, oid)
		}
		return nil
	})
	return oids, err
}

// edgeSeed builds the seed predicate an edge traversal step queues for one
// upstream node: its own predicate plus the appropriate endpoint
// constraint(s).
func edgeSeed(fixed map[string]Value, attr string, oid uint64) map[string]Value {
	seed := make(map[string]Value, len(fixed)+1)
	for k, v := range fixed {
		seed[k] = v
	}
	seed[attr] = OIDValue(oid)
	return seed
}

func newEdgeInExec(edgeTable string, predicate map[string]Value) *filterExec {
	return newFilterExec("edge_in", edgeTable, predicate, func(upstream *Item) []map[string]Value {
		return []map[string]Value{edgeSeed(predicate, attrEndID, upstream.Doc.OID)}
	})
}

func newEdgeOutExec(edgeTable string, predicate map[string]Value) *filterExec {
	return newFilterExec("edge_out", edgeTable, predicate, func(upstream *Item) []map[string]Value {
		return []map[string]Value{edgeSeed(predicate, attrStartID, upstream.Doc.OID)}
	})
}

func newEdgeAllExec(edgeTable string, predicate map[string]Value) *filterExec {
	return newFilterExec("edge_all", edgeTable, predicate, func(upstream *Item) []map[string]Value {
		return []map[string]Value{
			edgeSeed(predicate, attrStartID, upstream.Doc.OID),
			edgeSeed(predicate, attrEndID, upstream.Doc.OID),
		}
	})
}

// UnionExec runs several independently-compiled chains against the same
// upstream items and yields their concatenated, deduplicated-by-oid
// results.
type UnionExec struct {
	branches []*chainRunner
	seen     map[uint64]struct{}
}

func newUnionExec(branches [][]Executor) *UnionExec {
	runners := make([]*chainRunner, len(branches))
	for i, b := range branches {
		runners[i] = &chainRunner{execs: b}
	}
	return &UnionExec{branches: runners, seen: make(map[uint64]struct{})}
}

func (u *UnionExec) String() string { return "union" }

func (u *UnionExec) Input(item *Item) {
	for _, r := range u.branches {
		if len(r.execs) > 0 {
			r.execs[0].Input(item)
		}
	}
}

func (u *UnionExec) Pull(ctx *execContext) ([]*Item, error) {
	var page []*Item
	for _, r := range u.branches {
		if len(page) >= ctx.pageSize {
			break
		}
		items, err := r.run(ctx, ctx.pageSize-len(page))
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if _, dup := u.seen[it.Doc.OID]; dup {
				continue
			}
			u.seen[it.Doc.OID] = struct{}{}
			page = append(page, it)
		}
	}
	metrics.PipelinePagesTotal.WithLabelValues("union").Inc()
	metrics.PipelineEntitiesTotal.WithLabelValues("union").Add(float64(len(page)))
	return page, nil
}
