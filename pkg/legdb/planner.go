package legdb

import (
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/legdb/pkg/log"
	"github.com/cuemby/legdb/pkg/metrics"
	"github.com/cuemby/legdb/pkg/storage"
)

var plannerLog = log.WithComponent("planner")

// plan is the outcome of index selection for one predicate: either an
// index to seek plus the rendered key to seek it with, or nil meaning a
// full table scan, plus the residual predicate any post-filter still has
// to check.
type plan struct {
	index       *indexDef
	renderedKey string
	residual    map[string]Value
}

// planShape is a cached plan's name-only fingerprint: which index (if
// any) to use and which attribute names are left over. It is independent
// of the values being queried, which is what makes it cacheable by
// (table, attribute-name shape) the way the planner cache is documented.
type planShape struct {
	indexName string // "" means full scan
	residual  []string
}

type planner struct {
	cat *catalog

	mu    sync.Mutex
	cache map[string]cachedShape
}

type cachedShape struct {
	shape   planShape
	version uint64
}

func newPlanner(cat *catalog) *planner {
	return &planner{cat: cat, cache: make(map[string]cachedShape)}
}

func shapeKey(table string, predicate map[string]Value) string {
	names := make([]string, 0, len(predicate))
	for k := range predicate {
		names = append(names, k)
	}
	sort.Strings(names)
	return table + "\x00" + strings.Join(names, "\x00")
}

// selectPlan picks the cheapest index (by row count) whose declared
// attributes are a subset of predicate's flat (non-nested) attribute
// names, falling back to a full scan when none match. The shape of the
// decision (which index, which residual attributes) is cached per (table,
// attribute-name shape): row counts are taken for the values of the call
// that fills the cache entry, and later calls with the same shape reuse
// that choice without re-counting. A forced index rebuild invalidates the
// whole cache for that table.
func (p *planner) selectPlan(tx *storage.Tx, tbl *storage.Table, table string, predicate map[string]Value) (plan, error) {
	key := shapeKey(table, predicate)
	version := p.cat.tableVersion(table)

	p.mu.Lock()
	cached, ok := p.cache[key]
	p.mu.Unlock()

	var shape planShape
	if ok && cached.version == version {
		metrics.PlanCacheHitsTotal.Inc()
		shape = cached.shape
	} else {
		metrics.PlanCacheMissesTotal.Inc()
		var err error
		shape, err = p.computeShape(tbl, table, predicate)
		if err != nil {
			return plan{}, err
		}
		p.mu.Lock()
		p.cache[key] = cachedShape{shape: shape, version: version}
		p.mu.Unlock()
	}

	return p.materialize(table, predicate, shape)
}

// computeShape ranks every index whose attributes are covered by
// predicate's flat names by how many rows it would return for the values
// given, picking the smallest (ties broken by registration order), the
// same selection rule the original engine used.
func (p *planner) computeShape(tbl *storage.Table, table string, predicate map[string]Value) (planShape, error) {
	flat := make(map[string]struct{})
	var nested []string
	for k := range predicate {
		if _, _, isNested := splitNestedPath(k); isNested {
			nested = append(nested, k)
			continue
		}
		flat[k] = struct{}{}
	}

	type candidate struct {
		ix    *indexDef
		count int
	}
	var candidates []candidate
	for _, ix := range p.cat.indexesFor(table) {
		if !ix.subsetOf(flat) {
			continue
		}
		n, err := candidateCount(tbl, ix, predicate)
		if err != nil {
			return planShape{}, err
		}
		candidates = append(candidates, candidate{ix: ix, count: n})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count < candidates[j].count
		}
		return candidates[i].ix.Order < candidates[j].ix.Order
	})

	shape := planShape{residual: make([]string, 0, len(predicate))}
	covered := map[string]struct{}{}
	if len(candidates) > 0 {
		best := candidates[0].ix
		shape.indexName = best.Name
		covered = best.Attrs
	}
	for k := range flat {
		if _, ok := covered[k]; !ok {
			shape.residual = append(shape.residual, k)
		}
	}
	shape.residual = append(shape.residual, nested...)
	sort.Strings(shape.residual)
	return shape, nil
}

func (p *planner) materialize(table string, predicate map[string]Value, shape planShape) (plan, error) {
	residual := make(map[string]Value, len(shape.residual))
	for _, name := range shape.residual {
		if v, ok := predicate[name]; ok {
			residual[name] = v
		}
	}

	if shape.indexName == "" {
		metrics.PlanFullScanTotal.WithLabelValues(table).Inc()
		return plan{residual: residual}, nil
	}

	ix, ok := p.cat.lookup(table, shape.indexName)
	if !ok {
		return plan{}, ErrMissingIndex
	}

	rendered, err := renderKey(ix.Template, func(name string) (Value, bool) {
		v, ok := predicate[name]
		return v, ok
	})
	if err != nil {
		return plan{}, err
	}

	metrics.IndexSelectedTotal.WithLabelValues(table, ix.Name).Inc()
	plannerLog.Debug().Str("table", table).Str("index", ix.Name).Msg("index selected")

	return plan{index: ix, renderedKey: rendered, residual: residual}, nil
}

// candidateCount reports how many rows a candidate index would return for
// predicate's values, used to rank equally-eligible candidates.
func candidateCount(tbl *storage.Table, ix *indexDef, predicate map[string]Value) (int, error) {
	rendered, err := renderKey(ix.Template, func(name string) (Value, bool) {
		v, ok := predicate[name]
		return v, ok
	})
	if err != nil {
		return 0, err
	}
	return tbl.IndexCount(ix.Name, []byte(rendered))
}
