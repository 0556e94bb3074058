package legdb

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// workerPool bounds the optional parallel-traversal fan-out (§5): each
// worker opens its own short-lived read transaction against the shared
// Database, and the coordinator merges and deduplicates results by oid.
// Results cross the worker boundary as plain Documents, which carry no
// Start/End back-reference.
type workerPool struct {
	n int
}

func newWorkerPool(njobs int) *workerPool {
	if njobs < 0 {
		njobs = 0
	}
	return &workerPool{n: njobs}
}

// enabled reports whether fan-out should be used; n<=1 runs sequentially
// on the calling goroutine instead.
func (wp *workerPool) enabled() bool { return wp.n > 1 }

// fanOutSeeks resolves each seed predicate against table concurrently
// (bounded to wp.n in flight), each under its own read transaction, and
// returns the merged, oid-deduplicated result.
func (wp *workerPool) fanOutSeeks(db *Database, table string, seeds []map[string]Value) ([]*Document, error) {
	perSeed := make([][]*Document, len(seeds))

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(wp.n)

	for i, seed := range seeds {
		i, seed := i, seed
		g.Go(func() error {
			tx, err := db.beginRead()
			if err != nil {
				return err
			}
			defer tx.Rollback()

			docs, err := db.findInTx(tx, table, seed)
			if err != nil {
				return err
			}
			perSeed[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[uint64]struct{})
	var merged []*Document
	for _, docs := range perSeed {
		for _, d := range docs {
			if _, dup := seen[d.OID]; dup {
				continue
			}
			seen[d.OID] = struct{}{}
			merged = append(merged, d)
		}
	}
	return merged, nil
}
