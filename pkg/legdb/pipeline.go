package legdb

// chainRunner drives one compiled []Executor chain using the same
// windowed pull/backoff algorithm the engine this was ported from uses:
// pull from the current stage, feed a non-empty page forward and
// advance, or back off one stage on an empty page, until the root stage
// itself returns empty (permanently exhausted) or `want` items have been
// collected.
//
// Feeding only happens once per arrival at a stage (tracked by `fed`), a
// deliberate simplification of the ported algorithm: the original
// re-checks its feed condition on every loop iteration, which incidental
// Python generator semantics make a harmless no-op once a stage is
// re-visited without advancing past it again. Skipping the redundant
// feed call here is behaviorally identical and avoids relying on that
// incidental generator exhaustion quirk.
type chainRunner struct {
	execs []Executor

	stageIdx  int
	last      []*Item
	fed       bool
	exhausted bool
}

func (r *chainRunner) run(ctx *execContext, want int) ([]*Item, error) {
	var out []*Item
	for len(out) < want && !r.exhausted {
		step := r.execs[r.stageIdx]
		if r.stageIdx > 0 && len(r.last) > 0 && !r.fed {
			for _, it := range r.last {
				step.Input(it)
			}
			r.fed = true
		}

		page, err := step.Pull(ctx)
		if err != nil {
			return out, err
		}

		if len(page) == 0 {
			if r.stageIdx == 0 {
				r.exhausted = true
				break
			}
			r.stageIdx--
			r.last = nil
			r.fed = false
			continue
		}

		if r.stageIdx < len(r.execs)-1 {
			r.last = page
			r.fed = false
			r.stageIdx++
			continue
		}

		out = append(out, page...)
	}
	return out, nil
}

// Rows is the common shape every result stream a Database operation
// returns implements, whether backed by a compiled pipeline (Cursor) or a
// precomputed oid list (the rangeCursor RangeIndex returns).
type Rows interface {
	Next() bool
	Item() *Item
	Err() error
	Close() error
}

// Cursor is a pull-based, paginated result stream from a pipeline or a
// database Find call. It owns the auto-opened transaction, if
// any, and must be closed once the caller is done (even if not fully
// consumed) to release it.
type Cursor struct {
	ctx     *execContext
	runner  *chainRunner
	ownedTx bool

	buf []*Item
	pos int
	err error
	done bool
}

func newCursor(ctx *execContext, execs []Executor, ownedTx bool) *Cursor {
	return &Cursor{ctx: ctx, runner: &chainRunner{execs: execs}, ownedTx: ownedTx}
}

// Next advances the cursor. It returns false when the stream is
// exhausted or an error occurred; callers must check Err afterward.
func (c *Cursor) Next() bool {
	if c.err != nil || c.done {
		return false
	}
	for c.pos >= len(c.buf) {
		page, err := c.runner.run(c.ctx, c.ctx.pageSize)
		if err != nil {
			c.err = err
			return false
		}
		if len(page) == 0 {
			c.done = true
			return false
		}
		c.buf = page
		c.pos = 0
	}
	c.pos++
	return true
}

// Item returns the entity the most recent Next call advanced to.
func (c *Cursor) Item() *Item { return c.buf[c.pos-1] }

// Err reports the first error encountered, if any.
func (c *Cursor) Err() error { return c.err }

// Close releases the cursor's auto-opened transaction, if it owns one.
// Closing a cursor over a caller-supplied transaction is a no-op; the
// caller owns that transaction's lifetime.
func (c *Cursor) Close() error {
	if !c.ownedTx {
		return nil
	}
	return c.ctx.tx.Rollback()
}

// Pipeline is the fluent builder for a traversal: Source seeds it from a
// table, Has/EdgeIn/EdgeOut/EdgeAll/Union append further steps, and
// Run compiles and executes the chain against a Database.
type Pipeline struct {
	steps []Step
	err   error
}

// NewPipeline returns an empty pipeline. Source must be the first step
// appended; any pipeline not starting with Source fails to compile.
func NewPipeline() *Pipeline { return &Pipeline{} }

func (p *Pipeline) Source(table string) *Pipeline {
	p.steps = append(p.steps, SourceStep{Table: table})
	return p
}

func (p *Pipeline) Has(predicate map[string]Value) *Pipeline {
	p.steps = append(p.steps, HasStep{Predicate: predicate})
	return p
}

func (p *Pipeline) EdgeIn(predicate map[string]Value) *Pipeline {
	p.steps = append(p.steps, EdgeInStep{Table: TableEdge, Predicate: predicate})
	return p
}

func (p *Pipeline) EdgeOut(predicate map[string]Value) *Pipeline {
	p.steps = append(p.steps, EdgeOutStep{Table: TableEdge, Predicate: predicate})
	return p
}

func (p *Pipeline) EdgeAll(predicate map[string]Value) *Pipeline {
	p.steps = append(p.steps, EdgeAllStep{Table: TableEdge, Predicate: predicate})
	return p
}

func (p *Pipeline) Union(branches ...*Pipeline) *Pipeline {
	bs := make([][]Step, len(branches))
	for i, b := range branches {
		bs[i] = b.steps
	}
	p.steps = append(p.steps, UnionStep{Branches: bs})
	return p
}

// String renders the uncompiled step sequence, mirroring the original
// pipeline's debug repr.
func (p *Pipeline) String() string {
	out := ""
	for i, s := range p.steps {
		if i > 0 {
			out += "."
		}
		out += s.stepName()
	}
	return out
}

// Run compiles the pipeline and returns a Cursor over its results. If tx
// is nil, a short-lived read transaction is opened for the cursor's
// lifetime (the auto-tx wrapper); the caller must Close the cursor
// either way.
func (p *Pipeline) Run(db *Database, tx *Tx) (Rows, error) {
	if len(p.steps) == 0 {
		return nil, ErrInvalidPipeline
	}
	if _, ok := p.steps[0].(SourceStep); !ok {
		return nil, ErrInvalidPipeline
	}
	execs, err := compile(p.steps)
	if err != nil {
		return nil, err
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

	ctx := &execContext{tx: tx.storageTx, db: db, pageSize: db.cfg.PageSize}
	return newCursor(ctx, execs, owned), nil
}
