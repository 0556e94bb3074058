package legdb

// Step is one uncompiled stage of a Pipeline, as appended by the builder
// methods on Pipeline (Source, Has, EdgeIn, EdgeOut, EdgeAll, Union). The
// compiler rewrites a []Step into a []Executor; nothing here touches
// storage directly.
type Step interface {
	stepName() string
}

// SourceStep seeds the pipeline from a table with no predicate: every
// entity in the table, in oid order.
type SourceStep struct {
	Table string
}

func (SourceStep) stepName() string { return "source" }

// HasStep filters the entities flowing through the pipeline by an
// attribute predicate. The compiler merges a HasStep's predicate into
// whichever FilterExec it most recently compiled, so a chain of
// consecutive Has calls all collapse into one executor regardless of how
// many preceded it. A Has with no FilterExec to merge into — most often
// one chained directly after an edge step, which takes its own predicate
// directly via EdgeInStep.Predicate and friends instead — fails
// compilation with ErrInvalidPipeline.
type HasStep struct {
	Predicate map[string]Value
}

func (HasStep) stepName() string { return "has" }

// EdgeInStep follows edges whose end_id is the current node's oid,
// yielding the edges themselves (not the neighboring nodes).
type EdgeInStep struct {
	Table     string
	Predicate map[string]Value
}

func (EdgeInStep) stepName() string { return "edge_in" }

// EdgeOutStep follows edges whose start_id is the current node's oid.
type EdgeOutStep struct {
	Table     string
	Predicate map[string]Value
}

func (EdgeOutStep) stepName() string { return "edge_out" }

// EdgeAllStep follows edges in either direction.
type EdgeAllStep struct {
	Table     string
	Predicate map[string]Value
}

func (EdgeAllStep) stepName() string { return "edge_all" }

// UnionStep runs several independent sub-chains against the same input
// entities and concatenates their results, deduplicated by oid.
type UnionStep struct {
	Branches [][]Step
}

func (UnionStep) stepName() string { return "union" }
