package legdb

// compile rewrites a step slice into its executor chain using the same
// small rewrite-rule sweep the engine this was ported from used: Source,
// EdgeIn, EdgeOut and EdgeAll each lower to their own executor, and a
// HasStep merges its predicate into the FilterExec most recently compiled
// (so a chain of consecutive Has calls all merge into one executor,
// whether they followed Source directly or each other). A HasStep with
// nothing to merge into — most commonly one chained directly after an
// edge step, which takes its own predicate directly instead of merging
// — has no matching rule and reports ErrInvalidPipeline, the same as the
// original compiler leaving it unconverted.
func compile(steps []Step) ([]Executor, error) {
	var execs []Executor
	for _, s := range steps {
		if has, ok := s.(HasStep); ok {
			if len(execs) == 0 {
				return nil, ErrInvalidPipeline
			}
			fe, ok := execs[len(execs)-1].(*filterExec)
			if !ok || fe.seedFrom != nil {
				return nil, ErrInvalidPipeline
			}
			fe.mergePredicate(has.Predicate)
			continue
		}

		switch st := s.(type) {
		case SourceStep:
			execs = append(execs, newFilterExec("filter", st.Table, map[string]Value{}, nil))
		case EdgeInStep:
			execs = append(execs, newEdgeInExec(st.Table, st.Predicate))
		case EdgeOutStep:
			execs = append(execs, newEdgeOutExec(st.Table, st.Predicate))
		case EdgeAllStep:
			execs = append(execs, newEdgeAllExec(st.Table, st.Predicate))
		case UnionStep:
			branches := make([][]Executor, len(st.Branches))
			for bi, branch := range st.Branches {
				be, err := compile(branch)
				if err != nil {
					return nil, err
				}
				branches[bi] = be
			}
			execs = append(execs, newUnionExec(branches))
		default:
			return nil, ErrInvalidPipeline
		}
	}
	return execs, nil
}
