package legdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, rows Rows) []*Item {
	t.Helper()
	var items []*Item
	for rows.Next() {
		items = append(items, rows.Item())
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	return items
}

func TestPlannerSourceFullScan(t *testing.T) {
	db, _ := newFixtureDB(t)

	rows, err := NewPipeline().Source(TableNode).Run(db, nil)
	require.NoError(t, err)
	items := drain(t, rows)
	require.Len(t, items, 26)
}

func TestPlannerSingleAttributeUniqueIndex(t *testing.T) {
	db, oids := newFixtureDB(t)

	rows, err := NewPipeline().Source(TableNode).Has(map[string]Value{"c": StringValue("a")}).Run(db, nil)
	require.NoError(t, err)
	items := drain(t, rows)
	require.Len(t, items, 1)
	require.Equal(t, oids['a'], items[0].Doc.OID)
}

func TestPlannerSingleAttributeDuplicateIndex(t *testing.T) {
	db, _ := newFixtureDB(t)

	rows, err := NewPipeline().Source(TableNode).Has(map[string]Value{"ord_c_mod_2": IntValue(0)}).Run(db, nil)
	require.NoError(t, err)
	items := drain(t, rows)
	require.Len(t, items, 13)
	for _, it := range items {
		v, ok := it.Doc.Get("ord_c_mod_2")
		require.True(t, ok)
		n, ok := v.Int()
		require.True(t, ok)
		require.Equal(t, int64(0), n)
	}
}

// TestPlannerPicksNarrowerIndexOverResidual exercises the "two consecutive
// Has calls merge into one FilterExec" compiler rule: the planner must
// still pick by_c (one matching row) over by_ord_c_mod_2 (13 matching
// rows) even though ord_c_mod_2 was named first, with ord_c_mod_2 left as
// a residual post-filter check.
func TestPlannerPicksNarrowerIndexOverResidual(t *testing.T) {
	db, oids := newFixtureDB(t)

	rows, err := NewPipeline().Source(TableNode).
		Has(map[string]Value{"ord_c_mod_2": IntValue(0)}).
		Has(map[string]Value{"c": StringValue("d")}).
		Run(db, nil)
	require.NoError(t, err)
	items := drain(t, rows)
	require.Len(t, items, 1)
	require.Equal(t, oids['d'], items[0].Doc.OID)
}

func TestPlannerPicksSmallerCandidateByRowCount(t *testing.T) {
	db, _ := newFixtureDB(t)

	// mod_3 == 0 has 8 matching rows out of 26, narrower than mod_2's 13,
	// so by_ord_c_mod_3 should be selected with ord_c_mod_2 left residual.
	rows, err := NewPipeline().Source(TableNode).
		Has(map[string]Value{"ord_c_mod_2": IntValue(0), "ord_c_mod_3": IntValue(0)}).
		Run(db, nil)
	require.NoError(t, err)
	items := drain(t, rows)
	for _, it := range items {
		v2, _ := it.Doc.Get("ord_c_mod_2")
		v3, _ := it.Doc.Get("ord_c_mod_3")
		n2, _ := v2.Int()
		n3, _ := v3.Int()
		require.Equal(t, int64(0), n2)
		require.Equal(t, int64(0), n3)
	}
}

func TestPlannerFallsBackToFullScanForUnindexedAttribute(t *testing.T) {
	db, _ := newFixtureDB(t)

	rows, err := NewPipeline().Source(TableNode).
		Has(map[string]Value{"ord_c_mod_4": IntValue(0)}).
		Run(db, nil)
	require.NoError(t, err)
	items := drain(t, rows)
	for _, it := range items {
		v, _ := it.Doc.Get("ord_c_mod_4")
		n, _ := v.Int()
		require.Equal(t, int64(0), n)
	}
}

func TestPlannerEdgeInOutAll(t *testing.T) {
	db, oids := newFixtureDB(t)

	oidAttr := func(it *Item, key string) uint64 {
		v, ok := it.Doc.Get(key)
		require.True(t, ok)
		oid, ok := v.OID()
		require.True(t, ok)
		return oid
	}

	rows, err := NewPipeline().Source(TableNode).
		Has(map[string]Value{"c": StringValue("d")}).
		EdgeIn(map[string]Value{"w": FloatValue(-1.0)}).
		Run(db, nil)
	require.NoError(t, err)
	items := drain(t, rows)
	require.Len(t, items, 1)
	require.Equal(t, oids['e'], oidAttr(items[0], "start_id"))
	require.Equal(t, oids['d'], oidAttr(items[0], "end_id"))

	rows, err = NewPipeline().Source(TableNode).
		Has(map[string]Value{"c": StringValue("d")}).
		EdgeOut(map[string]Value{"w": FloatValue(1.0)}).
		Run(db, nil)
	require.NoError(t, err)
	items = drain(t, rows)
	require.Len(t, items, 1)
	require.Equal(t, oids['d'], oidAttr(items[0], "start_id"))
	require.Equal(t, oids['e'], oidAttr(items[0], "end_id"))

	rows, err = NewPipeline().Source(TableNode).
		Has(map[string]Value{"c": StringValue("d")}).
		EdgeAll(map[string]Value{"w": FloatValue(1.0)}).
		Run(db, nil)
	require.NoError(t, err)
	items = drain(t, rows)
	require.Len(t, items, 2)
}

func TestPlannerHasAfterEdgeStepFailsToCompile(t *testing.T) {
	db, _ := newFixtureDB(t)

	_, err := NewPipeline().Source(TableNode).
		EdgeOut(map[string]Value{"w": FloatValue(1.0)}).
		Has(map[string]Value{"c": StringValue("d")}).
		Run(db, nil)
	require.ErrorIs(t, err, ErrInvalidPipeline)
}
