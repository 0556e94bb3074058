package legdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPipelinePageSizeInvariance runs the same traversal at wildly
// different page sizes and checks the result set is identical regardless,
// since pagination is purely an internal batching detail.
func TestPipelinePageSizeInvariance(t *testing.T) {
	db, _ := newFixtureDB(t)

	var baseline map[uint64]bool
	for _, pageSize := range []int{1, 2, 10, 4096, 10000} {
		db.cfg.PageSize = pageSize

		rows, err := NewPipeline().Source(TableNode).
			Has(map[string]Value{"ord_c_mod_2": IntValue(0)}).
			Run(db, nil)
		require.NoError(t, err)
		items := drain(t, rows)

		got := make(map[uint64]bool, len(items))
		for _, it := range items {
			got[it.Doc.OID] = true
		}
		if baseline == nil {
			baseline = got
			continue
		}
		require.Equal(t, baseline, got, "page size %d produced a different result set", pageSize)
	}
}

func TestPipelineUnionDeduplicatesAcrossBranches(t *testing.T) {
	db, oids := newFixtureDB(t)

	branchA := NewPipeline().Source(TableNode).Has(map[string]Value{"c": StringValue("a")})
	branchB := NewPipeline().Source(TableNode).Has(map[string]Value{"c": StringValue("a")})
	branchC := NewPipeline().Source(TableNode).Has(map[string]Value{"c": StringValue("b")})

	rows, err := NewPipeline().Source(TableNode).Union(branchA, branchB, branchC).Run(db, nil)
	require.NoError(t, err)
	items := drain(t, rows)

	require.Len(t, items, 2)
	seen := map[uint64]bool{}
	for _, it := range items {
		seen[it.Doc.OID] = true
	}
	require.True(t, seen[oids['a']])
	require.True(t, seen[oids['b']])
}

func TestPipelineEdgeHydrationDetectsDanglingEndpoint(t *testing.T) {
	db, oids := newFixtureDB(t)

	err := db.Update(func(tx *Tx) error {
		tbl, err := tx.storageTx.Table(TableNode)
		if err != nil {
			return err
		}
		return tbl.Delete(oids['a'])
	})
	require.NoError(t, err)

	err = db.View(func(tx *Tx) error {
		rows, err := NewPipeline().Source(TableEdge).
			Has(map[string]Value{"start_id": OIDValue(oids['a']), "end_id": OIDValue(oids['b'])}).
			Run(db, tx)
		require.NoError(t, err)
		defer rows.Close()

		require.True(t, rows.Next())
		item := rows.Item()
		e, err := edgeFromDocument(item.Doc)
		require.NoError(t, err)

		n, err := e.Start(tx)
		require.NoError(t, err)
		require.Nil(t, n)
		return nil
	})
	require.NoError(t, err)
}

func TestDatabaseEmptyStringRoundTrip(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir(), Subdir: true})
	require.NoError(t, err)
	defer db.Close()

	n := NewNode()
	n.Attrs.Set("label", StringValue(""))
	require.NoError(t, db.Save(nil, n))

	doc, found, err := db.Get(nil, TableNode, n.OID)
	require.NoError(t, err)
	require.True(t, found)

	v, ok := doc.Get("label")
	require.True(t, ok)
	s, _ := v.String()
	require.Equal(t, "", s)
}
