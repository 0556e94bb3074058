package legdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatabaseSaveGetRoundTrip(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir(), Subdir: true})
	require.NoError(t, err)
	defer db.Close()

	n := NewNode()
	n.Attrs.Set("c", StringValue("a"))
	require.NoError(t, db.Save(nil, n))
	require.True(t, n.Bound)
	require.NotZero(t, n.OID)

	doc, found, err := db.Get(nil, TableNode, n.OID)
	require.NoError(t, err)
	require.True(t, found)
	v, ok := doc.Get("c")
	require.True(t, ok)
	s, _ := v.String()
	require.Equal(t, "a", s)

	_, found, err = db.Get(nil, TableNode, n.OID+999)
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseSaveOverwritePreservesOID(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir(), Subdir: true})
	require.NoError(t, err)
	defer db.Close()

	n := NewNode()
	n.Attrs.Set("c", StringValue("a"))
	require.NoError(t, db.Save(nil, n))
	first := n.OID

	n.Attrs.Set("c", StringValue("b"))
	require.NoError(t, db.Save(nil, n))
	require.Equal(t, first, n.OID)

	doc, found, err := db.Get(nil, TableNode, first)
	require.NoError(t, err)
	require.True(t, found)
	v, _ := doc.Get("c")
	s, _ := v.String()
	require.Equal(t, "b", s)
}

func TestDatabaseUniqueIndexRejectsDuplicate(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir(), Subdir: true})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.EnsureIndex(TableNode, "by_c", []string{"c"}, "{c}", false, false))

	n1 := NewNode()
	n1.Attrs.Set("c", StringValue("dup"))
	require.NoError(t, db.Save(nil, n1))

	n2 := NewNode()
	n2.Attrs.Set("c", StringValue("dup"))
	err = db.Save(nil, n2)
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestDatabaseEnsureIndexForceRebuildsExistingDocuments(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir(), Subdir: true})
	require.NoError(t, err)
	defer db.Close()

	n := NewNode()
	n.Attrs.Set("c", StringValue("z"))
	require.NoError(t, db.Save(nil, n))

	// Index declared after the document already exists must pick it up on
	// initial creation, without requiring force.
	require.NoError(t, db.EnsureIndex(TableNode, "by_c", []string{"c"}, "{c}", false, false))

	rows, err := db.Seek(nil, TableNode, map[string]Value{"c": StringValue("z")}, "by_c")
	require.NoError(t, err)
	found := drain(t, rows)
	require.Len(t, found, 1)
	require.Equal(t, n.OID, found[0].Doc.OID)

	// Force re-declaring the same index still rebuilds cleanly.
	require.NoError(t, db.EnsureIndex(TableNode, "by_c", []string{"c"}, "{c}", false, true))
	rows, err = db.Seek(nil, TableNode, map[string]Value{"c": StringValue("z")}, "by_c")
	require.NoError(t, err)
	found = drain(t, rows)
	require.Len(t, found, 1)
}

func TestDatabaseSeekRejectsUnknownIndex(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir(), Subdir: true})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Seek(nil, TableNode, map[string]Value{"c": StringValue("z")}, "no_such_index")
	require.ErrorIs(t, err, ErrMissingIndex)
}

func TestDatabaseFindManyDeduplicates(t *testing.T) {
	db, oids := newFixtureDB(t)

	docs, err := db.FindMany(TableNode, []map[string]Value{
		{"c": StringValue("a")},
		{"c": StringValue("a")},
		{"c": StringValue("b")},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	seen := map[uint64]bool{}
	for _, d := range docs {
		seen[d.OID] = true
	}
	require.True(t, seen[oids['a']])
	require.True(t, seen[oids['b']])
}

func TestDatabaseCompressRoundTrips(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir(), Subdir: true})
	require.NoError(t, err)
	defer db.Close()

	var samples [][]byte
	for i := 0; i < 5; i++ {
		n := NewNode()
		n.Attrs.Set("c", StringValue("sample"))
		require.NoError(t, db.Save(nil, n))
		doc, _, err := db.Get(nil, TableNode, n.OID)
		require.NoError(t, err)
		raw, err := doc.MarshalBinary()
		require.NoError(t, err)
		samples = append(samples, raw)
	}

	require.NoError(t, db.Compress(TableNode, samples, 0))

	n := NewNode()
	n.Attrs.Set("c", StringValue("after-compress"))
	require.NoError(t, db.Save(nil, n))

	doc, found, err := db.Get(nil, TableNode, n.OID)
	require.NoError(t, err)
	require.True(t, found)
	v, _ := doc.Get("c")
	s, _ := v.String()
	require.Equal(t, "after-compress", s)
}

func TestDatabaseSeekForcesNamedIndexOverPlanner(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir(), Subdir: true})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.EnsureIndex(TableNode, "by_c", []string{"c"}, "{c}", false, false))
	require.NoError(t, db.EnsureIndex(TableNode, "by_c_d", []string{"c", "d"}, "{c}|{d}", false, false))

	n := NewNode()
	n.Attrs.Set("c", StringValue("x"))
	n.Attrs.Set("d", StringValue("y"))
	require.NoError(t, db.Save(nil, n))

	rows, err := db.Seek(nil, TableNode, map[string]Value{"c": StringValue("x"), "d": StringValue("y")}, "by_c")
	require.NoError(t, err)
	found := drain(t, rows)
	require.Len(t, found, 1)
	require.Equal(t, n.OID, found[0].Doc.OID)
}

func TestDatabaseSeekExpandsEndpointTemplates(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir(), Subdir: true})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.EnsureIndex(TableNode, "by_c", []string{"c"}, "{c}", true, false))

	a := NewNode()
	a.Attrs.Set("c", StringValue("a"))
	require.NoError(t, db.Save(nil, a))

	b1 := NewNode()
	b1.Attrs.Set("c", StringValue("b"))
	require.NoError(t, db.Save(nil, b1))

	b2 := NewNode()
	b2.Attrs.Set("c", StringValue("b"))
	require.NoError(t, db.Save(nil, b2))

	e1 := NewEdge(a.OID, b1.OID)
	e1.Attrs.Set("kind", StringValue("knows"))
	require.NoError(t, db.Save(nil, e1))

	e2 := NewEdge(a.OID, b2.OID)
	e2.Attrs.Set("kind", StringValue("knows"))
	require.NoError(t, db.Save(nil, e2))

	unrelated := NewNode()
	require.NoError(t, db.Save(nil, unrelated))
	e3 := NewEdge(unrelated.OID, b1.OID)
	e3.Attrs.Set("kind", StringValue("knows"))
	require.NoError(t, db.Save(nil, e3))

	predicate := map[string]Value{
		"kind":            StringValue("knows"),
		seekStartTemplate: MapValue(map[string]Value{"c": StringValue("a")}),
		seekEndTemplate:   MapValue(map[string]Value{"c": StringValue("b")}),
	}
	rows, err := db.Seek(nil, TableEdge, predicate, "")
	require.NoError(t, err)
	found := drain(t, rows)

	oids := map[uint64]bool{}
	for _, it := range found {
		oids[it.Doc.OID] = true
	}
	require.Len(t, found, 2)
	require.True(t, oids[e1.OID])
	require.True(t, oids[e2.OID])
}

func TestDatabaseRangeTypedBounds(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir(), Subdir: true})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.EnsureIndex(TableNode, "by_c", []string{"c"}, "{c}", true, false))

	for _, c := range []string{"a", "b", "c", "d"} {
		n := NewNode()
		n.Attrs.Set("c", StringValue(c))
		require.NoError(t, db.Save(nil, n))
	}

	lower := NewNode()
	lower.Attrs.Set("c", StringValue("b"))
	upper := NewNode()
	upper.Attrs.Set("c", StringValue("c"))

	rows, err := db.Range(nil, "by_c", lower, upper, true)
	require.NoError(t, err)
	found := drain(t, rows)
	require.Len(t, found, 2)

	rows, err = db.Range(nil, "by_c", lower, upper, false)
	require.NoError(t, err)
	found = drain(t, rows)
	require.Len(t, found, 0)
}

func TestDatabaseRangeTypeMismatch(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir(), Subdir: true})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Range(nil, "by_start_id", NewNode(), NewEdge(1, 2), true)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDatabaseVacuumPreservesData(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir(), Subdir: true})
	require.NoError(t, err)
	defer db.Close()

	n := NewNode()
	n.Attrs.Set("c", StringValue("kept"))
	require.NoError(t, db.Save(nil, n))

	require.NoError(t, db.Vacuum())

	doc, found, err := db.Get(nil, TableNode, n.OID)
	require.NoError(t, err)
	require.True(t, found)
	v, _ := doc.Get("c")
	s, _ := v.String()
	require.Equal(t, "kept", s)
}
