package legdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkerPoolFanOutMatchesSequentialResult(t *testing.T) {
	db, oids := newFixtureDB(t)

	seeds := []map[string]Value{
		{"c": StringValue("a")},
		{"c": StringValue("b")},
		{"c": StringValue("c")},
	}

	db.pool = newWorkerPool(4)
	require.True(t, db.pool.enabled())

	docs, err := db.FindMany(TableNode, seeds)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	got := map[uint64]bool{}
	for _, d := range docs {
		got[d.OID] = true
	}
	require.True(t, got[oids['a']])
	require.True(t, got[oids['b']])
	require.True(t, got[oids['c']])
}
