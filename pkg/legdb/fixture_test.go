package legdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newFixtureDB builds the 26-node / 676-edge fixture used across this
// package's tests: one node per lowercase letter with c/ord_c_mod_2/
// ord_c_mod_3/ord_c_mod_4 attributes, and a complete edge product between
// every pair of nodes carrying w = ord(end.c) - ord(start.c).
func newFixtureDB(t *testing.T) (*Database, map[byte]uint64) {
	t.Helper()

	db, err := Open(Config{Path: t.TempDir(), Subdir: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.EnsureIndex(TableNode, "by_c", []string{"c"}, "{c}", false, false))
	require.NoError(t, db.EnsureIndex(TableNode, "by_ord_c_mod_2", []string{"ord_c_mod_2"}, "{ord_c_mod_2}", true, false))
	require.NoError(t, db.EnsureIndex(TableNode, "by_ord_c_mod_3", []string{"ord_c_mod_3"}, "{ord_c_mod_3}", true, false))
	require.NoError(t, db.EnsureIndex(TableEdge, "by_w", []string{"w"}, "{w}", true, false))

	oids := make(map[byte]uint64, 26)

	err = db.Update(func(tx *Tx) error {
		for c := byte('a'); c <= 'z'; c++ {
			n := NewNode()
			n.Attrs.Set("c", StringValue(string(c)))
			n.Attrs.Set("ord_c_mod_2", IntValue(int64(c)%2))
			n.Attrs.Set("ord_c_mod_3", IntValue(int64(c)%3))
			n.Attrs.Set("ord_c_mod_4", IntValue(int64(c)%4))
			if err := db.Save(tx, n); err != nil {
				return err
			}
			oids[c] = n.OID
		}
		for sc := byte('a'); sc <= 'z'; sc++ {
			for ec := byte('a'); ec <= 'z'; ec++ {
				e := NewEdge(oids[sc], oids[ec])
				e.Attrs.Set("w", FloatValue(float64(ec)-float64(sc)))
				if err := db.Save(tx, e); err != nil {
					return err
				}
			}
		}
		return nil
	})
	require.NoError(t, err)

	return db, oids
}
