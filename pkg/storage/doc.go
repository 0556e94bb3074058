/*
Package storage is the ordered key/value engine legdb is built on.

It wraps go.etcd.io/bbolt and exposes exactly the primitives the core legdb
package needs: an Env (one bbolt.DB per on-disk database), tables (one bbolt
bucket per legdb table, holding oid -> document-bytes), and secondary indexes
(one nested bucket per declared index, holding compound key -> oid entries so
that both unique and duplicate-key indexes are representable without relying
on a dup-sort cursor bbolt does not have).

Nothing in this package knows what a Node, Edge or attribute is — it only
deals in table names, byte keys and byte values. The catalog, planner and
entity model live in package legdb; this package is the external storage
collaborator they are built on top of.
*/
package storage
