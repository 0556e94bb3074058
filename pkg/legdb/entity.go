package legdb

import (
	"fmt"

	"github.com/cuemby/legdb/pkg/log"
	"github.com/cuemby/legdb/pkg/metrics"
)

var entityLog = log.WithComponent("database")

// The two tables legdb's persisted layout always carries.
const (
	TableNode = "node"
	TableEdge = "edge"
)

// Reserved edge attributes. Never user-settable directly; Save strips and
// reattaches them around the free-form attribute set.
const (
	attrStartID = "start_id"
	attrEndID   = "end_id"
)

// Node is a graph vertex: an oid plus a free-form attribute set.
type Node struct {
	OID   uint64
	Bound bool
	Attrs *Document
}

// NewNode returns an unbound node with no attributes set.
func NewNode() *Node {
	return &Node{Attrs: NewDocument()}
}

func (n *Node) document() *Document {
	d := n.Attrs
	if d == nil {
		d = NewDocument()
	}
	d.OID = n.OID
	d.Bound = n.Bound
	return d
}

func nodeFromDocument(doc *Document) *Node {
	return &Node{OID: doc.OID, Bound: doc.Bound, Attrs: doc}
}

// Edge is a directed graph edge: an oid, the start/end node oids it
// references, and a free-form attribute set. start_id and end_id are not
// required to resolve to extant nodes (see Start/End).
type Edge struct {
	OID     uint64
	Bound   bool
	StartID uint64
	EndID   uint64
	Attrs   *Document

	start *Node
	end   *Node
}

// NewEdge returns an unbound edge between the given node oids.
func NewEdge(startID, endID uint64) *Edge {
	return &Edge{StartID: startID, EndID: endID, Attrs: NewDocument()}
}

func (e *Edge) document() *Document {
	attrs := e.Attrs
	if attrs == nil {
		attrs = NewDocument()
	}
	d := attrs.Clone()
	d.Set(attrStartID, OIDValue(e.StartID))
	d.Set(attrEndID, OIDValue(e.EndID))
	d.OID = e.OID
	d.Bound = e.Bound
	return d
}

func edgeFromDocument(doc *Document) (*Edge, error) {
	startV, ok := doc.Get(attrStartID)
	if !ok {
		return nil, fmt.Errorf("legdb: edge document missing %s", attrStartID)
	}
	endV, ok := doc.Get(attrEndID)
	if !ok {
		return nil, fmt.Errorf("legdb: edge document missing %s", attrEndID)
	}
	startID, _ := startV.OID()
	endID, _ := endV.OID()
	return &Edge{
		OID:     doc.OID,
		Bound:   doc.Bound,
		StartID: startID,
		EndID:   endID,
		Attrs:   doc.WithoutKeys(attrStartID, attrEndID),
	}, nil
}

// Start hydrates and returns the edge's start node via tx. A dangling
// reference (the start oid no longer resolves to a node) returns a nil
// Node and no error, after recording a warning observation.
func (e *Edge) Start(tx *Tx) (*Node, error) { return e.hydrate(tx, e.StartID, &e.start) }

// End hydrates and returns the edge's end node via tx.
func (e *Edge) End(tx *Tx) (*Node, error) { return e.hydrate(tx, e.EndID, &e.end) }

func (e *Edge) hydrate(tx *Tx, oid uint64, cache **Node) (*Node, error) {
	if *cache != nil {
		return *cache, nil
	}
	if tx == nil {
		return nil, ErrNotBound
	}
	n, found, err := tx.db.getNode(tx.storageTx, oid)
	if err != nil {
		return nil, err
	}
	if !found {
		metrics.DanglingEdgesTotal.Inc()
		entityLog.Warn().Uint64("edge_oid", e.OID).Uint64("endpoint_oid", oid).Msg("dangling edge endpoint")
		return nil, nil
	}
	*cache = n
	return n, nil
}

// Detach clears cached hydrated endpoints. Required before an Edge crosses
// a worker boundary (see worker.go): hydrated endpoints are only valid
// within the transaction that produced them, and must be re-hydrated (or
// left nil) by the coordinator.
func (e *Edge) Detach() {
	e.start = nil
	e.end = nil
}
