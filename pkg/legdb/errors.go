package legdb

import "fmt"

// Sentinel errors usable with errors.Is. They stand in for the original
// engine's exception hierarchy; a dangling edge reference is deliberately
// not one of them (see Edge.Start) since §7 treats it as tolerated, not
// fatal.
var (
	// ErrNotBound is returned by Edge.Start and Edge.End when an endpoint
	// is not yet hydrated and no transaction is given to load it through.
	ErrNotBound = fmt.Errorf("legdb: entity is not bound to a database")

	// ErrInvalidPipeline is returned when a Pipeline is iterated or
	// compiled in a shape the compiler has no rule for, such as starting
	// with something other than Source.
	ErrInvalidPipeline = fmt.Errorf("legdb: invalid pipeline")

	// ErrDuplicateKey is returned by Save when a unique index already has
	// an entry for the document's rendered index key.
	ErrDuplicateKey = fmt.Errorf("legdb: duplicate key")

	// ErrMissingIndex is returned by operations that take a named index
	// (Seek's forced index, Range) when no index by that name is
	// declared on the table.
	ErrMissingIndex = fmt.Errorf("legdb: missing index")

	// ErrTypeMismatch is returned by Range when its lower and upper
	// entity-typed bounds resolve to different tables (e.g. a *Node lower
	// bound paired with a *Edge upper bound).
	ErrTypeMismatch = fmt.Errorf("legdb: value type mismatch")
)

// StorageError wraps an error returned by the underlying storage engine,
// preserving it for errors.Unwrap/errors.Is while adding the table or
// operation context that made it legible at the legdb layer.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("legdb: %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("legdb: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Table: table, Err: err}
}
