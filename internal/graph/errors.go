package graph

import "fmt"

// DataAccessError indicates the upstream graph store was unreachable.
// It is surfaced unmodified; retry and backoff policy belong to the caller.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("%s: graph store unavailable: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// EntityNotFoundError indicates a query referenced an entity id that does
// not exist in the snapshot.
type EntityNotFoundError struct {
	Op              string
	EntityID        string
	SnapshotVersion int64
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s: entity %q not found in snapshot %d", e.Op, e.EntityID, e.SnapshotVersion)
}

// ComputationError indicates a numerical failure inside an analyzer.
// The failing sub-analysis returns a degraded result; sibling analyses
// in a combined report continue.
type ComputationError struct {
	Op              string
	SnapshotVersion int64
	Err             error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: computation failed on snapshot %d: %v", e.Op, e.SnapshotVersion, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}
