package storage

import "errors"

// Sentinel errors for backend facts. Backends return these (optionally
// wrapped) so the resolver can tell object absence from infrastructure
// failure without inspecting backend internals.
//
//   - ErrNotFound: the queried object is not in the store. A normal outcome,
//     never a failure; the resolver falls through to delegation matching.
//   - ErrDuplicateHandle: a staged insert collides with a handle already
//     visible to the transaction.
//   - ErrConflict: a commit lost a race with another transaction that
//     introduced a colliding handle. First committer wins.
//   - ErrUnavailable: the backend cannot be reached. Fatal to the query,
//     never silently treated as absence.
//   - ErrTxDone: the transaction was already committed or rolled back.
var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateHandle = errors.New("duplicate handle")
	ErrConflict        = errors.New("conflict")
	ErrUnavailable     = errors.New("unavailable")
	ErrTxDone          = errors.New("transaction done")
)
