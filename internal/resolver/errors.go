package resolver

import "errors"

// Terminal resolution outcomes. The transport layer maps these onto RDAP
// error responses; any other error returned by Resolve is an infrastructure
// failure and must never be presented as absence.
var (
	// ErrNotFound means neither the local store nor the delegation
	// registries know the object.
	ErrNotFound = errors.New("object not found")

	// ErrAmbiguousQueryType reports a query whose kind does not classify
	// into exactly one object class.
	ErrAmbiguousQueryType = errors.New("ambiguous query type")

	// ErrInvalidQueryValue reports a lookup key that does not parse as a
	// value of its query kind.
	ErrInvalidQueryValue = errors.New("invalid query value")
)
