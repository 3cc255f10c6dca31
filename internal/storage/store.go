// Package storage defines the capability contract the lookup engine runs
// against. Backends are interface-driven so the resolver, loader, and tests
// can swap the in-memory and relational implementations without rewiring.
package storage

import (
	"context"
	"fmt"
	"net/netip"

	"rdapd/internal/rdap"
)

// DefaultMaxSearch bounds search result sets when no limit is configured.
const DefaultMaxSearch = 50

// Backend is the read side plus transaction entry point of a backing store.
// One backend is chosen at startup for the process lifetime.
//
// Getters signal "not in this store" with ErrNotFound and reserve other
// errors for infrastructure failure; callers must treat the two differently.
// Lookup keys arrive in typed, already-validated form: LDH names are matched
// case-insensitively, AS numbers and addresses by range containment with the
// smallest containing span winning.
type Backend interface {
	// Init verifies reachability and prepares the store. Idempotent.
	Init(ctx context.Context) error

	// Begin opens an isolated unit of work. Staged writes become visible
	// only on Commit; a transaction abandoned without Commit leaves no
	// trace.
	Begin(ctx context.Context) (Tx, error)

	GetDomainByLDH(ctx context.Context, name string) (*rdap.Domain, error)
	GetEntityByHandle(ctx context.Context, handle string) (*rdap.Entity, error)
	GetNameserverByLDH(ctx context.Context, name string) (*rdap.Nameserver, error)
	GetAutnumByNumber(ctx context.Context, asn uint32) (*rdap.Autnum, error)
	GetNetworkByAddr(ctx context.Context, addr netip.Addr) (*rdap.Network, error)

	// GetHelp returns the help response registered for the host, falling
	// back to the default (empty host) text.
	GetHelp(ctx context.Context, host string) (*rdap.Help, error)

	// Searches match the pattern against LDH names, case-insensitively,
	// with * as a wildcard. Results are ordered by name then handle and
	// never exceed the configured maximum.
	SearchDomainsByName(ctx context.Context, pattern string) ([]*rdap.Domain, error)
	SearchNameserversByName(ctx context.Context, pattern string) ([]*rdap.Nameserver, error)

	Close() error
}

// Tx stages inserts for one atomic publication. Add calls fail with
// ErrDuplicateHandle when the handle is already visible to this transaction;
// Commit fails with ErrConflict when a racing transaction committed a
// colliding handle first. Callers defer Rollback; after Commit it is a no-op.
type Tx interface {
	AddDomain(ctx context.Context, d *rdap.Domain) error
	AddEntity(ctx context.Context, e *rdap.Entity) error
	AddNameserver(ctx context.Context, n *rdap.Nameserver) error
	AddAutnum(ctx context.Context, a *rdap.Autnum) error
	AddNetwork(ctx context.Context, n *rdap.Network) error
	AddHelp(ctx context.Context, h *rdap.Help) error
	Commit(ctx context.Context) error
	Rollback() error
}

// ValidateHandle rejects the handles no object may carry into a store.
func ValidateHandle(handle string) error {
	if handle == "" {
		return fmt.Errorf("empty handle")
	}
	return nil
}
