// Package postgres implements the storage contract on PostgreSQL. Objects
// travel as JSONB documents with their lookup keys extracted into indexed
// columns, and cross-class handle uniqueness is enforced by a ledger table
// whose unique constraint is deferred to commit time.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"rdapd/internal/rdap"
	"rdapd/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Backend serves lookups from PostgreSQL. It takes ownership of the pool it
// is handed; Close closes it.
type Backend struct {
	db        *sql.DB
	maxSearch int
}

// Option configures a Backend.
type Option func(*Backend)

// WithMaxSearch caps search result sets. Values below one keep the default.
func WithMaxSearch(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.maxSearch = n
		}
	}
}

// New constructs a PostgreSQL-backed store over an open pool.
func New(db *sql.DB, opts ...Option) *Backend {
	b := &Backend{
		db:        db,
		maxSearch: storage.DefaultMaxSearch,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Init verifies the database is reachable and applies the schema. Safe to
// call repeatedly.
func (b *Backend) Init(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	if _, err := b.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) GetDomainByLDH(ctx context.Context, name string) (*rdap.Domain, error) {
	query := `
		SELECT document
		FROM domains
		WHERE ldh_name = $1
		ORDER BY handle
		LIMIT 1
	`
	var d rdap.Domain
	if err := b.getDocument(ctx, "domain", &d, query, rdap.NormalizeLDH(name)); err != nil {
		return nil, err
	}
	return &d, nil
}

func (b *Backend) GetEntityByHandle(ctx context.Context, handle string) (*rdap.Entity, error) {
	query := `
		SELECT document
		FROM entities
		WHERE handle = $1
	`
	var e rdap.Entity
	if err := b.getDocument(ctx, "entity", &e, query, handle); err != nil {
		return nil, err
	}
	return &e, nil
}

func (b *Backend) GetNameserverByLDH(ctx context.Context, name string) (*rdap.Nameserver, error) {
	query := `
		SELECT document
		FROM nameservers
		WHERE ldh_name = $1
		ORDER BY handle
		LIMIT 1
	`
	var n rdap.Nameserver
	if err := b.getDocument(ctx, "nameserver", &n, query, rdap.NormalizeLDH(name)); err != nil {
		return nil, err
	}
	return &n, nil
}

func (b *Backend) GetAutnumByNumber(ctx context.Context, asn uint32) (*rdap.Autnum, error) {
	query := `
		SELECT document
		FROM autnums
		WHERE start_autnum <= $1 AND end_autnum >= $1
		ORDER BY end_autnum - start_autnum, handle
		LIMIT 1
	`
	var a rdap.Autnum
	if err := b.getDocument(ctx, "autnum", &a, query, int64(asn)); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetNetworkByAddr fetches every range containing the address and picks the
// smallest span. BYTEA comparison gives containment directly because
// addresses are stored big-endian with the two families in separate index
// space; span width is not expressible over BYTEA, so the tie-break runs
// here.
func (b *Backend) GetNetworkByAddr(ctx context.Context, addr netip.Addr) (*rdap.Network, error) {
	addr = addr.Unmap()
	family := 6
	if addr.Is4() {
		family = 4
	}
	query := `
		SELECT document
		FROM networks
		WHERE family = $1 AND start_addr <= $2 AND end_addr >= $2
	`
	rows, err := b.db.QueryContext(ctx, query, family, addr.AsSlice())
	if err != nil {
		return nil, fmt.Errorf("get network: %w", err)
	}
	defer rows.Close()

	var best *rdap.Network
	var bestStart, bestEnd netip.Addr
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan network: %w", err)
		}
		var n rdap.Network
		if err := json.Unmarshal(doc, &n); err != nil {
			return nil, fmt.Errorf("decode network: %w", err)
		}
		start, end, err := n.AddrRange()
		if err != nil {
			return nil, fmt.Errorf("network %q: %w", n.Handle, err)
		}
		switch {
		case best == nil,
			storage.SpanLess(start, end, bestStart, bestEnd),
			!storage.SpanLess(bestStart, bestEnd, start, end) && n.Handle < best.Handle:
			best, bestStart, bestEnd = &n, start, end
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate networks: %w", err)
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return best, nil
}

// GetHelp prefers the host-specific row; the default (empty host) sorts
// last under DESC and so only wins when nothing else matches.
func (b *Backend) GetHelp(ctx context.Context, host string) (*rdap.Help, error) {
	query := `
		SELECT host, document
		FROM helps
		WHERE host IN (lower($1), '')
		ORDER BY host DESC
		LIMIT 1
	`
	var hostRow string
	var doc []byte
	err := b.db.QueryRowContext(ctx, query, host).Scan(&hostRow, &doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get help: %w", err)
	}
	var h rdap.Help
	if err := json.Unmarshal(doc, &h); err != nil {
		return nil, fmt.Errorf("decode help: %w", err)
	}
	h.Host = hostRow
	return &h, nil
}

func (b *Backend) SearchDomainsByName(ctx context.Context, pattern string) ([]*rdap.Domain, error) {
	query := `
		SELECT document
		FROM domains
		WHERE ldh_name LIKE $1
		ORDER BY ldh_name, handle
		LIMIT $2
	`
	rows, err := b.db.QueryContext(ctx, query, likePattern(pattern), b.maxSearch)
	if err != nil {
		return nil, fmt.Errorf("search domains: %w", err)
	}
	defer rows.Close()

	var out []*rdap.Domain
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		var d rdap.Domain
		if err := json.Unmarshal(doc, &d); err != nil {
			return nil, fmt.Errorf("decode domain: %w", err)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return out, nil
}

func (b *Backend) SearchNameserversByName(ctx context.Context, pattern string) ([]*rdap.Nameserver, error) {
	query := `
		SELECT document
		FROM nameservers
		WHERE ldh_name LIKE $1
		ORDER BY ldh_name, handle
		LIMIT $2
	`
	rows, err := b.db.QueryContext(ctx, query, likePattern(pattern), b.maxSearch)
	if err != nil {
		return nil, fmt.Errorf("search nameservers: %w", err)
	}
	defer rows.Close()

	var out []*rdap.Nameserver
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan nameserver: %w", err)
		}
		var n rdap.Nameserver
		if err := json.Unmarshal(doc, &n); err != nil {
			return nil, fmt.Errorf("decode nameserver: %w", err)
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nameservers: %w", err)
	}
	return out, nil
}

// getDocument runs a single-document query and decodes the row into dst.
// No row at all is the not-found fact, never an error.
func (b *Backend) getDocument(ctx context.Context, what string, dst any, query string, args ...any) error {
	var doc []byte
	if err := b.db.QueryRowContext(ctx, query, args...).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("get %s: %w", what, err)
	}
	if err := json.Unmarshal(doc, dst); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}

// likePattern rewrites a *-wildcard pattern as a LIKE pattern. Stored names
// are lowercase, so lowering the pattern makes the match case-insensitive.
func likePattern(pattern string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(pattern) {
		switch r {
		case '%', '_', '\\':
			sb.WriteRune('\\')
			sb.WriteRune(r)
		case '*':
			sb.WriteRune('%')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
