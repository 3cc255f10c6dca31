package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"rdapd/internal/rdap"
	"rdapd/internal/storage"
)

// Begin opens a database transaction. The ledger's deferred constraint means
// two transactions can both claim a handle without blocking each other; the
// loser finds out at Commit.
func (b *Backend) Begin(ctx context.Context) (storage.Tx, error) {
	dbtx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &tx{tx: dbtx}, nil
}

type tx struct {
	tx   *sql.Tx
	done bool
}

func (t *tx) AddDomain(ctx context.Context, d *rdap.Domain) error {
	if t.done {
		return storage.ErrTxDone
	}
	if d.LDHName == "" {
		return fmt.Errorf("domain: empty ldhName")
	}
	if err := t.claimHandle(ctx, d.Handle, "domain"); err != nil {
		return fmt.Errorf("domain %q: %w", d.LDHName, err)
	}
	stored := *d
	stored.LDHName = rdap.NormalizeLDH(d.LDHName)
	doc, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encode domain: %w", err)
	}
	query := `
		INSERT INTO domains (handle, ldh_name, document)
		VALUES ($1, $2, $3)
	`
	if _, err := t.tx.ExecContext(ctx, query, stored.Handle, stored.LDHName, string(doc)); err != nil {
		return fmt.Errorf("add domain: %w", err)
	}
	return nil
}

func (t *tx) AddEntity(ctx context.Context, e *rdap.Entity) error {
	if t.done {
		return storage.ErrTxDone
	}
	if err := t.claimHandle(ctx, e.Handle, "entity"); err != nil {
		return fmt.Errorf("entity: %w", err)
	}
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entity: %w", err)
	}
	query := `
		INSERT INTO entities (handle, document)
		VALUES ($1, $2)
	`
	if _, err := t.tx.ExecContext(ctx, query, e.Handle, string(doc)); err != nil {
		return fmt.Errorf("add entity: %w", err)
	}
	return nil
}

func (t *tx) AddNameserver(ctx context.Context, n *rdap.Nameserver) error {
	if t.done {
		return storage.ErrTxDone
	}
	if n.LDHName == "" {
		return fmt.Errorf("nameserver: empty ldhName")
	}
	if err := t.claimHandle(ctx, n.Handle, "nameserver"); err != nil {
		return fmt.Errorf("nameserver %q: %w", n.LDHName, err)
	}
	stored := *n
	stored.LDHName = rdap.NormalizeLDH(n.LDHName)
	doc, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encode nameserver: %w", err)
	}
	query := `
		INSERT INTO nameservers (handle, ldh_name, document)
		VALUES ($1, $2, $3)
	`
	if _, err := t.tx.ExecContext(ctx, query, stored.Handle, stored.LDHName, string(doc)); err != nil {
		return fmt.Errorf("add nameserver: %w", err)
	}
	return nil
}

func (t *tx) AddAutnum(ctx context.Context, a *rdap.Autnum) error {
	if t.done {
		return storage.ErrTxDone
	}
	if a.EndAutnum < a.StartAutnum {
		return fmt.Errorf("autnum: inverted range %d-%d", a.StartAutnum, a.EndAutnum)
	}
	if err := t.claimHandle(ctx, a.Handle, "autnum"); err != nil {
		return fmt.Errorf("autnum %d: %w", a.StartAutnum, err)
	}
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode autnum: %w", err)
	}
	query := `
		INSERT INTO autnums (handle, start_autnum, end_autnum, document)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := t.tx.ExecContext(ctx, query, a.Handle, int64(a.StartAutnum), int64(a.EndAutnum), string(doc)); err != nil {
		return fmt.Errorf("add autnum: %w", err)
	}
	return nil
}

func (t *tx) AddNetwork(ctx context.Context, n *rdap.Network) error {
	if t.done {
		return storage.ErrTxDone
	}
	start, end, err := n.AddrRange()
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	if err := t.claimHandle(ctx, n.Handle, "ip network"); err != nil {
		return fmt.Errorf("network %s: %w", n.StartAddress, err)
	}
	doc, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode network: %w", err)
	}
	start, end = start.Unmap(), end.Unmap()
	family := 6
	if start.Is4() {
		family = 4
	}
	query := `
		INSERT INTO networks (handle, family, start_addr, end_addr, document)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := t.tx.ExecContext(ctx, query, n.Handle, family, start.AsSlice(), end.AsSlice(), string(doc)); err != nil {
		return fmt.Errorf("add network: %w", err)
	}
	return nil
}

func (t *tx) AddHelp(ctx context.Context, h *rdap.Help) error {
	if t.done {
		return storage.ErrTxDone
	}
	doc, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode help: %w", err)
	}
	query := `
		INSERT INTO helps (host, document)
		VALUES ($1, $2)
		ON CONFLICT (host) DO UPDATE SET
			document = EXCLUDED.document
	`
	if _, err := t.tx.ExecContext(ctx, query, strings.ToLower(h.Host), string(doc)); err != nil {
		return fmt.Errorf("add help: %w", err)
	}
	return nil
}

// claimHandle asserts the handle is free in this transaction's view and
// records the claim in the ledger. The probe sees committed rows plus this
// transaction's own claims; claims racing in other open transactions are
// invisible here and surface as a conflict at Commit.
func (t *tx) claimHandle(ctx context.Context, handle, kind string) error {
	if err := storage.ValidateHandle(handle); err != nil {
		return err
	}
	var exists bool
	probe := `SELECT EXISTS (SELECT 1 FROM object_handles WHERE handle = $1)`
	if err := t.tx.QueryRowContext(ctx, probe, handle).Scan(&exists); err != nil {
		return fmt.Errorf("probe handle: %w", err)
	}
	if exists {
		return fmt.Errorf("%q: %w", handle, storage.ErrDuplicateHandle)
	}
	if _, err := t.tx.ExecContext(ctx, `INSERT INTO object_handles (handle, kind) VALUES ($1, $2)`, handle, kind); err != nil {
		return fmt.Errorf("claim handle: %w", err)
	}
	return nil
}

// Commit publishes the staged writes. The deferred uniqueness checks run
// here; a collision with a transaction that committed first comes back as
// ErrConflict with nothing published.
func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return storage.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", storage.ErrConflict, err)
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards the transaction. Safe to call repeatedly and after
// Commit, so callers can defer it unconditionally.
func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
