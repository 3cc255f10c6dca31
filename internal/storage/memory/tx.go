package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"

	"rdapd/internal/rdap"
	"rdapd/internal/storage"
)

// tx stages inserts against the generation snapshotted at Begin. Objects are
// deep-copied on Add so later caller mutation cannot reach a published
// generation, and LDH names are normalized before they touch an index.
type tx struct {
	backend *Backend
	base    *generation
	handles map[string]struct{}

	domains     []*rdap.Domain
	entities    []*rdap.Entity
	nameservers []*rdap.Nameserver
	autnums     []*rdap.Autnum
	networks    []stagedNetwork
	helps       map[string]*rdap.Help

	done bool
}

type stagedNetwork struct {
	obj   *rdap.Network
	start netip.Addr
	end   netip.Addr
}

func (t *tx) AddDomain(_ context.Context, d *rdap.Domain) error {
	if t.done {
		return storage.ErrTxDone
	}
	if d.LDHName == "" {
		return fmt.Errorf("domain: empty ldhName")
	}
	if err := t.claimHandle(d.Handle); err != nil {
		return fmt.Errorf("domain %q: %w", d.LDHName, err)
	}
	copied, err := cloneObject(d)
	if err != nil {
		return fmt.Errorf("stage domain: %w", err)
	}
	copied.LDHName = rdap.NormalizeLDH(copied.LDHName)
	t.domains = append(t.domains, copied)
	return nil
}

func (t *tx) AddEntity(_ context.Context, e *rdap.Entity) error {
	if t.done {
		return storage.ErrTxDone
	}
	if err := t.claimHandle(e.Handle); err != nil {
		return fmt.Errorf("entity: %w", err)
	}
	copied, err := cloneObject(e)
	if err != nil {
		return fmt.Errorf("stage entity: %w", err)
	}
	t.entities = append(t.entities, copied)
	return nil
}

func (t *tx) AddNameserver(_ context.Context, n *rdap.Nameserver) error {
	if t.done {
		return storage.ErrTxDone
	}
	if n.LDHName == "" {
		return fmt.Errorf("nameserver: empty ldhName")
	}
	if err := t.claimHandle(n.Handle); err != nil {
		return fmt.Errorf("nameserver %q: %w", n.LDHName, err)
	}
	copied, err := cloneObject(n)
	if err != nil {
		return fmt.Errorf("stage nameserver: %w", err)
	}
	copied.LDHName = rdap.NormalizeLDH(copied.LDHName)
	t.nameservers = append(t.nameservers, copied)
	return nil
}

func (t *tx) AddAutnum(_ context.Context, a *rdap.Autnum) error {
	if t.done {
		return storage.ErrTxDone
	}
	if a.EndAutnum < a.StartAutnum {
		return fmt.Errorf("autnum: inverted range %d-%d", a.StartAutnum, a.EndAutnum)
	}
	if err := t.claimHandle(a.Handle); err != nil {
		return fmt.Errorf("autnum %d: %w", a.StartAutnum, err)
	}
	copied, err := cloneObject(a)
	if err != nil {
		return fmt.Errorf("stage autnum: %w", err)
	}
	t.autnums = append(t.autnums, copied)
	return nil
}

func (t *tx) AddNetwork(_ context.Context, n *rdap.Network) error {
	if t.done {
		return storage.ErrTxDone
	}
	start, end, err := n.AddrRange()
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	if err := t.claimHandle(n.Handle); err != nil {
		return fmt.Errorf("network %s: %w", n.StartAddress, err)
	}
	copied, err := cloneObject(n)
	if err != nil {
		return fmt.Errorf("stage network: %w", err)
	}
	t.networks = append(t.networks, stagedNetwork{obj: copied, start: start.Unmap(), end: end.Unmap()})
	return nil
}

func (t *tx) AddHelp(_ context.Context, h *rdap.Help) error {
	if t.done {
		return storage.ErrTxDone
	}
	copied, err := cloneObject(h)
	if err != nil {
		return fmt.Errorf("stage help: %w", err)
	}
	if t.helps == nil {
		t.helps = make(map[string]*rdap.Help)
	}
	copied.Host = strings.ToLower(h.Host)
	t.helps[copied.Host] = copied
	return nil
}

// claimHandle enforces handle uniqueness against the transaction's visible
// snapshot: the generation seen at Begin plus this transaction's own staged
// writes.
func (t *tx) claimHandle(handle string) error {
	if err := storage.ValidateHandle(handle); err != nil {
		return err
	}
	if _, ok := t.base.byHandle[handle]; ok {
		return fmt.Errorf("%q: %w", handle, storage.ErrDuplicateHandle)
	}
	if _, ok := t.handles[handle]; ok {
		return fmt.Errorf("%q: %w", handle, storage.ErrDuplicateHandle)
	}
	t.handles[handle] = struct{}{}
	return nil
}

// Commit publishes all staged writes as one new generation. A handle
// committed by a racing transaction since Begin fails the whole commit with
// ErrConflict; the store is left untouched.
func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return storage.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.backend.writeMu.Lock()
	defer t.backend.writeMu.Unlock()

	cur := t.backend.current.Load()
	for handle := range t.handles {
		if _, ok := cur.byHandle[handle]; ok {
			return fmt.Errorf("commit handle %q: %w", handle, storage.ErrConflict)
		}
	}

	next := cur.clone()
	for _, d := range t.domains {
		next.byHandle[d.Handle] = d
		next.domains = insertNameEntry(next.domains, nameEntry{name: d.LDHName, handle: d.Handle, obj: d})
	}
	for _, e := range t.entities {
		next.byHandle[e.Handle] = e
	}
	for _, n := range t.nameservers {
		next.byHandle[n.Handle] = n
		next.nameservers = insertNameEntry(next.nameservers, nameEntry{name: n.LDHName, handle: n.Handle, obj: n})
	}
	for _, a := range t.autnums {
		next.byHandle[a.Handle] = a
		next.autnums = insertAutnumEntry(next.autnums, autnumEntry{start: a.StartAutnum, end: a.EndAutnum, handle: a.Handle, obj: a})
	}
	for _, n := range t.networks {
		next.byHandle[n.obj.Handle] = n.obj
		entry := rangeEntry{start: n.start, end: n.end, handle: n.obj.Handle, obj: n.obj}
		if n.start.Is4() {
			next.networks4 = insertRangeEntry(next.networks4, entry)
		} else {
			next.networks6 = insertRangeEntry(next.networks6, entry)
		}
	}
	for host, h := range t.helps {
		next.helps[host] = h
	}

	t.backend.current.Store(next)
	t.done = true
	return nil
}

// Rollback discards all staged writes. Safe to call repeatedly and after
// Commit, so callers can defer it unconditionally.
func (t *tx) Rollback() error {
	t.done = true
	return nil
}

// cloneObject deep-copies through the wire encoding, which doubles as a
// guarantee that everything a transaction accepts can be served back out.
func cloneObject[T any](src *T) (*T, error) {
	data, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}
