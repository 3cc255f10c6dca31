// Package memory implements the storage backend as immutable in-process
// index generations. Readers load the current generation through one atomic
// pointer and never take a lock; committing writers serialize among
// themselves and publish a fresh generation built copy-on-write from the
// last one. Suitable for embedded, test, and reference deployments.
package memory

import (
	"context"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"rdapd/internal/rdap"
	"rdapd/internal/storage"
)

// Backend holds the current index generation. The zero value is not usable;
// construct with New.
type Backend struct {
	maxSearch int

	// writeMu serializes committing writers. Readers never touch it.
	writeMu sync.Mutex
	current atomic.Pointer[generation]
}

// Option configures the Backend.
type Option func(*Backend)

// WithMaxSearch caps search result counts. Defaults to
// storage.DefaultMaxSearch.
func WithMaxSearch(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.maxSearch = n
		}
	}
}

// New creates an empty in-memory backend.
func New(opts ...Option) *Backend {
	b := &Backend{maxSearch: storage.DefaultMaxSearch}
	for _, opt := range opts {
		opt(b)
	}
	b.current.Store(newGeneration())
	return b
}

// Init is a no-op beyond confirming the backend was constructed; the store
// lives in process memory and is always reachable.
func (b *Backend) Init(_ context.Context) error { return nil }

// Close discards nothing; generations are garbage collected once unreferenced.
func (b *Backend) Close() error { return nil }

// Begin snapshots the current generation. Readers of the snapshot see no
// writes committed after this point, and staged writes stay private to the
// returned transaction until Commit.
func (b *Backend) Begin(_ context.Context) (storage.Tx, error) {
	return &tx{backend: b, base: b.current.Load(), handles: make(map[string]struct{})}, nil
}

func (b *Backend) GetDomainByLDH(_ context.Context, name string) (*rdap.Domain, error) {
	gen := b.current.Load()
	if e, ok := findByName(gen.domains, rdap.NormalizeLDH(name)); ok {
		return e.obj.(*rdap.Domain), nil
	}
	return nil, storage.ErrNotFound
}

func (b *Backend) GetNameserverByLDH(_ context.Context, name string) (*rdap.Nameserver, error) {
	gen := b.current.Load()
	if e, ok := findByName(gen.nameservers, rdap.NormalizeLDH(name)); ok {
		return e.obj.(*rdap.Nameserver), nil
	}
	return nil, storage.ErrNotFound
}

func (b *Backend) GetEntityByHandle(_ context.Context, handle string) (*rdap.Entity, error) {
	gen := b.current.Load()
	if obj, ok := gen.byHandle[handle]; ok {
		if e, ok := obj.(*rdap.Entity); ok {
			return e, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (b *Backend) GetAutnumByNumber(_ context.Context, asn uint32) (*rdap.Autnum, error) {
	gen := b.current.Load()
	var best *autnumEntry
	for i := range gen.autnums {
		e := &gen.autnums[i]
		if e.start > asn {
			break
		}
		if e.end < asn {
			continue
		}
		if best == nil || e.spanLess(best) {
			best = e
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return best.obj, nil
}

func (b *Backend) GetNetworkByAddr(_ context.Context, addr netip.Addr) (*rdap.Network, error) {
	gen := b.current.Load()
	addr = addr.Unmap()
	ranges := gen.networks6
	if addr.Is4() {
		ranges = gen.networks4
	}
	var best *rangeEntry
	for i := range ranges {
		e := &ranges[i]
		if e.start.Compare(addr) > 0 {
			break
		}
		if !storage.Covers(e.start, e.end, addr) {
			continue
		}
		if best == nil || e.spanLess(best) {
			best = e
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return best.obj, nil
}

func (b *Backend) GetHelp(_ context.Context, host string) (*rdap.Help, error) {
	gen := b.current.Load()
	if h, ok := gen.helps[strings.ToLower(host)]; ok {
		return h, nil
	}
	if h, ok := gen.helps[""]; ok {
		return h, nil
	}
	return nil, storage.ErrNotFound
}

func (b *Backend) SearchDomainsByName(_ context.Context, pattern string) ([]*rdap.Domain, error) {
	gen := b.current.Load()
	match := newMatcher(pattern)
	out := make([]*rdap.Domain, 0)
	for i := range gen.domains {
		if len(out) >= b.maxSearch {
			break
		}
		if match(gen.domains[i].name) {
			out = append(out, gen.domains[i].obj.(*rdap.Domain))
		}
	}
	return out, nil
}

func (b *Backend) SearchNameserversByName(_ context.Context, pattern string) ([]*rdap.Nameserver, error) {
	gen := b.current.Load()
	match := newMatcher(pattern)
	out := make([]*rdap.Nameserver, 0)
	for i := range gen.nameservers {
		if len(out) >= b.maxSearch {
			break
		}
		if match(gen.nameservers[i].name) {
			out = append(out, gen.nameservers[i].obj.(*rdap.Nameserver))
		}
	}
	return out, nil
}

// generation is one complete, immutable view of the store. All slices are
// kept sorted; lookups binary-search or scan in order, so search results come
// out ordered by name then handle for free.
type generation struct {
	version     uint64
	byHandle    map[string]rdap.Object
	domains     []nameEntry
	nameservers []nameEntry
	autnums     []autnumEntry
	networks4   []rangeEntry
	networks6   []rangeEntry
	helps       map[string]*rdap.Help
}

func newGeneration() *generation {
	return &generation{
		byHandle: make(map[string]rdap.Object),
		helps:    make(map[string]*rdap.Help),
	}
}

// clone copies the index containers. Indexed objects are shared; they are
// never mutated after staging.
func (g *generation) clone() *generation {
	next := &generation{
		version:     g.version + 1,
		byHandle:    make(map[string]rdap.Object, len(g.byHandle)+8),
		domains:     append([]nameEntry(nil), g.domains...),
		nameservers: append([]nameEntry(nil), g.nameservers...),
		autnums:     append([]autnumEntry(nil), g.autnums...),
		networks4:   append([]rangeEntry(nil), g.networks4...),
		networks6:   append([]rangeEntry(nil), g.networks6...),
		helps:       make(map[string]*rdap.Help, len(g.helps)+1),
	}
	for h, obj := range g.byHandle {
		next.byHandle[h] = obj
	}
	for host, help := range g.helps {
		next.helps[host] = help
	}
	return next
}

type nameEntry struct {
	name   string
	handle string
	obj    rdap.Object
}

type autnumEntry struct {
	start  uint32
	end    uint32
	handle string
	obj    *rdap.Autnum
}

func (e *autnumEntry) spanLess(o *autnumEntry) bool {
	es, os := e.end-e.start, o.end-o.start
	if es != os {
		return es < os
	}
	return e.handle < o.handle
}

type rangeEntry struct {
	start  netip.Addr
	end    netip.Addr
	handle string
	obj    *rdap.Network
}

func (e *rangeEntry) spanLess(o *rangeEntry) bool {
	if storage.SpanLess(e.start, e.end, o.start, o.end) {
		return true
	}
	if storage.SpanLess(o.start, o.end, e.start, e.end) {
		return false
	}
	return e.handle < o.handle
}

// findByName returns the first entry carrying the name. Entries sort by
// (name, handle), so duplicate names resolve to the lowest handle.
func findByName(entries []nameEntry, name string) (nameEntry, bool) {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].name >= name })
	if i < len(entries) && entries[i].name == name {
		return entries[i], true
	}
	return nameEntry{}, false
}

func insertNameEntry(entries []nameEntry, e nameEntry) []nameEntry {
	i := sort.Search(len(entries), func(i int) bool {
		if entries[i].name != e.name {
			return entries[i].name > e.name
		}
		return entries[i].handle > e.handle
	})
	entries = append(entries, nameEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

func insertAutnumEntry(entries []autnumEntry, e autnumEntry) []autnumEntry {
	i := sort.Search(len(entries), func(i int) bool {
		if entries[i].start != e.start {
			return entries[i].start > e.start
		}
		return entries[i].end > e.end
	})
	entries = append(entries, autnumEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

func insertRangeEntry(entries []rangeEntry, e rangeEntry) []rangeEntry {
	i := sort.Search(len(entries), func(i int) bool {
		if c := entries[i].start.Compare(e.start); c != 0 {
			return c > 0
		}
		return entries[i].end.Compare(e.end) > 0
	})
	entries = append(entries, rangeEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

// newMatcher compiles a case-insensitive name pattern where * matches any
// run of characters.
func newMatcher(pattern string) func(string) bool {
	pattern = strings.ToLower(pattern)
	if !strings.Contains(pattern, "*") {
		return func(name string) bool { return name == pattern }
	}
	parts := strings.Split(pattern, "*")
	return func(name string) bool {
		if !strings.HasPrefix(name, parts[0]) {
			return false
		}
		name = name[len(parts[0]):]
		for _, part := range parts[1 : len(parts)-1] {
			idx := strings.Index(name, part)
			if idx < 0 {
				return false
			}
			name = name[idx+len(part):]
		}
		return strings.HasSuffix(name, parts[len(parts)-1])
	}
}
