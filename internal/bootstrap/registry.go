// Package bootstrap holds IANA delegation data and the matching rules that
// turn a missed lookup into a redirect toward the authoritative registry.
//
// A Registry is immutable once built; reloads construct a replacement and
// swap it through a Store. Matching follows the registry semantics of RFC
// 9224: longest name suffix for domains, smallest containing span for AS
// numbers, longest containing prefix for addresses, exact uppercase match
// for entity tags. When several entries tie, the first listed wins.
package bootstrap

import (
	"net/netip"
	"strings"
)

// Registry is a compiled set of delegation tables. The zero value matches
// nothing.
type Registry struct {
	publication string

	dns  map[string][]string
	asn  []asnEntry
	v4   []prefixEntry
	v6   []prefixEntry
	tags map[string][]string
}

type asnEntry struct {
	start uint32
	end   uint32
	urls  []string
}

type prefixEntry struct {
	prefix netip.Prefix
	urls   []string
}

// Publication reports the publication timestamp of the newest source file,
// empty for a programmatically built registry.
func (r *Registry) Publication() string {
	return r.publication
}

// DomainURLs finds the delegation for a domain name by its longest
// registered suffix. The returned slice is read-only.
func (r *Registry) DomainURLs(name string) ([]string, bool) {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	if name == "" {
		return nil, false
	}
	labels := strings.Split(name, ".")
	for i := range labels {
		if urls, ok := r.dns[strings.Join(labels[i:], ".")]; ok {
			return urls, true
		}
	}
	return nil, false
}

// AutnumURLs finds the delegation range containing the AS number. Among
// overlapping ranges the smallest span wins.
func (r *Registry) AutnumURLs(asn uint32) ([]string, bool) {
	var best *asnEntry
	for i := range r.asn {
		e := &r.asn[i]
		if asn < e.start || asn > e.end {
			continue
		}
		if best == nil || e.end-e.start < best.end-best.start {
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	return best.urls, true
}

// NetworkURLs finds the delegation block containing the address. The
// longest matching prefix wins.
func (r *Registry) NetworkURLs(addr netip.Addr) ([]string, bool) {
	addr = addr.Unmap()
	entries := r.v6
	if addr.Is4() {
		entries = r.v4
	}
	var best *prefixEntry
	for i := range entries {
		e := &entries[i]
		if !e.prefix.Contains(addr) {
			continue
		}
		if best == nil || e.prefix.Bits() > best.prefix.Bits() {
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	return best.urls, true
}

// EntityTagURLs finds the registrar delegation for a handle tag. Tags are
// registered uppercase.
func (r *Registry) EntityTagURLs(tag string) ([]string, bool) {
	urls, ok := r.tags[strings.ToUpper(tag)]
	return urls, ok
}
