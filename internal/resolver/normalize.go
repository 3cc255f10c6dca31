package resolver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BourgeoisBear/range2cidr"
	"golang.org/x/net/idna"

	"rdapd/internal/rdap"
)

// Normalization turns a stored object into its response form: a deep copy
// with the class name stamped, derived fields filled, the negotiated
// contact encoding applied, and the conformance list recomputed from what
// the response actually carries. Stored objects are shared with the store
// and are never mutated.

func cloneObject[T any](src *T) (*T, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	return out, nil
}

func normalizeDomain(d *rdap.Domain, exts rdap.ExtensionSet) (*rdap.Domain, error) {
	out, err := cloneObject(d)
	if err != nil {
		return nil, err
	}
	out.ObjectClassName = string(rdap.KindDomain)
	if out.UnicodeName == "" {
		out.UnicodeName = unicodeNameFor(out.LDHName)
	}
	normalizeEntities(out.Entities, exts)
	for i := range out.Nameservers {
		ns := &out.Nameservers[i]
		ns.ObjectClassName = string(rdap.KindNameserver)
		ns.Conformance = nil
		if ns.UnicodeName == "" {
			ns.UnicodeName = unicodeNameFor(ns.LDHName)
		}
		normalizeEntities(ns.Entities, exts)
	}
	out.Conformance = rdap.Conformance(out)
	return out, nil
}

func normalizeEntity(e *rdap.Entity, exts rdap.ExtensionSet) (*rdap.Entity, error) {
	out, err := cloneObject(e)
	if err != nil {
		return nil, err
	}
	normalizeEmbedded(out, exts)
	out.Conformance = rdap.Conformance(out)
	return out, nil
}

func normalizeNameserver(n *rdap.Nameserver, exts rdap.ExtensionSet) (*rdap.Nameserver, error) {
	out, err := cloneObject(n)
	if err != nil {
		return nil, err
	}
	out.ObjectClassName = string(rdap.KindNameserver)
	if out.UnicodeName == "" {
		out.UnicodeName = unicodeNameFor(out.LDHName)
	}
	normalizeEntities(out.Entities, exts)
	out.Conformance = rdap.Conformance(out)
	return out, nil
}

func normalizeAutnum(a *rdap.Autnum, exts rdap.ExtensionSet) (*rdap.Autnum, error) {
	out, err := cloneObject(a)
	if err != nil {
		return nil, err
	}
	out.ObjectClassName = string(rdap.KindAutnum)
	normalizeEntities(out.Entities, exts)
	out.Conformance = rdap.Conformance(out)
	return out, nil
}

func normalizeNetwork(n *rdap.Network, exts rdap.ExtensionSet) (*rdap.Network, error) {
	out, err := cloneObject(n)
	if err != nil {
		return nil, err
	}
	out.ObjectClassName = string(rdap.KindNetwork)
	if len(out.CIDRs) == 0 {
		out.CIDRs = deriveCIDRs(out)
	}
	normalizeEntities(out.Entities, exts)
	out.Conformance = rdap.Conformance(out)
	return out, nil
}

func normalizeHelp(h *rdap.Help) (*rdap.Help, error) {
	out, err := cloneObject(h)
	if err != nil {
		return nil, err
	}
	out.Host = h.Host // the host key is not part of the wire form
	out.Conformance = rdap.Conformance(out)
	return out, nil
}

// normalizeEmbedded prepares one entity in place: class name, contact
// encoding, and the same recursively for entities nested under it.
// Conformance stays clear; only the response's topmost object declares it.
func normalizeEmbedded(e *rdap.Entity, exts rdap.ExtensionSet) {
	e.ObjectClassName = string(rdap.KindEntity)
	applyContactEncoding(e, exts)
	normalizeEntities(e.Entities, exts)
	for i := range e.Networks {
		e.Networks[i].ObjectClassName = string(rdap.KindNetwork)
		e.Networks[i].Conformance = nil
	}
	for i := range e.Autnums {
		e.Autnums[i].ObjectClassName = string(rdap.KindAutnum)
		e.Autnums[i].Conformance = nil
	}
}

func normalizeEntities(entities []rdap.Entity, exts rdap.ExtensionSet) {
	for i := range entities {
		entities[i].Conformance = nil
		normalizeEmbedded(&entities[i], exts)
	}
}

// applyContactEncoding substitutes the contact form the caller negotiated:
// a JSContact card when the jscontact extension was requested, converting
// from jCard when no card is stored, jCard otherwise. A stored card is
// never overwritten by conversion, and an entity whose only contact data is
// JSContact serves it regardless of negotiation.
func applyContactEncoding(e *rdap.Entity, exts rdap.ExtensionSet) {
	if exts.Has(rdap.ExtJSContact) {
		if e.JSContact == nil && len(e.VCardArray) > 0 {
			e.JSContact = rdap.JSContactFromVCard(e.VCardArray)
		}
		if e.JSContact != nil {
			e.VCardArray = nil
		}
		return
	}
	if len(e.VCardArray) > 0 {
		e.JSContact = nil
	}
}

// unicodeNameFor derives the U-label form of an LDH name, or "" when the
// name is all ASCII or does not decode.
func unicodeNameFor(ldh string) string {
	if !strings.Contains(ldh, "xn--") {
		return ""
	}
	u, err := idna.ToUnicode(ldh)
	if err != nil || u == ldh {
		return ""
	}
	return u
}

// deriveCIDRs computes the minimal prefix cover of the network's range.
// A range that does not parse yields no blocks; the stored object is still
// served.
func deriveCIDRs(n *rdap.Network) []rdap.CIDR {
	start, end, err := n.AddrRange()
	if err != nil {
		return nil
	}
	prefixes, err := range2cidr.Deaggregate(start, end)
	if err != nil {
		return nil
	}
	out := make([]rdap.CIDR, 0, len(prefixes))
	for _, p := range prefixes {
		c := rdap.CIDR{Length: p.Bits()}
		if p.Addr().Is4() {
			c.V4Prefix = p.Addr().String()
		} else {
			c.V6Prefix = p.Addr().String()
		}
		out = append(out, c)
	}
	return out
}
