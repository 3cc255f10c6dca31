package rdap

import (
	"sort"
	"strings"
)

// RDAP protocol extension identifiers this server knows how to serve.
const (
	ExtLevel0    = "rdap_level_0"
	ExtCidr0     = "cidr0"
	ExtJSContact = "jscontact"
)

// ExtensionSet is the extension identifiers a caller negotiated for one
// query. The zero value negotiates nothing beyond the base protocol.
type ExtensionSet map[string]struct{}

// ParseExtensions builds an ExtensionSet from a comma-separated identifier
// list, trimming whitespace and dropping empties and duplicates.
func ParseExtensions(raw string) ExtensionSet {
	if raw == "" {
		return nil
	}
	set := make(ExtensionSet)
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// Has reports whether the identifier was negotiated.
func (s ExtensionSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Canonical returns the identifiers sorted, for use in cache keys and logs.
func (s ExtensionSet) Canonical() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Conformance derives the rdapConformance list a response must declare from
// the content it actually carries: the base identifier always, cidr0 when any
// network carries a prefix cover, jscontact when any entity serves a JSContact
// card. The declared list on stored objects is recomputed, never trusted.
func Conformance(o Object) []string {
	tags := []string{ExtLevel0}
	switch obj := o.(type) {
	case *Domain:
		tags = appendEntityTags(tags, obj.Entities)
	case *Entity:
		tags = appendEntityTags(tags, []Entity{*obj})
	case *Nameserver:
		tags = appendEntityTags(tags, obj.Entities)
	case *Autnum:
		tags = appendEntityTags(tags, obj.Entities)
	case *Network:
		if len(obj.CIDRs) > 0 {
			tags = append(tags, ExtCidr0)
		}
		tags = appendEntityTags(tags, obj.Entities)
	}
	return dedupe(tags)
}

func appendEntityTags(tags []string, entities []Entity) []string {
	for i := range entities {
		if entities[i].JSContact != nil {
			tags = append(tags, ExtJSContact)
		}
		tags = appendEntityTags(tags, entities[i].Entities)
	}
	return tags
}

// dedupe removes duplicates and empty strings, preserving first-seen order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
