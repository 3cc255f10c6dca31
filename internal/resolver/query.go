package resolver

import (
	"net/netip"
	"strconv"

	"rdapd/internal/rdap"
)

// Query is one resolution request. The boundary parses raw path segments
// into typed keys before a Query is built; Key preserves the spelling as
// queried, which redirects echo back verbatim.
type Query struct {
	Kind rdap.Kind
	Key  string

	Name   string     // domain, nameserver
	Handle string     // entity
	ASN    uint32     // autnum
	Addr   netip.Addr // ip network
	Host   string     // help
}

// DomainQuery looks up a domain by LDH name.
func DomainQuery(name string) Query {
	return Query{Kind: rdap.KindDomain, Key: name, Name: name}
}

// EntityQuery looks up an entity by handle. Handles match exactly as
// stored.
func EntityQuery(handle string) Query {
	return Query{Kind: rdap.KindEntity, Key: handle, Handle: handle}
}

// NameserverQuery looks up a nameserver by LDH name.
func NameserverQuery(name string) Query {
	return Query{Kind: rdap.KindNameserver, Key: name, Name: name}
}

// AutnumQuery looks up the autnum whose range contains asn.
func AutnumQuery(asn uint32) Query {
	return Query{Kind: rdap.KindAutnum, Key: strconv.FormatUint(uint64(asn), 10), ASN: asn}
}

// NetworkQuery looks up the most specific IP network containing addr.
func NetworkQuery(addr netip.Addr) Query {
	return Query{Kind: rdap.KindNetwork, Key: addr.String(), Addr: addr}
}

// HelpQuery fetches the help text for host, falling back to the server
// default when the host has none.
func HelpQuery(host string) Query {
	return Query{Kind: rdap.KindHelp, Key: host, Host: host}
}
