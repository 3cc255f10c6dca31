// Package rdap holds the typed model for RDAP response objects as defined by
// RFC 7483, plus the helpers the rest of the server needs to key, decode, and
// tag them. Objects are plain data; lookup and redirect logic lives in the
// resolver package.
package rdap

import (
	"fmt"
	"net/netip"
	"strings"
)

// Kind discriminates the response variants. Values for the five registry
// object classes match the wire objectClassName; help, error, and redirect
// are response-only pseudo classes.
type Kind string

const (
	KindDomain     Kind = "domain"
	KindEntity     Kind = "entity"
	KindNameserver Kind = "nameserver"
	KindAutnum     Kind = "autnum"
	KindNetwork    Kind = "ip network"
	KindHelp       Kind = "help"
	KindError      Kind = "error"
	KindRedirect   Kind = "redirect"
)

// Object is any RDAP response payload. Concrete types are *Domain, *Entity,
// *Nameserver, *Autnum, *Network, *Help, *Error, and *Redirect.
type Object interface {
	Kind() Kind
}

// Link signifies a link to another resource on the Internet.
// https://tools.ietf.org/html/rfc7483#section-4.2
type Link struct {
	Value    string   `json:"value,omitempty"`
	Rel      string   `json:"rel,omitempty"`
	Href     string   `json:"href"`
	HrefLang []string `json:"hreflang,omitempty"`
	Title    string   `json:"title,omitempty"`
	Media    string   `json:"media,omitempty"`
	Type     string   `json:"type,omitempty"`
}

// Notice contains information about the entire response.
// https://tools.ietf.org/html/rfc7483#section-4.3
type Notice struct {
	Title       string   `json:"title,omitempty"`
	Type        string   `json:"type,omitempty"`
	Description []string `json:"description"`
	Links       []Link   `json:"links,omitempty"`
}

// Remark contains information about the containing object.
// https://tools.ietf.org/html/rfc7483#section-4.3
type Remark struct {
	Title       string   `json:"title,omitempty"`
	Type        string   `json:"type,omitempty"`
	Description []string `json:"description"`
	Links       []Link   `json:"links,omitempty"`
}

// Event records something that has occurred or may occur for an object.
// Dates stay in their RFC 3339 wire form so stored objects round-trip
// byte-for-byte.
// https://tools.ietf.org/html/rfc7483#section-4.5
type Event struct {
	Action string `json:"eventAction"`
	Actor  string `json:"eventActor,omitempty"`
	Date   string `json:"eventDate"`
	Links  []Link `json:"links,omitempty"`
}

// PublicID maps a public identifier to an object class.
// https://tools.ietf.org/html/rfc7483#section-4.8
type PublicID struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// Common is the envelope shared by every non-redirect variant: class name,
// handle, notices, remarks, events, status, related entities, and the
// optional port-43 whois server. Conformance is only populated on the
// topmost object of a response.
type Common struct {
	Conformance     []string `json:"rdapConformance,omitempty"`
	ObjectClassName string   `json:"objectClassName,omitempty"`
	Handle          string   `json:"handle,omitempty"`
	Status          []string `json:"status,omitempty"`
	Notices         []Notice `json:"notices,omitempty"`
	Remarks         []Remark `json:"remarks,omitempty"`
	Events          []Event  `json:"events,omitempty"`
	Links           []Link   `json:"links,omitempty"`
	Entities        []Entity `json:"entities,omitempty"`
	Port43          string   `json:"port43,omitempty"`
}

// Domain is the domain object class.
// https://tools.ietf.org/html/rfc7483#section-5.3
type Domain struct {
	Common
	LDHName     string       `json:"ldhName,omitempty"`
	UnicodeName string       `json:"unicodeName,omitempty"`
	Nameservers []Nameserver `json:"nameservers,omitempty"`
	SecureDNS   *SecureDNS   `json:"secureDNS,omitempty"`
	PublicIDs   []PublicID   `json:"publicIds,omitempty"`
}

func (*Domain) Kind() Kind { return KindDomain }

// SecureDNS carries DNSSEC information for a domain.
type SecureDNS struct {
	ZoneSigned       *bool      `json:"zoneSigned,omitempty"`
	DelegationSigned *bool      `json:"delegationSigned,omitempty"`
	MaxSigLife       int        `json:"maxSigLife,omitempty"`
	DSData           []DSDatum  `json:"dsData,omitempty"`
	KeyData          []KeyDatum `json:"keyData,omitempty"`
}

// DSDatum is one DS record of a signed delegation.
type DSDatum struct {
	KeyTag     int     `json:"keyTag"`
	Algorithm  int     `json:"algorithm"`
	Digest     string  `json:"digest"`
	DigestType int     `json:"digestType"`
	Events     []Event `json:"events,omitempty"`
}

// KeyDatum is one DNSKEY record of a signed zone.
type KeyDatum struct {
	Flags     int     `json:"flags"`
	Protocol  int     `json:"protocol"`
	PublicKey string  `json:"publicKey"`
	Algorithm int     `json:"algorithm"`
	Events    []Event `json:"events,omitempty"`
}

// Entity is the entity object class. Contact data may be carried as a jCard
// array, a JSContact card, or both; response normalization picks the encoding
// the caller negotiated. ForwardURLs is only set on forwarding stubs, the
// locally stored records that carry onward redirect targets for a registrar
// tag.
// https://tools.ietf.org/html/rfc7483#section-5.1
type Entity struct {
	Common
	Roles        []string       `json:"roles,omitempty"`
	VCardArray   VCard          `json:"vcardArray,omitempty"`
	JSContact    *JSContactCard `json:"jscontact_card,omitempty"`
	PublicIDs    []PublicID     `json:"publicIds,omitempty"`
	AsEventActor []Event        `json:"asEventActor,omitempty"`
	Networks     []Network      `json:"networks,omitempty"`
	Autnums      []Autnum       `json:"autnums,omitempty"`
	ForwardURLs  []string       `json:"redirectUrls,omitempty"`
}

func (*Entity) Kind() Kind { return KindEntity }

// IsForwardingStub reports whether the entity exists only to redirect
// queries for its registrar tag elsewhere.
func (e *Entity) IsForwardingStub() bool { return len(e.ForwardURLs) > 0 }

// Nameserver is the nameserver object class.
// https://tools.ietf.org/html/rfc7483#section-5.2
type Nameserver struct {
	Common
	LDHName     string       `json:"ldhName,omitempty"`
	UnicodeName string       `json:"unicodeName,omitempty"`
	IPAddresses *IPAddresses `json:"ipAddresses,omitempty"`
}

func (*Nameserver) Kind() Kind { return KindNameserver }

// IPAddresses lists the glue addresses of a nameserver by family.
type IPAddresses struct {
	V4 []string `json:"v4,omitempty"`
	V6 []string `json:"v6,omitempty"`
}

// Autnum is the autonomous system number object class. Single AS numbers are
// represented with StartAutnum == EndAutnum.
// https://tools.ietf.org/html/rfc7483#section-5.5
type Autnum struct {
	Common
	StartAutnum uint32 `json:"startAutnum"`
	EndAutnum   uint32 `json:"endAutnum"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Country     string `json:"country,omitempty"`
}

func (*Autnum) Kind() Kind { return KindAutnum }

// Network is the IP network object class. Start and end addresses are
// inclusive on both ends and stay in wire string form; AddrRange parses them
// for indexing. CIDRs holds the minimal prefix cover of the range per the
// cidr0 extension.
// https://tools.ietf.org/html/rfc7483#section-5.4
type Network struct {
	Common
	StartAddress string `json:"startAddress,omitempty"`
	EndAddress   string `json:"endAddress,omitempty"`
	IPVersion    string `json:"ipVersion,omitempty"`
	Name         string `json:"name,omitempty"`
	Type         string `json:"type,omitempty"`
	Country      string `json:"country,omitempty"`
	ParentHandle string `json:"parentHandle,omitempty"`
	CIDRs        []CIDR `json:"cidr0_cidrs,omitempty"`
}

func (*Network) Kind() Kind { return KindNetwork }

// CIDR is one prefix of a network's cidr0_cidrs cover.
type CIDR struct {
	V4Prefix string `json:"v4prefix,omitempty"`
	V6Prefix string `json:"v6prefix,omitempty"`
	Length   int    `json:"length"`
}

// AddrRange parses and validates the network's address pair. Both addresses
// must parse, share a family, and satisfy start <= end.
func (n *Network) AddrRange() (start, end netip.Addr, err error) {
	start, err = netip.ParseAddr(n.StartAddress)
	if err != nil {
		return start, end, fmt.Errorf("start address %q: %w", n.StartAddress, err)
	}
	end, err = netip.ParseAddr(n.EndAddress)
	if err != nil {
		return start, end, fmt.Errorf("end address %q: %w", n.EndAddress, err)
	}
	if start.Is4() != end.Is4() {
		return start, end, fmt.Errorf("address family mismatch: %s / %s", n.StartAddress, n.EndAddress)
	}
	if end.Less(start) {
		return start, end, fmt.Errorf("inverted range: %s > %s", n.StartAddress, n.EndAddress)
	}
	return start, end, nil
}

// Help is the server help response: notices describing the service. The host
// key distinguishes per-host help texts; the empty host is the default.
type Help struct {
	Common
	Host string `json:"-"`
}

func (*Help) Kind() Kind { return KindHelp }

// Error is the RDAP error response body.
// https://tools.ietf.org/html/rfc7483#section-6
type Error struct {
	Common
	ErrorCode   int      `json:"errorCode"`
	Title       string   `json:"title,omitempty"`
	Description []string `json:"description,omitempty"`
}

func (*Error) Kind() Kind { return KindError }

// Redirect is the pseudo-object synthesized when delegation data says another
// registry is authoritative. QueryKey echoes the key exactly as queried. It
// is never persisted.
type Redirect struct {
	QueryKind Kind
	QueryKey  string
	URLs      []string
}

func (*Redirect) Kind() Kind { return KindRedirect }

// NormalizeLDH lower-cases an LDH name and strips a trailing root dot so all
// index and comparison paths see one spelling.
func NormalizeLDH(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}
