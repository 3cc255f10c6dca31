package resolver

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/suite"

	"rdapd/internal/bootstrap"
	"rdapd/internal/rdap"
	"rdapd/internal/storage"
)

// fakeBackend serves canned objects so engine behavior can be pinned
// without a real store. Lookup semantics are deliberately simple; picking
// the most specific range is the stores' job and is tested with them.
type fakeBackend struct {
	domains     map[string]*rdap.Domain
	entities    map[string]*rdap.Entity
	nameservers map[string]*rdap.Nameserver
	autnums     []*rdap.Autnum
	networks    []*rdap.Network
	helps       map[string]*rdap.Help

	searchDomains     []*rdap.Domain
	searchNameservers []*rdap.Nameserver

	err       error            // when set, every call fails with it
	entityErr map[string]error // per-handle failures, checked first
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		domains:     make(map[string]*rdap.Domain),
		entities:    make(map[string]*rdap.Entity),
		nameservers: make(map[string]*rdap.Nameserver),
		helps:       make(map[string]*rdap.Help),
	}
}

func (f *fakeBackend) Init(context.Context) error { return nil }
func (f *fakeBackend) Close() error               { return nil }

func (f *fakeBackend) Begin(context.Context) (storage.Tx, error) {
	return nil, errors.New("fake backend is read-only")
}

func (f *fakeBackend) GetDomainByLDH(_ context.Context, name string) (*rdap.Domain, error) {
	if f.err != nil {
		return nil, f.err
	}
	if d, ok := f.domains[rdap.NormalizeLDH(name)]; ok {
		return d, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeBackend) GetEntityByHandle(_ context.Context, handle string) (*rdap.Entity, error) {
	if err := f.entityErr[handle]; err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	if e, ok := f.entities[handle]; ok {
		return e, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeBackend) GetNameserverByLDH(_ context.Context, name string) (*rdap.Nameserver, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n, ok := f.nameservers[rdap.NormalizeLDH(name)]; ok {
		return n, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeBackend) GetAutnumByNumber(_ context.Context, asn uint32) (*rdap.Autnum, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, a := range f.autnums {
		if a.StartAutnum <= asn && asn <= a.EndAutnum {
			return a, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeBackend) GetNetworkByAddr(_ context.Context, addr netip.Addr) (*rdap.Network, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, n := range f.networks {
		start, end, err := n.AddrRange()
		if err != nil {
			continue
		}
		if start.Compare(addr) <= 0 && addr.Compare(end) <= 0 {
			return n, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeBackend) GetHelp(_ context.Context, host string) (*rdap.Help, error) {
	if f.err != nil {
		return nil, f.err
	}
	if h, ok := f.helps[host]; ok {
		return h, nil
	}
	if h, ok := f.helps[""]; ok {
		return h, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeBackend) SearchDomainsByName(context.Context, string) ([]*rdap.Domain, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.searchDomains, nil
}

func (f *fakeBackend) SearchNameserversByName(context.Context, string) ([]*rdap.Nameserver, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.searchNameservers, nil
}

type ResolverSuite struct {
	suite.Suite
	backend *fakeBackend
	ctx     context.Context
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.backend = newFakeBackend()
	s.ctx = context.Background()
}

func (s *ResolverSuite) newResolver(boot *bootstrap.Store) *Resolver {
	r, err := New(s.backend, boot)
	s.Require().NoError(err)
	return r
}

func (s *ResolverSuite) storeWith(build func(*bootstrap.Builder)) *bootstrap.Store {
	b := bootstrap.NewBuilder()
	build(b)
	reg, err := b.Build()
	s.Require().NoError(err)
	store := bootstrap.NewStore()
	store.Swap(reg)
	return store
}

func (s *ResolverSuite) TestNew() {
	s.Run("nil backend returns error", func() {
		_, err := New(nil, bootstrap.NewStore())
		s.Error(err)
		s.Contains(err.Error(), "backend is required")
	})

	s.Run("nil bootstrap store is tolerated", func() {
		r, err := New(s.backend, nil)
		s.NoError(err)
		s.NotNil(r)

		_, err = r.Resolve(s.ctx, DomainQuery("nowhere.example"), nil)
		s.ErrorIs(err, ErrNotFound)
	})
}

func (s *ResolverSuite) TestDomainLookup() {
	stored := &rdap.Domain{
		Common:  rdap.Common{Handle: "EXAMPLE-1", Status: []string{"active"}},
		LDHName: "example.com",
	}
	s.backend.domains["example.com"] = stored
	r := s.newResolver(nil)

	s.Run("found object is normalized", func() {
		obj, err := r.Resolve(s.ctx, DomainQuery("EXAMPLE.com"), nil)
		s.Require().NoError(err)

		d, ok := obj.(*rdap.Domain)
		s.Require().True(ok)
		s.Equal("domain", d.ObjectClassName)
		s.Equal([]string{rdap.ExtLevel0}, d.Conformance)
		s.Equal("EXAMPLE-1", d.Handle)
	})

	s.Run("stored object is never mutated", func() {
		_, err := r.Resolve(s.ctx, DomainQuery("example.com"), nil)
		s.Require().NoError(err)
		s.Empty(stored.ObjectClassName)
		s.Empty(stored.Conformance)
	})

	s.Run("unicode name is derived from the ldh name", func() {
		s.backend.domains["xn--bcher-kva.example"] = &rdap.Domain{
			Common:  rdap.Common{Handle: "BUECHER-1"},
			LDHName: "xn--bcher-kva.example",
		}
		obj, err := r.Resolve(s.ctx, DomainQuery("xn--bcher-kva.example"), nil)
		s.Require().NoError(err)
		s.Equal("bücher.example", obj.(*rdap.Domain).UnicodeName)
	})

	s.Run("stored unicode name wins", func() {
		s.backend.domains["xn--caf-dma.example"] = &rdap.Domain{
			Common:      rdap.Common{Handle: "CAFE-1"},
			LDHName:     "xn--caf-dma.example",
			UnicodeName: "café.example",
		}
		obj, err := r.Resolve(s.ctx, DomainQuery("xn--caf-dma.example"), nil)
		s.Require().NoError(err)
		s.Equal("café.example", obj.(*rdap.Domain).UnicodeName)
	})
}

func (s *ResolverSuite) TestDomainDelegation() {
	boot := s.storeWith(func(b *bootstrap.Builder) {
		b.DNS("co.uk", "https://rdap.nominet.uk/", "https://backup.nominet.uk")
	})
	r := s.newResolver(boot)

	s.Run("miss with a matching registry redirects", func() {
		obj, err := r.Resolve(s.ctx, DomainQuery("Sold.co.UK"), nil)
		s.Require().NoError(err)

		red, ok := obj.(*rdap.Redirect)
		s.Require().True(ok)
		s.Equal(rdap.KindDomain, red.QueryKind)
		s.Equal("Sold.co.UK", red.QueryKey)
		s.Equal([]string{
			"https://rdap.nominet.uk/domain/Sold.co.UK",
			"https://backup.nominet.uk/domain/Sold.co.UK",
		}, red.URLs)
	})

	s.Run("miss with no registry is not found", func() {
		_, err := r.Resolve(s.ctx, DomainQuery("nowhere.example"), nil)
		s.ErrorIs(err, ErrNotFound)
	})

	s.Run("local objects still win over delegation", func() {
		s.backend.domains["mine.co.uk"] = &rdap.Domain{
			Common:  rdap.Common{Handle: "MINE-1"},
			LDHName: "mine.co.uk",
		}
		obj, err := r.Resolve(s.ctx, DomainQuery("mine.co.uk"), nil)
		s.Require().NoError(err)
		s.IsType(&rdap.Domain{}, obj)
	})
}

func (s *ResolverSuite) TestNameserverDelegation() {
	s.backend.nameservers["ns1.example.net"] = &rdap.Nameserver{
		Common:  rdap.Common{Handle: "NS1-1"},
		LDHName: "ns1.example.net",
	}
	boot := s.storeWith(func(b *bootstrap.Builder) {
		b.DNS("uk", "https://rdap.nominet.uk")
	})
	r := s.newResolver(boot)

	obj, err := r.Resolve(s.ctx, NameserverQuery("ns1.example.net"), nil)
	s.Require().NoError(err)
	ns := obj.(*rdap.Nameserver)
	s.Equal("nameserver", ns.ObjectClassName)

	obj, err = r.Resolve(s.ctx, NameserverQuery("ns2.registry.uk"), nil)
	s.Require().NoError(err)
	red := obj.(*rdap.Redirect)
	s.Equal([]string{"https://rdap.nominet.uk/nameserver/ns2.registry.uk"}, red.URLs)

	_, err = r.Resolve(s.ctx, NameserverQuery("ns9.example.org"), nil)
	s.ErrorIs(err, ErrNotFound)
}

func (s *ResolverSuite) TestEntityForwarding() {
	s.backend.entities["-ABC"] = &rdap.Entity{
		Common:      rdap.Common{Handle: "-ABC"},
		ForwardURLs: []string{"https://registrar.example/rdap"},
	}
	r := s.newResolver(nil)

	s.Run("tagged handle redirects echoing the full handle", func() {
		obj, err := r.Resolve(s.ctx, EntityQuery("FOO123-ABC"), nil)
		s.Require().NoError(err)

		red, ok := obj.(*rdap.Redirect)
		s.Require().True(ok)
		s.Equal("FOO123-ABC", red.QueryKey)
		s.Equal([]string{"https://registrar.example/rdap/entity/FOO123-ABC"}, red.URLs)
	})

	s.Run("tag comparison ignores case", func() {
		obj, err := r.Resolve(s.ctx, EntityQuery("foo123-abc"), nil)
		s.Require().NoError(err)
		s.Equal("foo123-abc", obj.(*rdap.Redirect).QueryKey)
	})

	s.Run("querying the stub itself redirects", func() {
		obj, err := r.Resolve(s.ctx, EntityQuery("-ABC"), nil)
		s.Require().NoError(err)
		s.Equal("-ABC", obj.(*rdap.Redirect).QueryKey)
	})

	s.Run("handle without a tag is not found", func() {
		_, err := r.Resolve(s.ctx, EntityQuery("NOHYPHEN"), nil)
		s.ErrorIs(err, ErrNotFound)

		_, err = r.Resolve(s.ctx, EntityQuery("TRAILING-"), nil)
		s.ErrorIs(err, ErrNotFound)
	})

	s.Run("stored stub wins over the object-tag table", func() {
		boot := s.storeWith(func(b *bootstrap.Builder) {
			b.EntityTag("ABC", "https://iana-says.example")
		})
		obj, err := s.newResolver(boot).Resolve(s.ctx, EntityQuery("X-ABC"), nil)
		s.Require().NoError(err)
		s.Equal([]string{"https://registrar.example/rdap/entity/X-ABC"}, obj.(*rdap.Redirect).URLs)
	})

	s.Run("object-tag table serves tags with no stub", func() {
		boot := s.storeWith(func(b *bootstrap.Builder) {
			b.EntityTag("ARIN", "https://rdap.arin.net/registry")
		})
		obj, err := s.newResolver(boot).Resolve(s.ctx, EntityQuery("X-arin"), nil)
		s.Require().NoError(err)

		red := obj.(*rdap.Redirect)
		s.Equal("X-arin", red.QueryKey)
		s.Equal([]string{"https://rdap.arin.net/registry/entity/X-arin"}, red.URLs)
	})

	s.Run("plain entity with a hyphen resolves locally", func() {
		s.backend.entities["REG-42"] = &rdap.Entity{
			Common: rdap.Common{Handle: "REG-42"},
			Roles:  []string{"registrant"},
		}
		obj, err := r.Resolve(s.ctx, EntityQuery("REG-42"), nil)
		s.Require().NoError(err)
		s.IsType(&rdap.Entity{}, obj)
	})
}

func (s *ResolverSuite) TestEntityContactNegotiation() {
	vcard := rdap.VCard{
		{Name: "version", Type: "text", Values: []any{"4.0"}},
		{Name: "fn", Type: "text", Values: []any{"Ada Lovelace"}},
		{Name: "email", Type: "text", Values: []any{"ada@example.com"}},
	}
	s.backend.entities["ADA-1"] = &rdap.Entity{
		Common:     rdap.Common{Handle: "ADA-1"},
		VCardArray: vcard,
	}
	r := s.newResolver(nil)

	s.Run("default serves jcard only", func() {
		obj, err := r.Resolve(s.ctx, EntityQuery("ADA-1"), nil)
		s.Require().NoError(err)

		e := obj.(*rdap.Entity)
		s.NotEmpty(e.VCardArray)
		s.Nil(e.JSContact)
		s.NotContains(e.Conformance, rdap.ExtJSContact)
	})

	s.Run("negotiated jscontact converts and drops jcard", func() {
		exts := rdap.ParseExtensions("jscontact")
		obj, err := r.Resolve(s.ctx, EntityQuery("ADA-1"), exts)
		s.Require().NoError(err)

		e := obj.(*rdap.Entity)
		s.Require().NotNil(e.JSContact)
		s.Equal("Ada Lovelace", e.JSContact.Name.Full)
		s.Empty(e.VCardArray)
		s.Contains(e.Conformance, rdap.ExtJSContact)
	})

	s.Run("stored card wins over conversion", func() {
		s.backend.entities["GRACE-1"] = &rdap.Entity{
			Common:     rdap.Common{Handle: "GRACE-1"},
			VCardArray: vcard,
			JSContact:  &rdap.JSContactCard{Type: "Card", Version: "1.0", Name: &rdap.JSContactName{Full: "Grace Hopper"}},
		}
		obj, err := r.Resolve(s.ctx, EntityQuery("GRACE-1"), rdap.ParseExtensions("jscontact"))
		s.Require().NoError(err)
		s.Equal("Grace Hopper", obj.(*rdap.Entity).JSContact.Name.Full)
	})

	s.Run("unnegotiated stored card is dropped when jcard exists", func() {
		obj, err := r.Resolve(s.ctx, EntityQuery("GRACE-1"), nil)
		s.Require().NoError(err)

		e := obj.(*rdap.Entity)
		s.Nil(e.JSContact)
		s.NotEmpty(e.VCardArray)
	})

	s.Run("card-only entity serves it regardless of negotiation", func() {
		s.backend.entities["CARD-1"] = &rdap.Entity{
			Common:    rdap.Common{Handle: "CARD-1"},
			JSContact: &rdap.JSContactCard{Type: "Card", Version: "1.0"},
		}
		obj, err := r.Resolve(s.ctx, EntityQuery("CARD-1"), nil)
		s.Require().NoError(err)

		e := obj.(*rdap.Entity)
		s.NotNil(e.JSContact)
		s.Contains(e.Conformance, rdap.ExtJSContact)
	})

	s.Run("nested entities are converted too", func() {
		s.backend.entities["ORG-1"] = &rdap.Entity{
			Common: rdap.Common{
				Handle:   "ORG-1",
				Entities: []rdap.Entity{{Common: rdap.Common{Handle: "ADA-2"}, VCardArray: vcard}},
			},
		}
		obj, err := r.Resolve(s.ctx, EntityQuery("ORG-1"), rdap.ParseExtensions("jscontact"))
		s.Require().NoError(err)

		e := obj.(*rdap.Entity)
		s.Require().Len(e.Entities, 1)
		s.NotNil(e.Entities[0].JSContact)
		s.Empty(e.Entities[0].VCardArray)
		s.Contains(e.Conformance, rdap.ExtJSContact)
	})
}

func (s *ResolverSuite) TestAutnumResolution() {
	s.backend.autnums = []*rdap.Autnum{{
		Common:      rdap.Common{Handle: "AS-BLOCK-1"},
		StartAutnum: 64500,
		EndAutnum:   64510,
	}}
	boot := s.storeWith(func(b *bootstrap.Builder) {
		b.ASNRange(65000, 65100, "https://rdap.ripe.net")
	})
	r := s.newResolver(boot)

	obj, err := r.Resolve(s.ctx, AutnumQuery(64505), nil)
	s.Require().NoError(err)
	a := obj.(*rdap.Autnum)
	s.Equal("autnum", a.ObjectClassName)
	s.Equal([]string{rdap.ExtLevel0}, a.Conformance)

	obj, err = r.Resolve(s.ctx, AutnumQuery(65050), nil)
	s.Require().NoError(err)
	red := obj.(*rdap.Redirect)
	s.Equal("65050", red.QueryKey)
	s.Equal([]string{"https://rdap.ripe.net/autnum/65050"}, red.URLs)

	_, err = r.Resolve(s.ctx, AutnumQuery(70000), nil)
	s.ErrorIs(err, ErrNotFound)
}

func (s *ResolverSuite) TestNetworkResolution() {
	stored := &rdap.Network{
		Common:       rdap.Common{Handle: "NET-10-24"},
		StartAddress: "10.0.0.0",
		EndAddress:   "10.0.0.255",
		IPVersion:    "v4",
	}
	s.backend.networks = []*rdap.Network{stored}
	boot := s.storeWith(func(b *bootstrap.Builder) {
		b.Network("198.51.100.0/24", "https://rdap.apnic.net")
	})
	r := s.newResolver(boot)

	s.Run("found network derives cidr0 blocks", func() {
		obj, err := r.Resolve(s.ctx, NetworkQuery(netip.MustParseAddr("10.0.0.77")), nil)
		s.Require().NoError(err)

		n := obj.(*rdap.Network)
		s.Equal("ip network", n.ObjectClassName)
		s.Equal([]rdap.CIDR{{V4Prefix: "10.0.0.0", Length: 24}}, n.CIDRs)
		s.Contains(n.Conformance, rdap.ExtCidr0)
		s.Empty(stored.CIDRs, "stored object must keep its wire form")
	})

	s.Run("stored blocks are preserved", func() {
		s.backend.networks = append(s.backend.networks, &rdap.Network{
			Common:       rdap.Common{Handle: "NET-172"},
			StartAddress: "172.16.0.0",
			EndAddress:   "172.16.7.255",
			CIDRs:        []rdap.CIDR{{V4Prefix: "172.16.0.0", Length: 21}},
		})
		obj, err := r.Resolve(s.ctx, NetworkQuery(netip.MustParseAddr("172.16.3.3")), nil)
		s.Require().NoError(err)
		s.Equal([]rdap.CIDR{{V4Prefix: "172.16.0.0", Length: 21}}, obj.(*rdap.Network).CIDRs)
	})

	s.Run("miss redirects through the address registry", func() {
		obj, err := r.Resolve(s.ctx, NetworkQuery(netip.MustParseAddr("198.51.100.9")), nil)
		s.Require().NoError(err)

		red := obj.(*rdap.Redirect)
		s.Equal("198.51.100.9", red.QueryKey)
		s.Equal([]string{"https://rdap.apnic.net/ip/198.51.100.9"}, red.URLs)
	})

	s.Run("invalid address is rejected", func() {
		_, err := r.Resolve(s.ctx, NetworkQuery(netip.Addr{}), nil)
		s.ErrorIs(err, ErrInvalidQueryValue)
	})
}

func (s *ResolverSuite) TestHelp() {
	s.backend.helps[""] = &rdap.Help{
		Common: rdap.Common{Notices: []rdap.Notice{{Title: "About", Description: []string{"demo server"}}}},
	}
	r := s.newResolver(nil)

	obj, err := r.Resolve(s.ctx, HelpQuery("rdap.example.net"), nil)
	s.Require().NoError(err)
	h := obj.(*rdap.Help)
	s.Equal([]string{rdap.ExtLevel0}, h.Conformance)
	s.Len(h.Notices, 1)

	s.backend.helps = map[string]*rdap.Help{}
	_, err = r.Resolve(s.ctx, HelpQuery(""), nil)
	s.ErrorIs(err, ErrNotFound)
}

func (s *ResolverSuite) TestSearches() {
	s.backend.searchDomains = []*rdap.Domain{
		{Common: rdap.Common{Handle: "A-1"}, LDHName: "a.example"},
		{Common: rdap.Common{Handle: "B-1"}, LDHName: "b.example"},
	}
	r := s.newResolver(nil)

	s.Run("results are normalized", func() {
		got, err := r.SearchDomains(s.ctx, "*.example", nil)
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal("domain", got[0].ObjectClassName)
		s.Equal("domain", got[1].ObjectClassName)
	})

	s.Run("empty result is not an error", func() {
		s.backend.searchDomains = nil
		got, err := r.SearchDomains(s.ctx, "zz*", nil)
		s.NoError(err)
		s.Empty(got)
	})

	s.Run("bare wildcard is rejected", func() {
		_, err := r.SearchDomains(s.ctx, "*", nil)
		s.ErrorIs(err, ErrInvalidQueryValue)

		_, err = r.SearchNameservers(s.ctx, "***", nil)
		s.ErrorIs(err, ErrInvalidQueryValue)

		_, err = r.SearchDomains(s.ctx, "", nil)
		s.ErrorIs(err, ErrInvalidQueryValue)
	})

	s.Run("nameserver results are normalized", func() {
		s.backend.searchNameservers = []*rdap.Nameserver{
			{Common: rdap.Common{Handle: "NS-1"}, LDHName: "ns1.example"},
		}
		got, err := r.SearchNameservers(s.ctx, "ns*", nil)
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal("nameserver", got[0].ObjectClassName)
	})
}

func (s *ResolverSuite) TestErrorPropagation() {
	boom := errors.New("connection refused")

	s.Run("backend failure is not absence", func() {
		s.backend.err = boom
		r := s.newResolver(s.storeWith(func(b *bootstrap.Builder) {
			b.DNS("com", "https://rdap.verisign.com")
		}))

		_, err := r.Resolve(s.ctx, DomainQuery("down.com"), nil)
		s.Require().Error(err)
		s.ErrorIs(err, boom)
		s.NotErrorIs(err, ErrNotFound)
	})

	s.Run("stub probe failure propagates", func() {
		s.backend.err = nil
		s.backend.entityErr = map[string]error{"-TAG": boom}
		r := s.newResolver(nil)

		_, err := r.Resolve(s.ctx, EntityQuery("X-TAG"), nil)
		s.ErrorIs(err, boom)
		s.NotErrorIs(err, ErrNotFound)
	})

	s.Run("search failure is wrapped", func() {
		s.backend.err = boom
		r := s.newResolver(nil)

		_, err := r.SearchDomains(s.ctx, "a*", nil)
		s.ErrorIs(err, boom)
	})

	s.Run("unclassified query kind is ambiguous", func() {
		s.backend.err = nil
		r := s.newResolver(nil)

		_, err := r.Resolve(s.ctx, Query{}, nil)
		s.ErrorIs(err, ErrAmbiguousQueryType)

		_, err = r.Resolve(s.ctx, Query{Kind: rdap.KindRedirect}, nil)
		s.ErrorIs(err, ErrAmbiguousQueryType)
	})

	s.Run("empty keys are invalid", func() {
		r := s.newResolver(nil)

		_, err := r.Resolve(s.ctx, DomainQuery(""), nil)
		s.ErrorIs(err, ErrInvalidQueryValue)

		_, err = r.Resolve(s.ctx, EntityQuery(""), nil)
		s.ErrorIs(err, ErrInvalidQueryValue)

		_, err = r.Resolve(s.ctx, NameserverQuery(""), nil)
		s.ErrorIs(err, ErrInvalidQueryValue)
	})
}
