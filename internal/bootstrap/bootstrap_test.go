package bootstrap

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainURLsLongestSuffix(t *testing.T) {
	reg, err := NewBuilder().
		DNS("uk", "https://rdap.example/uk/").
		DNS("co.uk", "https://rdap.example/co.uk/").
		DNS("xn--p1ai", "https://rdap.example/rf/").
		Build()
	require.NoError(t, err)

	urls, ok := reg.DomainURLs("shop.example.co.uk")
	require.True(t, ok)
	assert.Equal(t, []string{"https://rdap.example/co.uk/"}, urls)

	urls, ok = reg.DomainURLs("example.uk")
	require.True(t, ok)
	assert.Equal(t, []string{"https://rdap.example/uk/"}, urls)

	// Case and a trailing dot must not matter.
	urls, ok = reg.DomainURLs("Example.CO.UK.")
	require.True(t, ok)
	assert.Equal(t, []string{"https://rdap.example/co.uk/"}, urls)

	_, ok = reg.DomainURLs("example.com")
	assert.False(t, ok)
	_, ok = reg.DomainURLs("")
	assert.False(t, ok)
}

func TestAutnumURLsSmallestSpan(t *testing.T) {
	reg, err := NewBuilder().
		ASNRange(1, 100, "https://a.example/").
		ASNRange(50, 60, "https://b.example/").
		Build()
	require.NoError(t, err)

	urls, ok := reg.AutnumURLs(55)
	require.True(t, ok)
	assert.Equal(t, []string{"https://b.example/"}, urls)

	urls, ok = reg.AutnumURLs(10)
	require.True(t, ok)
	assert.Equal(t, []string{"https://a.example/"}, urls)

	_, ok = reg.AutnumURLs(101)
	assert.False(t, ok)
}

func TestAutnumURLsFirstListedTie(t *testing.T) {
	reg, err := NewBuilder().
		ASNRange(10, 20, "https://first.example/").
		ASNRange(10, 20, "https://second.example/").
		Build()
	require.NoError(t, err)

	urls, ok := reg.AutnumURLs(15)
	require.True(t, ok)
	assert.Equal(t, []string{"https://first.example/"}, urls)
}

func TestNetworkURLsLongestPrefix(t *testing.T) {
	reg, err := NewBuilder().
		Network("10.0.0.0/16", "https://x.example/").
		Network("10.0.0.0/24", "https://y.example/").
		Network("2001:db8::/32", "https://six.example/").
		Build()
	require.NoError(t, err)

	urls, ok := reg.NetworkURLs(netip.MustParseAddr("10.0.0.5"))
	require.True(t, ok)
	assert.Equal(t, []string{"https://y.example/"}, urls)

	urls, ok = reg.NetworkURLs(netip.MustParseAddr("10.0.200.1"))
	require.True(t, ok)
	assert.Equal(t, []string{"https://x.example/"}, urls)

	urls, ok = reg.NetworkURLs(netip.MustParseAddr("2001:db8:1::2"))
	require.True(t, ok)
	assert.Equal(t, []string{"https://six.example/"}, urls)

	// Mapped form of a v4 address matches the v4 tables.
	urls, ok = reg.NetworkURLs(netip.MustParseAddr("::ffff:10.0.0.5"))
	require.True(t, ok)
	assert.Equal(t, []string{"https://y.example/"}, urls)

	_, ok = reg.NetworkURLs(netip.MustParseAddr("192.0.2.1"))
	assert.False(t, ok)
}

func TestNetworkURLsFirstListedTie(t *testing.T) {
	reg, err := NewBuilder().
		Network("10.0.0.0/24", "https://first.example/").
		Network("10.0.0.0/24", "https://second.example/").
		Build()
	require.NoError(t, err)

	urls, ok := reg.NetworkURLs(netip.MustParseAddr("10.0.0.1"))
	require.True(t, ok)
	assert.Equal(t, []string{"https://first.example/"}, urls)
}

func TestEntityTagURLs(t *testing.T) {
	reg, err := NewBuilder().
		EntityTag("arin", "https://rdap.arin.net/registry/").
		Build()
	require.NoError(t, err)

	urls, ok := reg.EntityTagURLs("ARIN")
	require.True(t, ok)
	assert.Equal(t, []string{"https://rdap.arin.net/registry/"}, urls)

	urls, ok = reg.EntityTagURLs("arin")
	require.True(t, ok)
	assert.Equal(t, []string{"https://rdap.arin.net/registry/"}, urls)

	_, ok = reg.EntityTagURLs("RIPE")
	assert.False(t, ok)
}

func TestBuilderRejectsBadEntries(t *testing.T) {
	_, err := NewBuilder().ASNRange(20, 10, "https://x.example/").Build()
	require.Error(t, err)

	_, err = NewBuilder().Network("not-a-cidr", "https://x.example/").Build()
	require.Error(t, err)
}

func TestCompile(t *testing.T) {
	files := Files{
		DNS: []byte(`{
			"version": "1.0",
			"publication": "2024-03-01T00:00:00Z",
			"description": "RDAP bootstrap file for Domain Name System registrations",
			"services": [
				[["example", "test"], ["https://rdap.example.net/"]],
				[["co.test"], ["https://rdap.co.example.net/"]]
			]
		}`),
		ASN: []byte(`{
			"version": "1.0",
			"publication": "2024-03-02T00:00:00Z",
			"services": [
				[["64496-64511"], ["https://rdap.asn.example.net/"]],
				[["65000"], ["https://rdap.one.example.net/"]]
			]
		}`),
		IPv4: []byte(`{
			"version": "1.0",
			"publication": "2024-02-01T00:00:00Z",
			"services": [
				[["198.51.100.0/24"], ["https://rdap.v4.example.net/"]]
			]
		}`),
		IPv6: []byte(`{
			"version": "1.0",
			"publication": "2024-02-01T00:00:00Z",
			"services": [
				[["2001:db8::/32"], ["https://rdap.v6.example.net/"]]
			]
		}`),
		ObjectTags: []byte(`{
			"version": "1.0",
			"publication": "2024-01-15T00:00:00Z",
			"services": [
				[["contact@example.net"], ["EXMP"], ["https://rdap.tag.example.net/"]]
			]
		}`),
	}

	reg, err := Compile(files)
	require.NoError(t, err)

	urls, ok := reg.DomainURLs("foo.co.test")
	require.True(t, ok)
	assert.Equal(t, []string{"https://rdap.co.example.net/"}, urls)

	urls, ok = reg.DomainURLs("foo.example")
	require.True(t, ok)
	assert.Equal(t, []string{"https://rdap.example.net/"}, urls)

	urls, ok = reg.AutnumURLs(64500)
	require.True(t, ok)
	assert.Equal(t, []string{"https://rdap.asn.example.net/"}, urls)

	urls, ok = reg.AutnumURLs(65000)
	require.True(t, ok)
	assert.Equal(t, []string{"https://rdap.one.example.net/"}, urls)

	urls, ok = reg.NetworkURLs(netip.MustParseAddr("198.51.100.7"))
	require.True(t, ok)
	assert.Equal(t, []string{"https://rdap.v4.example.net/"}, urls)

	urls, ok = reg.NetworkURLs(netip.MustParseAddr("2001:db8::1"))
	require.True(t, ok)
	assert.Equal(t, []string{"https://rdap.v6.example.net/"}, urls)

	urls, ok = reg.EntityTagURLs("exmp")
	require.True(t, ok)
	assert.Equal(t, []string{"https://rdap.tag.example.net/"}, urls)

	assert.Equal(t, "2024-03-02T00:00:00Z", reg.Publication())
}

func TestCompilePartial(t *testing.T) {
	reg, err := Compile(Files{
		DNS: []byte(`{"version":"1.0","publication":"2024-03-01T00:00:00Z","services":[[["test"],["https://rdap.example.net/"]]]}`),
	})
	require.NoError(t, err)

	_, ok := reg.DomainURLs("foo.test")
	assert.True(t, ok)
	_, ok = reg.AutnumURLs(64500)
	assert.False(t, ok)
}

func TestCompileRejectsMalformed(t *testing.T) {
	_, err := Compile(Files{DNS: []byte(`{"services":`)})
	require.Error(t, err)

	_, err = Compile(Files{DNS: []byte(`{"services":[[["test"]]]}`)})
	require.Error(t, err)

	_, err = Compile(Files{ASN: []byte(`{"services":[[["10-x"],["https://x.example/"]]]}`)})
	require.Error(t, err)

	_, err = Compile(Files{ObjectTags: []byte(`{"services":[[["TAG"],["https://x.example/"]]]}`)})
	require.Error(t, err)
}

func TestStoreSwap(t *testing.T) {
	store := NewStore()

	_, ok := store.Current().DomainURLs("foo.test")
	assert.False(t, ok)

	reg, err := NewBuilder().DNS("test", "https://rdap.example.net/").Build()
	require.NoError(t, err)
	store.Swap(reg)

	urls, ok := store.Current().DomainURLs("foo.test")
	require.True(t, ok)
	assert.Equal(t, []string{"https://rdap.example.net/"}, urls)

	// A nil swap must not blank the tables.
	store.Swap(nil)
	_, ok = store.Current().DomainURLs("foo.test")
	assert.True(t, ok)
}
