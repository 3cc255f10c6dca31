package bootstrap

import (
	"fmt"
	"net/netip"
	"strings"
)

// Builder assembles a Registry entry by entry, in listing order. Errors are
// collected and reported once by Build.
type Builder struct {
	reg *Registry
	err error
}

// NewBuilder starts an empty registry.
func NewBuilder() *Builder {
	return &Builder{
		reg: &Registry{
			dns:  make(map[string][]string),
			tags: make(map[string][]string),
		},
	}
}

// DNS registers service URLs for a name suffix. The first registration of a
// suffix wins.
func (b *Builder) DNS(suffix string, urls ...string) *Builder {
	suffix = strings.ToLower(strings.TrimSuffix(suffix, "."))
	if _, ok := b.reg.dns[suffix]; !ok {
		b.reg.dns[suffix] = urls
	}
	return b
}

// ASNRange registers service URLs for an inclusive AS number range.
func (b *Builder) ASNRange(start, end uint32, urls ...string) *Builder {
	if end < start {
		b.fail(fmt.Errorf("asn range %d-%d: inverted", start, end))
		return b
	}
	b.reg.asn = append(b.reg.asn, asnEntry{start: start, end: end, urls: urls})
	return b
}

// Network registers service URLs for a CIDR block.
func (b *Builder) Network(cidr string, urls ...string) *Builder {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		b.fail(fmt.Errorf("network %q: %w", cidr, err))
		return b
	}
	prefix = prefix.Masked()
	entry := prefixEntry{prefix: prefix, urls: urls}
	if prefix.Addr().Is4() {
		b.reg.v4 = append(b.reg.v4, entry)
	} else {
		b.reg.v6 = append(b.reg.v6, entry)
	}
	return b
}

// EntityTag registers service URLs for a registrar handle tag.
func (b *Builder) EntityTag(tag string, urls ...string) *Builder {
	tag = strings.ToUpper(tag)
	if _, ok := b.reg.tags[tag]; !ok {
		b.reg.tags[tag] = urls
	}
	return b
}

// Build returns the assembled registry, or the first error any entry
// raised.
func (b *Builder) Build() (*Registry, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.reg, nil
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
