package bootstrap

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// File is the wire shape of an RFC 9224 bootstrap registry document. The
// object-tags registry (RFC 8521) shares it, with a third array per service
// holding maintainer contacts.
type File struct {
	Version     string       `json:"version"`
	Publication string       `json:"publication"`
	Description string       `json:"description,omitempty"`
	Services    [][][]string `json:"services"`
}

// ParseFile decodes one registry document.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse bootstrap file: %w", err)
	}
	return &f, nil
}

// Files carries the raw registry documents to compile. Nil members are
// simply absent from the result.
type Files struct {
	DNS        []byte
	ASN        []byte
	IPv4       []byte
	IPv6       []byte
	ObjectTags []byte
}

// Compile parses the documents and assembles one registry, preserving each
// file's listing order so first-listed tie-breaks survive.
func Compile(files Files) (*Registry, error) {
	b := NewBuilder()
	var publication string

	if files.DNS != nil {
		f, err := compileInto(files.DNS, "dns", func(keys, urls []string) error {
			for _, key := range keys {
				b.DNS(key, urls...)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		publication = laterOf(publication, f.Publication)
	}
	if files.ASN != nil {
		f, err := compileInto(files.ASN, "asn", func(keys, urls []string) error {
			for _, key := range keys {
				start, end, err := parseASNKey(key)
				if err != nil {
					return err
				}
				b.ASNRange(start, end, urls...)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		publication = laterOf(publication, f.Publication)
	}
	if files.IPv4 != nil {
		f, err := compileInto(files.IPv4, "ipv4", func(keys, urls []string) error {
			for _, key := range keys {
				b.Network(key, urls...)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		publication = laterOf(publication, f.Publication)
	}
	if files.IPv6 != nil {
		f, err := compileInto(files.IPv6, "ipv6", func(keys, urls []string) error {
			for _, key := range keys {
				b.Network(key, urls...)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		publication = laterOf(publication, f.Publication)
	}
	if files.ObjectTags != nil {
		f, err := ParseFile(files.ObjectTags)
		if err != nil {
			return nil, fmt.Errorf("object-tags registry: %w", err)
		}
		for i, svc := range f.Services {
			// [contacts, tags, urls]
			if len(svc) < 3 {
				return nil, fmt.Errorf("object-tags registry: service %d: want 3 arrays, got %d", i, len(svc))
			}
			for _, tag := range svc[1] {
				b.EntityTag(tag, svc[2]...)
			}
		}
		publication = laterOf(publication, f.Publication)
	}

	reg, err := b.Build()
	if err != nil {
		return nil, err
	}
	reg.publication = publication
	return reg, nil
}

// compileInto parses a two-array registry document and feeds every service
// entry to add.
func compileInto(data []byte, what string, add func(keys, urls []string) error) (*File, error) {
	f, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s registry: %w", what, err)
	}
	for i, svc := range f.Services {
		if len(svc) < 2 {
			return nil, fmt.Errorf("%s registry: service %d: want 2 arrays, got %d", what, i, len(svc))
		}
		if err := add(svc[0], svc[1]); err != nil {
			return nil, fmt.Errorf("%s registry: service %d: %w", what, i, err)
		}
	}
	return f, nil
}

// parseASNKey reads an AS number entry key, either a single number or an
// inclusive "start-end" range.
func parseASNKey(key string) (start, end uint32, err error) {
	lo, hi, ranged := strings.Cut(key, "-")
	s, err := strconv.ParseUint(lo, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("asn key %q: %w", key, err)
	}
	if !ranged {
		return uint32(s), uint32(s), nil
	}
	e, err := strconv.ParseUint(hi, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("asn key %q: %w", key, err)
	}
	if e < s {
		return 0, 0, fmt.Errorf("asn key %q: inverted range", key)
	}
	return uint32(s), uint32(e), nil
}

// laterOf keeps the most recent of two RFC 3339 timestamps, which order
// correctly as strings.
func laterOf(a, b string) string {
	if b > a {
		return b
	}
	return a
}
