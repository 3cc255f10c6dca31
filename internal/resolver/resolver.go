// Package resolver implements the lookup and resolution engine. A query
// runs against the local store first; on a miss the IANA delegation
// registries are consulted, and the answer comes back as a normalized
// object, a redirect naming the authoritative service, or a terminal
// not-found. Backend failures are never downgraded to absence.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"rdapd/internal/bootstrap"
	"rdapd/internal/rdap"
	"rdapd/internal/resolver/metrics"
	"rdapd/internal/storage"
)

// Resolver answers RDAP queries from a storage backend with bootstrap
// registry fallback.
type Resolver struct {
	backend   storage.Backend
	bootstrap *bootstrap.Store
	metrics   *metrics.Metrics
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// New creates a Resolver over the backend and bootstrap tables. A nil
// bootstrap store behaves like one whose registries match nothing.
func New(backend storage.Backend, boot *bootstrap.Store, opts ...Option) (*Resolver, error) {
	if backend == nil {
		return nil, errors.New("storage backend is required")
	}
	if boot == nil {
		boot = bootstrap.NewStore()
	}
	r := &Resolver{
		backend:   backend,
		bootstrap: boot,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve runs one query to its terminal outcome: the normalized local
// object, a Redirect, or ErrNotFound. Classification and key errors
// surface as ErrAmbiguousQueryType and ErrInvalidQueryValue.
func (r *Resolver) Resolve(ctx context.Context, q Query, exts rdap.ExtensionSet) (rdap.Object, error) {
	start := time.Now()
	obj, err := r.resolve(ctx, q, exts)
	r.metrics.ObserveQuery(string(q.Kind), outcomeOf(obj, err), start)
	return obj, err
}

func (r *Resolver) resolve(ctx context.Context, q Query, exts rdap.ExtensionSet) (rdap.Object, error) {
	switch q.Kind {
	case rdap.KindDomain:
		return r.resolveDomain(ctx, q, exts)
	case rdap.KindEntity:
		return r.resolveEntity(ctx, q, exts)
	case rdap.KindNameserver:
		return r.resolveNameserver(ctx, q, exts)
	case rdap.KindAutnum:
		return r.resolveAutnum(ctx, q, exts)
	case rdap.KindNetwork:
		return r.resolveNetwork(ctx, q, exts)
	case rdap.KindHelp:
		return r.resolveHelp(ctx, q)
	default:
		return nil, fmt.Errorf("%w: %q", ErrAmbiguousQueryType, string(q.Kind))
	}
}

func (r *Resolver) resolveDomain(ctx context.Context, q Query, exts rdap.ExtensionSet) (rdap.Object, error) {
	if q.Name == "" {
		return nil, fmt.Errorf("%w: empty domain name", ErrInvalidQueryValue)
	}
	d, err := r.backend.GetDomainByLDH(ctx, q.Name)
	switch {
	case err == nil:
		return normalizeDomain(d, exts)
	case errors.Is(err, storage.ErrNotFound):
		if urls, ok := r.registry().DomainURLs(q.Name); ok {
			return r.redirect(q, "domain", urls), nil
		}
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("lookup domain %q: %w", q.Name, err)
	}
}

func (r *Resolver) resolveNameserver(ctx context.Context, q Query, exts rdap.ExtensionSet) (rdap.Object, error) {
	if q.Name == "" {
		return nil, fmt.Errorf("%w: empty nameserver name", ErrInvalidQueryValue)
	}
	n, err := r.backend.GetNameserverByLDH(ctx, q.Name)
	switch {
	case err == nil:
		return normalizeNameserver(n, exts)
	case errors.Is(err, storage.ErrNotFound):
		// Nameserver delegation follows the DNS registry of the name's
		// parent zone.
		if urls, ok := r.registry().DomainURLs(q.Name); ok {
			return r.redirect(q, "nameserver", urls), nil
		}
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("lookup nameserver %q: %w", q.Name, err)
	}
}

func (r *Resolver) resolveEntity(ctx context.Context, q Query, exts rdap.ExtensionSet) (rdap.Object, error) {
	if q.Handle == "" {
		return nil, fmt.Errorf("%w: empty entity handle", ErrInvalidQueryValue)
	}
	e, err := r.backend.GetEntityByHandle(ctx, q.Handle)
	switch {
	case err == nil:
		if e.IsForwardingStub() {
			return r.redirect(q, "entity", e.ForwardURLs), nil
		}
		return normalizeEntity(e, exts)
	case errors.Is(err, storage.ErrNotFound):
		return r.redirectEntityByTag(ctx, q)
	default:
		return nil, fmt.Errorf("lookup entity %q: %w", q.Handle, err)
	}
}

// redirectEntityByTag applies the registrar tag heuristic to a handle the
// store does not know: the text after the last hyphen names the tag. A
// stored forwarding stub for the bare tag wins over the IANA object-tag
// table; either way the redirect echoes the handle exactly as queried.
func (r *Resolver) redirectEntityByTag(ctx context.Context, q Query) (rdap.Object, error) {
	idx := strings.LastIndex(q.Handle, "-")
	if idx < 0 {
		return nil, ErrNotFound
	}
	tag := strings.ToUpper(q.Handle[idx+1:])
	if tag == "" {
		return nil, ErrNotFound
	}

	stub, err := r.backend.GetEntityByHandle(ctx, "-"+tag)
	switch {
	case err == nil && stub.IsForwardingStub():
		return r.redirect(q, "entity", stub.ForwardURLs), nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("lookup entity stub %q: %w", "-"+tag, err)
	}

	if urls, ok := r.registry().EntityTagURLs(tag); ok {
		return r.redirect(q, "entity", urls), nil
	}
	return nil, ErrNotFound
}

func (r *Resolver) resolveAutnum(ctx context.Context, q Query, exts rdap.ExtensionSet) (rdap.Object, error) {
	a, err := r.backend.GetAutnumByNumber(ctx, q.ASN)
	switch {
	case err == nil:
		return normalizeAutnum(a, exts)
	case errors.Is(err, storage.ErrNotFound):
		if urls, ok := r.registry().AutnumURLs(q.ASN); ok {
			return r.redirect(q, "autnum", urls), nil
		}
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("lookup autnum %d: %w", q.ASN, err)
	}
}

func (r *Resolver) resolveNetwork(ctx context.Context, q Query, exts rdap.ExtensionSet) (rdap.Object, error) {
	if !q.Addr.IsValid() {
		return nil, fmt.Errorf("%w: invalid ip address", ErrInvalidQueryValue)
	}
	n, err := r.backend.GetNetworkByAddr(ctx, q.Addr)
	switch {
	case err == nil:
		return normalizeNetwork(n, exts)
	case errors.Is(err, storage.ErrNotFound):
		if urls, ok := r.registry().NetworkURLs(q.Addr); ok {
			return r.redirect(q, "ip", urls), nil
		}
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("lookup network %s: %w", q.Addr, err)
	}
}

func (r *Resolver) resolveHelp(ctx context.Context, q Query) (rdap.Object, error) {
	h, err := r.backend.GetHelp(ctx, q.Host)
	switch {
	case err == nil:
		return normalizeHelp(h)
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("lookup help: %w", err)
	}
}

// SearchDomains answers a domain search. Patterns match LDH names with *
// as the wildcard; a search that matches nothing is an empty result, not
// an error, and never falls through to delegation matching.
func (r *Resolver) SearchDomains(ctx context.Context, pattern string, exts rdap.ExtensionSet) ([]*rdap.Domain, error) {
	start := time.Now()
	out, err := r.searchDomains(ctx, pattern, exts)
	r.metrics.ObserveQuery("domain_search", outcomeOf(nil, err), start)
	return out, err
}

func (r *Resolver) searchDomains(ctx context.Context, pattern string, exts rdap.ExtensionSet) ([]*rdap.Domain, error) {
	if err := validatePattern(pattern); err != nil {
		return nil, err
	}
	found, err := r.backend.SearchDomainsByName(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("search domains %q: %w", pattern, err)
	}
	out := make([]*rdap.Domain, 0, len(found))
	for _, d := range found {
		nd, err := normalizeDomain(d, exts)
		if err != nil {
			return nil, err
		}
		out = append(out, nd)
	}
	return out, nil
}

// SearchNameservers answers a nameserver search with the same pattern
// rules as SearchDomains.
func (r *Resolver) SearchNameservers(ctx context.Context, pattern string, exts rdap.ExtensionSet) ([]*rdap.Nameserver, error) {
	start := time.Now()
	out, err := r.searchNameservers(ctx, pattern, exts)
	r.metrics.ObserveQuery("nameserver_search", outcomeOf(nil, err), start)
	return out, err
}

func (r *Resolver) searchNameservers(ctx context.Context, pattern string, exts rdap.ExtensionSet) ([]*rdap.Nameserver, error) {
	if err := validatePattern(pattern); err != nil {
		return nil, err
	}
	found, err := r.backend.SearchNameserversByName(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("search nameservers %q: %w", pattern, err)
	}
	out := make([]*rdap.Nameserver, 0, len(found))
	for _, n := range found {
		nn, err := normalizeNameserver(n, exts)
		if err != nil {
			return nil, err
		}
		out = append(out, nn)
	}
	return out, nil
}

// validatePattern rejects patterns with no literal characters; a bare
// wildcard would walk the whole store.
func validatePattern(pattern string) error {
	if strings.Trim(pattern, "*") == "" {
		return fmt.Errorf("%w: search pattern needs at least one literal character", ErrInvalidQueryValue)
	}
	return nil
}

func (r *Resolver) registry() *bootstrap.Registry {
	return r.bootstrap.Current()
}

// redirect builds the Redirect response, turning each delegation base URL
// into a full lookup URL for the key as originally queried.
func (r *Resolver) redirect(q Query, segment string, bases []string) *rdap.Redirect {
	urls := make([]string, 0, len(bases))
	for _, base := range bases {
		urls = append(urls, joinURL(base, segment, q.Key))
	}
	return &rdap.Redirect{QueryKind: q.Kind, QueryKey: q.Key, URLs: urls}
}

func joinURL(base string, elem ...string) string {
	out := strings.TrimSuffix(base, "/")
	for _, e := range elem {
		out += "/" + url.PathEscape(e)
	}
	return out
}

func outcomeOf(obj rdap.Object, err error) string {
	switch {
	case err == nil && obj != nil && obj.Kind() == rdap.KindRedirect:
		return "redirect"
	case err == nil:
		return "found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
